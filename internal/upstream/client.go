// Package upstream fetches recorded sales for a zipcode from the ATTOM
// sale snapshot API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/apperr"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/models"
)

const (
	snapshotPath    = "/sale/snapshot"
	windowLayout    = "2006/01/02"
	noResultMessage = "SuccessWithoutResult"
	errorBodyLimit  = 512
)

type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *http.Client
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	newID    func(zipcode string) string
}

func NewClient(cfg config.UpstreamConfig, logger *logrus.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		metrics:  m,
		newID:    fallbackID,
	}
}

func (c *Client) checkConfig() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "ATTOM_BASE_URL")
	}
	if c.apiKey == "" {
		missing = append(missing, "ATTOM_API_KEY")
	}
	if len(missing) > 0 {
		return &apperr.ConfigurationError{Missing: missing}
	}
	return nil
}

// FetchSales issues a single request for the sales recorded in zipcode
// between start and end. The zipcode is expected to be validated already.
// Failures are never retried here.
func (c *Client) FetchSales(ctx context.Context, zipcode string, start, end time.Time) ([]models.SaleRecord, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	params := url.Values{
		"postalcode":          []string{zipcode},
		"startSaleSearchDate": []string{start.Format(windowLayout)},
		"endSaleSearchDate":   []string{end.Format(windowLayout)},
		"pagesize":            []string{strconv.Itoa(c.pageSize)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+snapshotPath, nil)
	if err != nil {
		return nil, &apperr.UpstreamError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)

	fields := logrus.Fields{
		"zipcode":      zipcode,
		"window_start": start.Format(windowLayout),
		"window_end":   end.Format(windowLayout),
	}
	c.logger.WithFields(fields).Info("Fetching sales from upstream")

	began := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream("network_error", time.Since(began))
		c.logger.WithError(err).WithFields(fields).Error("Upstream request failed")
		return nil, &apperr.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		if isEmptyResult(body) {
			c.metrics.ObserveUpstream("ok", time.Since(began))
			c.logger.WithFields(fields).Info("Upstream reported no sales for window")
			return []models.SaleRecord{}, nil
		}

		c.metrics.ObserveUpstream("http_error", time.Since(began))
		c.logger.WithFields(fields).WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"body":        string(body),
		}).Error("Upstream returned an error status")
		return nil, &apperr.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var payload snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.ObserveUpstream("decode_error", time.Since(began))
		c.logger.WithError(err).WithFields(fields).Error("Failed to decode upstream response")
		return nil, &apperr.UpstreamError{Err: fmt.Errorf("invalid response body: %w", err)}
	}
	c.metrics.ObserveUpstream("ok", time.Since(began))

	records := normalize(zipcode, payload.Property, c.newID)
	c.logger.WithFields(fields).WithFields(logrus.Fields{
		"received": len(payload.Property),
		"kept":     len(records),
	}).Info("Upstream response processed")

	return records, nil
}

// isEmptyResult recognizes the provider's "no records" reply, which comes
// back with a 4xx status.
func isEmptyResult(body []byte) bool {
	var payload snapshotResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return strings.EqualFold(payload.Status.Msg, noResultMessage)
}
