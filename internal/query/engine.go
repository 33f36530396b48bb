// Package query answers filtered, paginated reads of a zipcode's sales.
package query

import (
	"context"
	"math"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/models"
)

// RecordQuerier is the read side of the record store.
type RecordQuerier interface {
	Query(ctx context.Context, zipcode string, filters *models.SaleFilters, skip, limit int) ([]models.SaleRecord, int64, error)
}

type Engine struct {
	records      RecordQuerier
	defaultLimit int
	maxLimit     int
	logger       *logrus.Logger
	metrics      *metrics.Metrics
}

func NewEngine(records RecordQuerier, cfg config.QueryConfig, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 12
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &Engine{
		records:      records,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       logger,
		metrics:      m,
	}
}

// Normalize clamps page to at least 1. A zero or negative limit means the
// default page size; larger limits are capped. Page is also capped so the
// offset (page-1)*limit and its end never overflow an int; any page that
// large is already past the last one.
func (e *Engine) Normalize(page, limit int) (int, int) {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

// GetPage reads one page from the record store. A failing store yields an
// empty page instead of an error.
func (e *Engine) GetPage(ctx context.Context, zipcode string, filters *models.SaleFilters, page, limit int) models.SalesPage {
	page, limit = e.Normalize(page, limit)
	skip := (page - 1) * limit

	records, total, err := e.records.Query(ctx, zipcode, filters, skip, limit)
	if err != nil {
		e.metrics.StoreError("query")
		e.logger.WithError(err).WithField("zipcode", zipcode).Warn("Failed to read sales, returning an empty page")
		return emptyPage(page, limit)
	}
	if records == nil {
		records = []models.SaleRecord{}
	}

	return models.SalesPage{
		Records: records,
		Pagination: models.Pagination{
			CurrentPage: page,
			TotalPages:  models.TotalPages(total, limit),
			TotalCount:  total,
			Limit:       limit,
		},
	}
}

// Overlay pages over zipcode's stored records with fetched laid on top, for
// a sync whose records could not be written. Fetched values win for ids
// present in both. When the store cannot be read either, only fetched is
// paged.
func (e *Engine) Overlay(ctx context.Context, zipcode string, fetched []models.SaleRecord, filters *models.SaleFilters, page, limit int) models.SalesPage {
	merged := fetched
	stored, err := e.storedRecords(ctx, zipcode)
	if err != nil {
		e.metrics.StoreError("query")
		e.logger.WithError(err).WithField("zipcode", zipcode).Warn("Failed to read cached sales, serving fetched records only")
	} else if len(stored) > 0 {
		merged = append(stored, fetched...)
	}
	return e.Paginate(merged, filters, page, limit)
}

// storedRecords reads every record of zipcode, unfiltered, in store order.
func (e *Engine) storedRecords(ctx context.Context, zipcode string) ([]models.SaleRecord, error) {
	if e.records == nil {
		return nil, nil
	}
	_, total, err := e.records.Query(ctx, zipcode, nil, 0, 1)
	if err != nil || total == 0 {
		return nil, err
	}
	records, _, err := e.records.Query(ctx, zipcode, nil, 0, int(total))
	return records, err
}

// Paginate filters, orders and slices records held in memory, in the same
// order the stores use: newest sale first, undated last, ties keep their
// input order. Repeated ids collapse to one record carrying the last
// occurrence's values.
func (e *Engine) Paginate(records []models.SaleRecord, filters *models.SaleFilters, page, limit int) models.SalesPage {
	page, limit = e.Normalize(page, limit)
	records = models.DedupeByID(records)

	matched := make([]models.SaleRecord, 0, len(records))
	for i := range records {
		if filters.Matches(&records[i]) {
			matched = append(matched, records[i])
		}
	}
	sortNewestFirst(matched)

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return models.SalesPage{
		Records: matched[start:end],
		Pagination: models.Pagination{
			CurrentPage: page,
			TotalPages:  models.TotalPages(total, limit),
			TotalCount:  total,
			Limit:       limit,
		},
	}
}

func emptyPage(page, limit int) models.SalesPage {
	return models.SalesPage{
		Records:    []models.SaleRecord{},
		Pagination: models.Pagination{CurrentPage: page, Limit: limit},
	}
}

func sortNewestFirst(records []models.SaleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].HasSaleDate(), records[j].HasSaleDate()
		if a != b {
			return a
		}
		return a && *records[i].SaleDate > *records[j].SaleDate
	})
}
