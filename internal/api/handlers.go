package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/apperr"
	"zipsales/server/internal/geometry"
	"zipsales/server/internal/models"
)

// SalesLookup syncs a zipcode and returns one page of its sales.
type SalesLookup interface {
	Lookup(ctx context.Context, zipcode string, filters *models.SaleFilters, page, limit int) (models.SalesPage, error)
}

type RecordAdmin interface {
	DeleteByZipcode(ctx context.Context, zipcode string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type MetadataAdmin interface {
	Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error)
	List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error)
	Delete(ctx context.Context, zipcode string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type Handler struct {
	sales    SalesLookup
	records  RecordAdmin
	metadata MetadataAdmin
	logger   *logrus.Logger
}

func NewHandler(sales SalesLookup, records RecordAdmin, metadata MetadataAdmin, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		sales:    sales,
		records:  records,
		metadata: metadata,
		logger:   logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSales handles GET /api/sales/:zipcode
func (h *Handler) GetSales(c *gin.Context) {
	page, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"count":      len(page.Records),
		"properties": page.Records,
		"pagination": page.Pagination,
	})
}

// GetSalesGeoJSON handles GET /api/sales/:zipcode/geojson
func (h *Handler) GetSalesGeoJSON(c *gin.Context) {
	page, ok := h.lookup(c)
	if !ok {
		return
	}

	fc := geometry.SalesFeatureCollection(config.NormalizeZipcode(c.Param("zipcode")), page.Records)
	fc.ExtraMembers = map[string]interface{}{
		"success":    true,
		"pagination": page.Pagination,
	}
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) lookup(c *gin.Context) (models.SalesPage, bool) {
	zipcode := c.Param("zipcode")

	var filters models.SaleFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		h.logger.WithError(err).WithField("zipcode", zipcode).Debug("Rejected sales filters")
		h.writeError(c, apperr.Validationf("Invalid filter parameters: all filters must be numeric"))
		return models.SalesPage{}, false
	}
	if !filters.FinitePrices() {
		h.writeError(c, apperr.Validationf("Invalid filter parameters: price bounds must be finite numbers"))
		return models.SalesPage{}, false
	}

	page, err := queryInt(c, "page")
	if err != nil {
		h.writeError(c, err)
		return models.SalesPage{}, false
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.writeError(c, err)
		return models.SalesPage{}, false
	}

	h.logger.WithFields(logrus.Fields{
		"zipcode": zipcode,
		"page":    page,
		"limit":   limit,
	}).Info("Fetching sales for zipcode")

	result, err := h.sales.Lookup(c.Request.Context(), zipcode, &filters, page, limit)
	if err != nil {
		h.writeError(c, err)
		return models.SalesPage{}, false
	}
	return result, true
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, name string) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validationf("Invalid %s parameter: must be an integer", name)
	}
	return v, nil
}

// DeleteSales handles DELETE /api/sales/:zipcode
func (h *Handler) DeleteSales(c *gin.Context) {
	zipcode, ok := h.zipcodeParam(c)
	if !ok {
		return
	}

	deleted, err := h.records.DeleteByZipcode(c.Request.Context(), zipcode)
	if err != nil {
		h.logger.WithError(err).WithField("zipcode", zipcode).Error("Failed to delete sales")
		respondError(c, http.StatusInternalServerError, "Failed to delete sales")
		return
	}

	h.logger.WithFields(logrus.Fields{"zipcode": zipcode, "deleted": deleted}).Info("Deleted sales for zipcode")
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Sales for zipcode %s have been deleted", zipcode),
		"deletedCount": deleted,
	})
}

// DeleteAllSales handles DELETE /api/sales
func (h *Handler) DeleteAllSales(c *gin.Context) {
	deleted, err := h.records.DeleteAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete all sales")
		respondError(c, http.StatusInternalServerError, "Failed to delete all sales")
		return
	}

	h.logger.WithField("deleted", deleted).Info("Deleted all sales")
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "All sales have been deleted",
		"deletedCount": deleted,
	})
}

// GetMetadata handles GET /api/metadata/:zipcode
func (h *Handler) GetMetadata(c *gin.Context) {
	zipcode, ok := h.zipcodeParam(c)
	if !ok {
		return
	}

	meta, err := h.metadata.Get(c.Request.Context(), zipcode)
	if err != nil {
		h.logger.WithError(err).WithField("zipcode", zipcode).Error("Failed to get metadata")
		respondError(c, http.StatusInternalServerError, "Failed to get metadata")
		return
	}
	if meta == nil {
		respondError(c, http.StatusNotFound, fmt.Sprintf("No metadata found for zipcode %s", zipcode))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": meta})
}

// ListMetadata handles GET /api/metadata
func (h *Handler) ListMetadata(c *gin.Context) {
	all, err := h.metadata.List(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list metadata")
		respondError(c, http.StatusInternalServerError, "Failed to get all metadata")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    all,
		"count":   len(all),
	})
}

// DeleteMetadata handles DELETE /api/metadata/:zipcode. Stored sales are
// kept; the next lookup refetches from the default start date.
func (h *Handler) DeleteMetadata(c *gin.Context) {
	zipcode, ok := h.zipcodeParam(c)
	if !ok {
		return
	}

	deleted, err := h.metadata.Delete(c.Request.Context(), zipcode)
	if err != nil {
		h.logger.WithError(err).WithField("zipcode", zipcode).Error("Failed to delete metadata")
		respondError(c, http.StatusInternalServerError, "Failed to delete metadata")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Metadata for zipcode %s has been reset", zipcode),
		"deletedCount": deleted,
	})
}

// ClearMetadata handles DELETE /api/metadata
func (h *Handler) ClearMetadata(c *gin.Context) {
	deleted, err := h.metadata.DeleteAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to clear metadata")
		respondError(c, http.StatusInternalServerError, "Failed to clear all metadata")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "All metadata has been cleared",
		"deletedCount": deleted,
	})
}

func (h *Handler) zipcodeParam(c *gin.Context) (string, bool) {
	zipcode := config.NormalizeZipcode(c.Param("zipcode"))
	if !config.ValidZipcode(zipcode) {
		h.writeError(c, apperr.Validationf("Invalid zipcode format. Must be 5 digits."))
		return "", false
	}
	return zipcode, true
}

// writeError maps an error kind to a status and a client safe message.
// Details of upstream and store failures only go to the log.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		respondError(c, http.StatusBadRequest, err.Error())
	case apperr.IsConfiguration(err):
		h.logger.WithError(err).Error("Upstream is not configured")
		respondError(c, http.StatusInternalServerError, "API configuration error")
	case apperr.IsUpstream(err):
		h.logger.WithError(err).Error("Upstream request failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch sales data")
	default:
		h.logger.WithError(err).Error("Request failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch sales data")
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
