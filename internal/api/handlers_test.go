package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/models"
)

type MockSalesLookup struct {
	mock.Mock
}

func (m *MockSalesLookup) Lookup(ctx context.Context, zipcode string, filters *models.SaleFilters, page, limit int) (models.SalesPage, error) {
	args := m.Called(ctx, zipcode, filters, page, limit)
	return args.Get(0).(models.SalesPage), args.Error(1)
}

type MockRecordAdmin struct {
	mock.Mock
}

func (m *MockRecordAdmin) DeleteByZipcode(ctx context.Context, zipcode string) (int64, error) {
	args := m.Called(ctx, zipcode)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordAdmin) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockMetadataAdmin struct {
	mock.Mock
}

func (m *MockMetadataAdmin) Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error) {
	args := m.Called(ctx, zipcode)
	meta, _ := args.Get(0).(*models.ZipcodeFetchMetadata)
	return meta, args.Error(1)
}

func (m *MockMetadataAdmin) List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error) {
	args := m.Called(ctx)
	all, _ := args.Get(0).([]models.ZipcodeFetchMetadata)
	return all, args.Error(1)
}

func (m *MockMetadataAdmin) Delete(ctx context.Context, zipcode string) (int64, error) {
	args := m.Called(ctx, zipcode)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMetadataAdmin) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type testServer struct {
	router   *gin.Engine
	sales    *MockSalesLookup
	records  *MockRecordAdmin
	metadata *MockMetadataAdmin
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ts := &testServer{
		sales:    new(MockSalesLookup),
		records:  new(MockRecordAdmin),
		metadata: new(MockMetadataAdmin),
	}
	handler := NewHandler(ts.sales, ts.records, ts.metadata, logger)
	ts.router = NewRouter(handler, []string{"*"}, metrics.New(), logger)
	return ts
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func samplePage() models.SalesPage {
	date := "2024-02-01"
	return models.SalesPage{
		Records: []models.SaleRecord{{
			ID:          "attom_1",
			Zipcode:     "90210",
			AddressLine: "1 Main St",
			Price:       850000,
			SaleDate:    &date,
			Latitude:    34.09,
			Longitude:   -118.41,
		}},
		Pagination: models.Pagination{CurrentPage: 1, TotalPages: 1, TotalCount: 1, Limit: 12},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer()

	w := ts.do(http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestGetSales_Success(t *testing.T) {
	ts := newTestServer()
	ts.sales.On("Lookup", mock.Anything, "90210", mock.MatchedBy(func(f *models.SaleFilters) bool {
		return f.MinPrice != nil && *f.MinPrice == 500000 && f.MinBeds != nil && *f.MinBeds == 3
	}), 2, 5).Return(samplePage(), nil)

	w := ts.do(http.MethodGet, "/api/sales/90210?minPrice=500000&minBeds=3&page=2&limit=5")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])
	assert.Len(t, body["properties"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["totalCount"])
	ts.sales.AssertExpectations(t)
}

func TestGetSales_PreviousSalesAlias(t *testing.T) {
	ts := newTestServer()
	ts.sales.On("Lookup", mock.Anything, "90210", mock.Anything, 0, 0).Return(samplePage(), nil)

	w := ts.do(http.MethodGet, "/api/previous-sales/90210")

	assert.Equal(t, http.StatusOK, w.Code)
	ts.sales.AssertExpectations(t)
}

func TestGetSales_BadParameters(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"non numeric filter", "/api/sales/90210?minPrice=cheap"},
		{"non numeric page", "/api/sales/90210?page=first"},
		{"non numeric limit", "/api/sales/90210?limit=ten"},
		{"NaN price", "/api/sales/90210?minPrice=NaN"},
		{"infinite price", "/api/sales/90210?maxPrice=Inf"},
		{"negative infinite price", "/api/sales/90210?minPrice=-Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()

			w := ts.do(http.MethodGet, tt.target)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, decode(t, w)["success"])
			ts.sales.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetSales_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", apperr.Validationf("Invalid zipcode format. Must be 5 digits."), http.StatusBadRequest, "Invalid zipcode format. Must be 5 digits."},
		{"configuration", &apperr.ConfigurationError{Missing: []string{"ATTOM_API_KEY"}}, http.StatusInternalServerError, "API configuration error"},
		{"upstream", &apperr.UpstreamError{StatusCode: 503, Err: errors.New("unavailable")}, http.StatusInternalServerError, "Failed to fetch sales data"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Failed to fetch sales data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.sales.On("Lookup", mock.Anything, "9021", mock.Anything, 0, 0).Return(models.SalesPage{}, tt.err)

			w := ts.do(http.MethodGet, "/api/sales/9021")

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestGetSalesGeoJSON(t *testing.T) {
	ts := newTestServer()
	ts.sales.On("Lookup", mock.Anything, "90210", mock.Anything, 0, 0).Return(samplePage(), nil)

	w := ts.do(http.MethodGet, "/api/sales/90210/geojson")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Len(t, body["features"], 1)
	assert.Contains(t, body, "pagination")
}

func TestDeleteSales(t *testing.T) {
	ts := newTestServer()
	ts.records.On("DeleteByZipcode", mock.Anything, "90210").Return(int64(7), nil)

	w := ts.do(http.MethodDelete, "/api/sales/90210")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode(t, w)["deletedCount"])
}

func TestDeleteSales_InvalidZipcode(t *testing.T) {
	ts := newTestServer()

	w := ts.do(http.MethodDelete, "/api/sales/abcde")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	ts.records.AssertNotCalled(t, "DeleteByZipcode", mock.Anything, mock.Anything)
}

func TestDeleteAllSales_StoreFailure(t *testing.T) {
	ts := newTestServer()
	ts.records.On("DeleteAll", mock.Anything).Return(int64(0), errors.New("disk full"))

	w := ts.do(http.MethodDelete, "/api/sales")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to delete all sales", decode(t, w)["message"])
}

func TestGetMetadata(t *testing.T) {
	ts := newTestServer()
	meta := &models.ZipcodeFetchMetadata{
		Zipcode:           "90210",
		LastFetchDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalRecordsCount: 42,
	}
	ts.metadata.On("Get", mock.Anything, "90210").Return(meta, nil)

	w := ts.do(http.MethodGet, "/api/metadata/90210")

	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "90210", data["zipcode"])
}

func TestGetMetadata_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.metadata.On("Get", mock.Anything, "10001").Return(nil, nil)

	w := ts.do(http.MethodGet, "/api/metadata/10001")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No metadata found for zipcode 10001", decode(t, w)["message"])
}

func TestListMetadata(t *testing.T) {
	ts := newTestServer()
	ts.metadata.On("List", mock.Anything).Return([]models.ZipcodeFetchMetadata{
		{Zipcode: "10001"},
		{Zipcode: "90210"},
	}, nil)

	w := ts.do(http.MethodGet, "/api/metadata")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])
}

func TestDeleteMetadata(t *testing.T) {
	ts := newTestServer()
	ts.metadata.On("Delete", mock.Anything, "90210").Return(int64(1), nil)

	w := ts.do(http.MethodDelete, "/api/metadata/90210")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Metadata for zipcode 90210 has been reset", decode(t, w)["message"])
}

func TestClearMetadata(t *testing.T) {
	ts := newTestServer()
	ts.metadata.On("DeleteAll", mock.Anything).Return(int64(3), nil)

	w := ts.do(http.MethodDelete, "/api/metadata")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["deletedCount"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodOptions, "/api/sales/90210", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()

	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer()

	w := ts.do(http.MethodGet, "/api/nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()
	ts.do(http.MethodGet, "/health")

	w := ts.do(http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "zipsales_http_requests_total")
}
