package salesync

import (
	"context"

	"zipsales/server/config"
	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
	"zipsales/server/internal/query"
)

// Service answers a sales lookup: sync the zipcode, then read the page.
type Service struct {
	engine *Engine
	query  *query.Engine
}

func NewService(engine *Engine, q *query.Engine) *Service {
	return &Service{engine: engine, query: q}
}

// Lookup validates zipcode, syncs it and returns the requested page. When
// the fetched records could not be stored the page is built in memory from
// the cached records overlaid with the fetched ones.
func (s *Service) Lookup(ctx context.Context, zipcode string, filters *models.SaleFilters, page, limit int) (models.SalesPage, error) {
	zipcode = config.NormalizeZipcode(zipcode)
	if !config.ValidZipcode(zipcode) {
		return models.SalesPage{}, apperr.Validationf("Invalid zipcode format. Must be 5 digits.")
	}

	result, err := s.engine.Sync(ctx, zipcode)
	if err != nil {
		return models.SalesPage{}, err
	}

	if !result.Persisted {
		return s.query.Overlay(ctx, zipcode, result.Fetched, filters, page, limit), nil
	}
	return s.query.GetPage(ctx, zipcode, filters, page, limit), nil
}
