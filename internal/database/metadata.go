package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
)

// MetadataStore keeps one fetch metadata row per zipcode.
type MetadataStore struct {
	db *gorm.DB
}

func (d *Database) Metadata() *MetadataStore {
	return &MetadataStore{db: d.db}
}

// Get returns nil without error when the zipcode has never been fetched.
func (s *MetadataStore) Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error) {
	var m models.ZipcodeFetchMetadata
	err := s.db.WithContext(ctx).Where("zipcode = ?", zipcode).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get metadata", err)
	}
	return &m, nil
}

// RecordFetch stamps a completed sync: both dates become at and the
// running total grows by inserted.
func (s *MetadataStore) RecordFetch(ctx context.Context, zipcode string, at time.Time, inserted int) error {
	at = at.UTC()
	m := models.ZipcodeFetchMetadata{
		Zipcode:           zipcode,
		LastFetchDate:     at,
		LastAPICallDate:   at,
		TotalRecordsCount: int64(inserted),
		CreatedAt:         at,
		UpdatedAt:         at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "zipcode"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_fetch_date":     at,
			"last_api_call_date":  at,
			"updated_at":          at,
			"total_records_count": gorm.Expr("zipcode_fetch_metadata.total_records_count + ?", inserted),
		}),
	}).Create(&m).Error
	if err != nil {
		return apperr.Store("record fetch", err)
	}
	return nil
}

func (s *MetadataStore) List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error) {
	all := make([]models.ZipcodeFetchMetadata, 0)
	if err := s.db.WithContext(ctx).Order("zipcode ASC").Find(&all).Error; err != nil {
		return nil, apperr.Store("list metadata", err)
	}
	return all, nil
}

func (s *MetadataStore) Delete(ctx context.Context, zipcode string) (int64, error) {
	result := s.db.WithContext(ctx).Where("zipcode = ?", zipcode).Delete(&models.ZipcodeFetchMetadata{})
	if result.Error != nil {
		return 0, apperr.Store("delete metadata", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *MetadataStore) DeleteAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.ZipcodeFetchMetadata{})
	if result.Error != nil {
		return 0, apperr.Store("clear metadata", result.Error)
	}
	return result.RowsAffected, nil
}
