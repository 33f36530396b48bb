package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zipsales/server/internal/apperr"
	"zipsales/server/internal/models"
)

// Columns overwritten when an upserted record already exists. seq and
// created_at keep their original values so insertion order is stable.
var saleRecordUpdateColumns = []string{
	"address_line", "address_detail", "zipcode", "price", "latitude", "longitude",
	"bedrooms", "bathrooms", "sqft", "lot_size", "year_built",
	"property_type", "sale_type", "land_use_code", "sale_date",
	"price_per_sqft", "price_per_bedroom", "last_modified", "updated_at",
}

// RecordStore keeps sale records in the relational database.
type RecordStore struct {
	db *gorm.DB
}

func (d *Database) Records() *RecordStore {
	return &RecordStore{db: d.db}
}

// UpsertMany inserts records whose id is new and replaces the rest. It
// returns how many records were newly inserted.
func (s *RecordStore) UpsertMany(ctx context.Context, records []models.SaleRecord) (int, error) {
	batch := models.DedupeByID(records)
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, len(batch))
	now := time.Now().UTC()
	for i := range batch {
		ids[i] = batch[i].ID
		batch[i].Seq = 0
		batch[i].CreatedAt = now
		batch[i].UpdatedAt = now
	}

	var inserted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&models.SaleRecord{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
			return err
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(saleRecordUpdateColumns),
		}).CreateInBatches(&batch, 100).Error
		if err != nil {
			return err
		}

		inserted = len(batch) - len(existing)
		return nil
	})
	if err != nil {
		return 0, apperr.Store("upsert", err)
	}
	return inserted, nil
}

// Query returns one page of a zipcode's records matching filters, newest
// sale first with undated records last, plus the total match count.
func (s *RecordStore) Query(ctx context.Context, zipcode string, filters *models.SaleFilters, skip, limit int) ([]models.SaleRecord, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.SaleRecord{}).Where("zipcode = ?", zipcode)
		return applyFilters(q, filters)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, apperr.Store("count", err)
	}

	records := make([]models.SaleRecord, 0, limit)
	err := base().
		Order("sale_date IS NULL").
		Order("sale_date DESC").
		Order("seq ASC").
		Offset(skip).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, apperr.Store("query", err)
	}
	return records, total, nil
}

func applyFilters(q *gorm.DB, f *models.SaleFilters) *gorm.DB {
	if f == nil {
		return q
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.MinBeds != nil {
		q = q.Where("bedrooms >= ?", *f.MinBeds)
	}
	if f.MaxBeds != nil {
		q = q.Where("bedrooms <= ?", *f.MaxBeds)
	}
	if f.MinSqft != nil {
		q = q.Where("sqft >= ?", *f.MinSqft)
	}
	if f.MaxSqft != nil {
		q = q.Where("sqft <= ?", *f.MaxSqft)
	}
	if f.YearBuiltFrom != nil {
		q = q.Where("year_built >= ?", *f.YearBuiltFrom)
	}
	if f.YearBuiltTo != nil {
		q = q.Where("year_built <= ?", *f.YearBuiltTo)
	}
	if lower, ok := f.SaleDateLowerBound(); ok {
		q = q.Where("sale_date >= ?", lower)
	}
	if upper, ok := f.SaleDateUpperBound(); ok {
		q = q.Where("sale_date < ?", upper)
	}
	return q
}

func (s *RecordStore) DeleteByZipcode(ctx context.Context, zipcode string) (int64, error) {
	result := s.db.WithContext(ctx).Where("zipcode = ?", zipcode).Delete(&models.SaleRecord{})
	if result.Error != nil {
		return 0, apperr.Store("delete", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *RecordStore) DeleteAll(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SaleRecord{})
	if result.Error != nil {
		return 0, apperr.Store("delete all", result.Error)
	}
	return result.RowsAffected, nil
}
