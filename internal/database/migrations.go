package database

import (
	"fmt"

	"zipsales/server/internal/models"
)

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.SaleRecord{}, &models.ZipcodeFetchMetadata{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Covers the range filters that are always combined with a zipcode match
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sale_records_zipcode_price ON sale_records(zipcode, price)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_records_zipcode_beds ON sale_records(zipcode, bedrooms)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_records_zipcode_sqft ON sale_records(zipcode, sqft)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_records_zipcode_year_built ON sale_records(zipcode, year_built)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_records_coordinates ON sale_records(latitude, longitude)`,
	}
	for _, stmt := range indexes {
		if err := d.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	d.logger.Info("Database migrations completed")
	return nil
}
