// Package store selects the record and metadata backends from configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/database"
	"zipsales/server/internal/dynamostore"
	"zipsales/server/internal/models"
	"zipsales/server/internal/mongostore"
)

// RecordStore persists sale records keyed by their upstream id.
type RecordStore interface {
	// UpsertMany inserts or overwrites records and returns how many ids
	// did not exist before.
	UpsertMany(ctx context.Context, records []models.SaleRecord) (int, error)

	// Query returns one page of a zipcode's records, newest sale first,
	// along with the total number of matches.
	Query(ctx context.Context, zipcode string, filters *models.SaleFilters, skip, limit int) ([]models.SaleRecord, int64, error)

	DeleteByZipcode(ctx context.Context, zipcode string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// MetadataStore tracks the last synchronization of each zipcode.
type MetadataStore interface {
	// Get returns nil, nil when the zipcode was never fetched.
	Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error)
	RecordFetch(ctx context.Context, zipcode string, at time.Time, inserted int) error
	List(ctx context.Context) ([]models.ZipcodeFetchMetadata, error)
	Delete(ctx context.Context, zipcode string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Stores bundles the opened backends.
type Stores struct {
	Records  RecordStore
	Metadata MetadataStore

	closers []func() error
}

func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects the configured backends and runs any migrations they need.
func Open(cfg config.StorageConfig, logger *logrus.Logger) (*Stores, error) {
	if logger == nil {
		logger = logrus.New()
	}
	stores := &Stores{}

	switch cfg.Backend {
	case "sqlite", "postgres":
		db, err := database.NewDatabase(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		stores.Records = db.Records()
		stores.Metadata = db.Metadata()
		stores.closers = append(stores.closers, db.Close)
	case "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		client, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		stores.Records = client.Records()
		stores.Metadata = client.Metadata()
		stores.closers = append(stores.closers, client.Close)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}

	switch cfg.MetadataBackend {
	case "", cfg.Backend:
	case "dynamodb":
		meta, err := dynamostore.New(cfg.AWSRegion, cfg.DynamoEndpoint, cfg.DynamoTable, logger)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to initialize DynamoDB metadata store: %w", err)
		}
		stores.Metadata = meta
	default:
		stores.Close()
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.MetadataBackend)
	}

	logger.WithFields(logrus.Fields{
		"records":  cfg.Backend,
		"metadata": metadataBackendName(cfg),
	}).Info("Storage initialized")
	return stores, nil
}

func metadataBackendName(cfg config.StorageConfig) string {
	if cfg.MetadataBackend == "" {
		return cfg.Backend
	}
	return cfg.MetadataBackend
}
