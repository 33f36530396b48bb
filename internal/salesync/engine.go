// Package salesync keeps the local sales cache of a zipcode in step with
// the upstream provider.
//
// A sync reads the zipcode's fetch metadata and either serves the cache as
// is (last fetch within the TTL) or fetches a window from upstream: the
// full history when the zipcode was never fetched, otherwise everything
// since the last fetch. Fetched records are upserted by id and the
// metadata is stamped, even when nothing new came back.
package salesync

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/lock"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/models"
)

// Fetcher retrieves the sales recorded in a zipcode within [start, end].
type Fetcher interface {
	FetchSales(ctx context.Context, zipcode string, start, end time.Time) ([]models.SaleRecord, error)
}

type RecordWriter interface {
	UpsertMany(ctx context.Context, records []models.SaleRecord) (int, error)
}

type MetadataStore interface {
	Get(ctx context.Context, zipcode string) (*models.ZipcodeFetchMetadata, error)
	RecordFetch(ctx context.Context, zipcode string, at time.Time, inserted int) error
}

type State string

const (
	StateCacheFresh       State = "cache_fresh"
	StateFullFetch        State = "full_fetch"
	StateIncrementalFetch State = "incremental_fetch"
)

// Result describes what a sync did.
type Result struct {
	Zipcode string
	State   State

	// Fetch window, zero for cache hits
	WindowStart time.Time
	WindowEnd   time.Time

	Fetched  []models.SaleRecord
	Inserted int

	// Persisted is false when fetched records could not be written. The
	// metadata is then left untouched so the next request fetches again.
	Persisted bool
}

type Engine struct {
	fetcher      Fetcher
	records      RecordWriter
	metadata     MetadataStore
	locker       lock.Locker
	ttl          time.Duration
	overlap      time.Duration
	defaultStart time.Time
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewEngine(fetcher Fetcher, records RecordWriter, metadata MetadataStore, locker lock.Locker, cfg config.SyncConfig, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}

	return &Engine{
		fetcher:      fetcher,
		records:      records,
		metadata:     metadata,
		locker:       locker,
		ttl:          ttl,
		overlap:      overlap,
		defaultStart: cfg.DefaultStart(),
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// Sync brings zipcode's cache up to date. Upstream and configuration
// errors are returned without touching the stores. A failed write is only
// logged; the fetched records are still returned in the result.
func (e *Engine) Sync(ctx context.Context, zipcode string) (*Result, error) {
	unlock, err := e.locker.Lock(ctx, zipcode)
	if err != nil {
		return nil, fmt.Errorf("failed to lock zipcode %s: %w", zipcode, err)
	}
	defer unlock()

	log := e.logger.WithField("zipcode", zipcode)

	meta, err := e.metadata.Get(ctx, zipcode)
	if err != nil {
		e.metrics.StoreError("get metadata")
		log.WithError(err).Warn("Failed to read fetch metadata, treating zipcode as never fetched")
		meta = nil
	}

	now := e.now().UTC()
	if meta.FreshSince(now.Add(-e.ttl)) {
		log.WithFields(logrus.Fields{
			"state":           StateCacheFresh,
			"last_fetch_date": meta.LastFetchDate,
		}).Debug("Cache is fresh, skipping upstream")
		e.metrics.ObserveSync(string(StateCacheFresh), 0)
		return &Result{Zipcode: zipcode, State: StateCacheFresh, Persisted: true}, nil
	}

	state, start := e.window(meta, now)
	log = log.WithFields(logrus.Fields{
		"state":        state,
		"window_start": start.Format("2006-01-02"),
	})

	fetched, err := e.fetcher.FetchSales(ctx, zipcode, start, now)
	if err != nil {
		e.metrics.ObserveSync("failed", 0)
		log.WithError(err).Error("Sync failed while fetching from upstream")
		return nil, err
	}

	result := &Result{
		Zipcode:     zipcode,
		State:       state,
		WindowStart: start,
		WindowEnd:   now,
		Fetched:     fetched,
	}

	inserted, err := e.records.UpsertMany(ctx, fetched)
	if err != nil {
		e.metrics.StoreError("upsert")
		e.metrics.ObserveSync(string(state), 0)
		log.WithError(err).WithField("fetched", len(fetched)).Error("Failed to store fetched sales, metadata left unchanged")
		return result, nil
	}
	result.Inserted = inserted
	result.Persisted = true

	if err := e.metadata.RecordFetch(ctx, zipcode, now, inserted); err != nil {
		e.metrics.StoreError("record fetch")
		log.WithError(err).Error("Failed to update fetch metadata")
	}

	e.metrics.ObserveSync(string(state), inserted)
	log.WithFields(logrus.Fields{
		"fetched":  len(fetched),
		"inserted": inserted,
	}).Info("Zipcode synchronized")

	return result, nil
}

// window picks the fetch start for a stale or unknown zipcode.
func (e *Engine) window(meta *models.ZipcodeFetchMetadata, now time.Time) (State, time.Time) {
	if meta == nil {
		return StateFullFetch, e.defaultStart
	}

	start := meta.LastFetchDate.UTC().Add(-e.overlap)
	if start.After(now) {
		start = now
	}
	return StateIncrementalFetch, start
}
