package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
	"zipsales/server/internal/apperr"
	"zipsales/server/internal/metrics"
	"zipsales/server/internal/queue"
	"zipsales/server/internal/salesync"
)

// Syncer runs one synchronization of a zipcode.
type Syncer interface {
	Sync(ctx context.Context, zipcode string) (*salesync.Result, error)
}

// RefreshProcessor syncs zipcodes taken from the refresh queue, retrying
// failed syncs.
type RefreshProcessor struct {
	syncer  Syncer
	logger  *logrus.Logger
	config  config.RefreshConfig
	queue   *queue.ZipcodeQueue
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRefreshProcessor creates a new refresh processor instance
func NewRefreshProcessor(syncer Syncer, queue *queue.ZipcodeQueue, cfg config.RefreshConfig, logger *logrus.Logger, m *metrics.Metrics) *RefreshProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshProcessor{
		syncer:  syncer,
		queue:   queue,
		config:  cfg,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the queue and starts its workers
func (p *RefreshProcessor) Start() {
	p.queue.Subscribe(p.processZipcode)
	p.queue.Start(p.config.Workers)
}

// Stop cancels in-flight retries and waits for the workers to exit
func (p *RefreshProcessor) Stop() {
	p.cancel()
	p.queue.Close()
}

// processZipcode syncs a zipcode, retrying failures up to MaxRetries times.
// Validation and configuration errors are not retried.
func (p *RefreshProcessor) processZipcode(zipcode string) error {
	log := p.logger.WithField("zipcode", zipcode)

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Infof("Retrying zipcode refresh, attempt %d of %d", attempt, p.config.MaxRetries)
			select {
			case <-p.ctx.Done():
				p.metrics.RefreshJob("cancelled")
				return p.ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
		}

		var result *salesync.Result
		result, err = p.syncer.Sync(p.ctx, zipcode)
		if err == nil {
			p.metrics.RefreshJob("ok")
			log.WithFields(logrus.Fields{
				"state":    result.State,
				"inserted": result.Inserted,
			}).Info("Zipcode refreshed")
			return nil
		}

		if apperr.IsValidation(err) || apperr.IsConfiguration(err) || p.ctx.Err() != nil {
			break
		}
		log.WithError(err).Warn("Zipcode refresh failed")
	}

	p.metrics.RefreshJob("failed")
	return fmt.Errorf("failed to refresh zipcode %s: %w", zipcode, err)
}
