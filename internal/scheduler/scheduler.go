package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Enqueuer accepts zipcodes for a background refresh.
type Enqueuer interface {
	Push(zipcode string) error
}

// Scheduler periodically queues the tracked zipcodes for a refresh
type Scheduler struct {
	queue    Enqueuer
	logger   *logrus.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	zipcodes []string
	interval time.Duration
}

// NewScheduler creates a new scheduler
func NewScheduler(queue Enqueuer, zipcodes []string, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Scheduler{
		queue:    queue,
		logger:   logger,
		stopChan: make(chan struct{}),
		zipcodes: zipcodes,
		interval: interval,
	}
}

// Start queues every tracked zipcode once right away, then again on each
// tick. Nothing is started when no zipcodes are tracked.
func (s *Scheduler) Start() {
	if len(s.zipcodes) == 0 {
		s.logger.Info("No tracked zipcodes, background refresh disabled")
		return
	}

	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.WithField("zipcodes", len(s.zipcodes)).Info("Running startup refresh")
	s.enqueueAll()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.enqueueAll()
		}
	}
}

func (s *Scheduler) enqueueAll() {
	queued := 0
	for _, zipcode := range s.zipcodes {
		if err := s.queue.Push(zipcode); err != nil {
			s.logger.WithError(err).WithField("zipcode", zipcode).Warn("Failed to queue zipcode refresh")
			continue
		}
		queued++
	}

	s.logger.WithFields(logrus.Fields{
		"queued": queued,
		"total":  len(s.zipcodes),
	}).Info("Queued tracked zipcodes for refresh")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
