package queue

import (
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ZipcodeQueue is an in-memory queue of zipcodes waiting for a refresh.
// A zipcode that is already waiting is not queued a second time.
type ZipcodeQueue struct {
	items    chan string
	done     chan struct{}
	maxSize  int
	closed   bool
	pending  map[string]struct{}
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []func(string) error
}

// NewZipcodeQueue creates a new zipcode queue with the specified buffer size
func NewZipcodeQueue(bufferSize int, logger *logrus.Logger) *ZipcodeQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}

	return &ZipcodeQueue{
		items:    make(chan string, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		pending:  make(map[string]struct{}),
		logger:   logger,
		handlers: make([]func(string) error, 0),
	}
}

// Push adds a zipcode to the queue without blocking
func (q *ZipcodeQueue) Push(zipcode string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.pending[zipcode]; ok {
		q.logger.WithField("zipcode", zipcode).Debug("Zipcode already queued")
		return nil
	}

	select {
	case q.items <- zipcode:
		q.pending[zipcode] = struct{}{}
		q.logger.WithField("zipcode", zipcode).Debug("Pushed zipcode to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each zipcode
func (q *ZipcodeQueue) Subscribe(handler func(string) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start runs workers goroutines draining the queue
func (q *ZipcodeQueue) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.process()
	}
}

func (q *ZipcodeQueue) process() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case zipcode := <-q.items:
			q.mu.Lock()
			delete(q.pending, zipcode)
			q.mu.Unlock()
			q.dispatch(zipcode)
		}
	}
}

// dispatch sends the zipcode to all subscribed handlers
func (q *ZipcodeQueue) dispatch(zipcode string) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(zipcode); err != nil {
			q.logger.WithError(err).WithField("zipcode", zipcode).Error("Handler failed to process zipcode")
		}
	}
}

// Close stops the workers after their current zipcode and rejects new
// pushes. Zipcodes still waiting are dropped.
func (q *ZipcodeQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the current number of zipcodes in the queue
func (q *ZipcodeQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ZipcodeQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
