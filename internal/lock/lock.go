// Package lock serializes synchronizations of the same zipcode.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"zipsales/server/config"
)

// Locker hands out exclusive, per-key locks. The returned unlock func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// New builds the locker selected by cfg.Lock.
func New(cfg config.SyncConfig, logger *logrus.Logger) (Locker, error) {
	switch cfg.Lock {
	case "", "local":
		return NewLocal(), nil
	case "redis":
		return NewRedis(cfg, logger)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported sync lock: %s", cfg.Lock)
	}
}

// Noop never blocks.
type Noop struct{}

func (Noop) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local keeps one semaphore per key inside the process. Entries are
// dropped once nobody holds or waits for them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size is the number of keys currently tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
