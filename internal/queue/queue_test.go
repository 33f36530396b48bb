package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZipcodeQueue(t *testing.T) {
	logger := logrus.New()
	q := NewZipcodeQueue(10, logger)
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestZipcodeQueue_Push(t *testing.T) {
	logger := logrus.New()
	q := NewZipcodeQueue(2, logger)

	// Test successful push
	err := q.Push("90210")
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// A zipcode already waiting is not queued twice
	err = q.Push("90210")
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	// Test queue full
	require.NoError(t, q.Push("10001"))
	err = q.Push("94105")
	assert.Equal(t, ErrQueueFull, err)

	// Test closed queue
	q.Close()
	err = q.Push("94105")
	assert.Equal(t, ErrQueueClosed, err)
}

func TestZipcodeQueue_Subscribe(t *testing.T) {
	logger := logrus.New()
	q := NewZipcodeQueue(10, logger)

	var processed []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	q.Subscribe(func(zipcode string) error {
		mu.Lock()
		processed = append(processed, zipcode)
		mu.Unlock()
		wg.Done()
		return nil
	})

	q.Start(1)
	defer q.Close()

	require.NoError(t, q.Push("90210"))
	require.NoError(t, q.Push("10001"))

	wg.Wait()

	mu.Lock()
	assert.Equal(t, []string{"90210", "10001"}, processed)
	mu.Unlock()
}

func TestZipcodeQueue_RequeueAfterDispatch(t *testing.T) {
	q := NewZipcodeQueue(10, logrus.New())

	seen := make(chan string, 2)
	q.Subscribe(func(zipcode string) error {
		seen <- zipcode
		return nil
	})
	q.Start(1)
	defer q.Close()

	require.NoError(t, q.Push("90210"))
	assert.Equal(t, "90210", <-seen)

	// Once picked up, the zipcode may be queued again
	require.NoError(t, q.Push("90210"))
	select {
	case zipcode := <-seen:
		assert.Equal(t, "90210", zipcode)
	case <-time.After(time.Second):
		t.Fatal("zipcode was not dispatched a second time")
	}
}

func TestZipcodeQueue_Close(t *testing.T) {
	logger := logrus.New()
	q := NewZipcodeQueue(10, logger)
	q.Start(2)

	// Test first close
	err := q.Close()
	assert.NoError(t, err)
	assert.True(t, q.IsClosed())

	// Test second close (should be no-op)
	err = q.Close()
	assert.NoError(t, err)
}

func TestZipcodeQueue_AllHandlersRunDespiteErrors(t *testing.T) {
	logger := logrus.New()
	q := NewZipcodeQueue(10, logger)

	var wg sync.WaitGroup
	calls := 0
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		wg.Add(1)
		q.Subscribe(func(string) error {
			mu.Lock()
			calls++
			mu.Unlock()
			wg.Done()
			return errors.New("boom")
		})
	}

	q.Start(1)
	defer q.Close()

	require.NoError(t, q.Push("90210"))
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}
