package dispatch

// batch_limiter.go bounds how many batches run at once.
//
// Every batch fans out its own worker pool against the order service, so a
// handful of simultaneous batches already represents a lot of remote
// traffic. The limiter is a plain semaphore: acquire a slot to start a
// batch, wait up to maxWait when full, fail with ErrTooManyBatches after
// that. WaitForDrain supports graceful shutdown by blocking until every
// running batch has released its slot.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentBatches is the default limit for parallel batch runs.
const DefaultMaxConcurrentBatches = 3

// DefaultMaxSlotWait is how long to wait for a slot before rejecting.
const DefaultMaxSlotWait = 15 * time.Second

// BatchLimiter controls concurrent batch processing with a semaphore.
type BatchLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewBatchLimiter creates a limiter allowing at most maxConcurrent
// simultaneous batches. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyBatches.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxSlotWait
	}

	return &BatchLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire claims a batch slot, waiting up to the configured maximum.
// Returns ErrTooManyBatches when the wait expires, or the context error
// when the caller gives up first. Callers must Release exactly once per
// successful Acquire.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBatches
	}
}

// TryAcquire claims a slot without blocking.
func (l *BatchLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (l *BatchLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of batches currently holding a slot.
func (l *BatchLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot capacity.
func (l *BatchLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// WaitForDrain blocks until every running batch has released its slot or
// the context is cancelled. Used during graceful shutdown.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// BatchLimiterStatus is a snapshot of the limiter for monitoring.
type BatchLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status reports the limiter's current state.
func (l *BatchLimiter) Status() BatchLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return BatchLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
