package core

// split_limiter.go bounds how many split jobs run at once.
//
// Each job holds one semaphore slot from StartSplit until its goroutine
// exits. Requests that cannot get a slot within maxWait fail with
// ErrTooManySplits. WaitForDrain lets shutdown wait for running jobs.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManySplits is returned when every split slot stays occupied for the
// whole wait. Clients should retry after a short delay.
var ErrTooManySplits = errors.New("too many concurrent splits, please try again later")

// DefaultMaxConcurrentSplits is the default limit for parallel split jobs.
const DefaultMaxConcurrentSplits = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// SplitLimiter is a counting semaphore for split jobs.
type SplitLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewSplitLimiter allows at most maxConcurrent jobs. Non-positive arguments
// select the defaults.
func NewSplitLimiter(maxConcurrent int, maxWait time.Duration) *SplitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSplits
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &SplitLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManySplits once maxWait has
// passed, or ctx's error if ctx ends first. The caller must Release a slot
// it acquired.
func (l *SplitLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManySplits
	}
}

// Release returns a slot taken by Acquire.
func (l *SplitLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of running jobs.
func (l *SplitLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *SplitLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *SplitLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no job holds a slot or ctx ends.
func (l *SplitLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// SplitLimiterStatus is a snapshot of the limiter for health endpoints.
type SplitLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *SplitLimiter) Status() SplitLimiterStatus {
	return SplitLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
