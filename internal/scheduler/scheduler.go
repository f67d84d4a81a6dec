// Package scheduler bounds the number of host probe sequences in flight.
// Tasks are dispatched one by one; Go blocks while the bound is reached, so
// a scan over any number of hosts never holds more than the configured
// number of goroutines doing network I/O.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrent is used when a non-positive bound is given.
const DefaultMaxConcurrent = 200

// ErrTaskPanic wraps the value recovered from a panicking task.
var ErrTaskPanic = errors.New("task panicked")

// Scheduler runs tasks with at most Max of them in flight.
type Scheduler struct {
	max     int64
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	wg      sync.WaitGroup

	inFlight atomic.Int64
	peak     atomic.Int64

	mu      sync.Mutex
	err     error
	onError func(error)
}

// New returns a Scheduler allowing maxConcurrent tasks at once and, when
// perSecond > 0, starting at most perSecond tasks per second.
func New(maxConcurrent int, perSecond float64) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	limit := rate.Inf
	burst := 0
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = 1
	}
	return &Scheduler{
		max:     int64(maxConcurrent),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// OnError registers fn to be called once, with the first task failure.
// It must be set before the first call to Go.
func (s *Scheduler) OnError(fn func(error)) {
	s.onError = fn
}

// Go waits for a free slot (and the rate limiter) and runs task in a new
// goroutine. It returns an error without running task if ctx ends first.
func (s *Scheduler) Go(ctx context.Context, task func(ctx context.Context)) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire slot: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		s.observe(s.inFlight.Add(1))
		defer s.inFlight.Add(-1)

		defer func() {
			if r := recover(); r != nil {
				s.fail(fmt.Errorf("%w: %v", ErrTaskPanic, r))
			}
		}()
		task(ctx)
	}()
	return nil
}

// Wait blocks until every dispatched task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Err returns the first task failure, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Max returns the concurrency bound.
func (s *Scheduler) Max() int {
	return int(s.max)
}

// InFlight returns the number of tasks currently running.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Peak returns the highest number of tasks that ran at the same time.
func (s *Scheduler) Peak() int {
	return int(s.peak.Load())
}

func (s *Scheduler) observe(n int64) {
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	first := s.err == nil
	if first {
		s.err = err
	}
	fn := s.onError
	s.mu.Unlock()

	if first && fn != nil {
		fn(err)
	}
}
