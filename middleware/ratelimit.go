package middleware

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/jobqueue/entry"
)

// LaneLimit is a token-bucket limit for one lane.
type LaneLimit struct {
	// Lane is the lane the limit applies to.
	Lane string

	// PerSecond is the sustained number of attempts per second.
	PerSecond float64

	// Burst is the bucket size. Defaults to 1.
	Burst int
}

// LaneLimiter throttles attempts per lane. It is safe for concurrent use.
type LaneLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLaneLimiter builds limiters for the given lanes. Lanes without a
// limit are not throttled.
func NewLaneLimiter(limits ...LaneLimit) *LaneLimiter {
	l := &LaneLimiter{limiters: make(map[string]*rate.Limiter, len(limits))}
	for _, lim := range limits {
		l.Set(lim)
	}
	return l
}

// Set installs or replaces the limit for a lane. A non-positive rate
// removes it.
func (l *LaneLimiter) Set(lim LaneLimit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim.PerSecond <= 0 {
		delete(l.limiters, lim.Lane)
		return
	}
	burst := lim.Burst
	if burst <= 0 {
		burst = 1
	}
	l.limiters[lim.Lane] = rate.NewLimiter(rate.Limit(lim.PerSecond), burst)
}

// Wait blocks until lane may run another attempt or ctx is done.
func (l *LaneLimiter) Wait(ctx context.Context, lane string) error {
	l.mu.RLock()
	lim := l.limiters[lane]
	l.mu.RUnlock()
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for lane %q: %w", lane, err)
	}
	return nil
}

// RateLimit returns middleware that waits for the entry's lane limiter
// before performing. The wait holds the attempt's concurrency slot.
func RateLimit(l *LaneLimiter) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		if err := l.Wait(ctx, e.Lane); err != nil {
			return err
		}
		return next(ctx)
	}
}
