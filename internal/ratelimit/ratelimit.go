// Package ratelimit throttles outbound provider calls to a configured
// quota per time window, scoped per provider identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricepulse/pricepulse/internal/domain"
)

// Limiter admits outbound calls per provider. Safe for concurrent use
// by multiple polling jobs; admission serializes, the guarded call
// itself does not.
type Limiter struct {
	perMinute int
	maxWait   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Limiter allowing perMinute calls per provider, with
// maxWait bounding how long Acquire blocks for a permit.
func New(perMinute int, maxWait time.Duration) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Limiter{
		perMinute: perMinute,
		maxWait:   maxWait,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the provider's limiter, creating it on first use.
// The map lock is held only for the lookup, never across the wait.
func (l *Limiter) limiterFor(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), 1)
		l.limiters[provider] = lim
	}
	return lim
}

// Acquire blocks until a permit for the provider is available or the
// max wait (or the caller's context) expires, in which case it returns
// ErrRateLimitExceeded or the context error respectively.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.limiterFor(provider).Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ErrRateLimitExceeded
	}
	return nil
}

// Allow reports whether a permit is immediately available without
// consuming the caller's wait budget. Used by fail-fast paths.
func (l *Limiter) Allow(provider string) bool {
	return l.limiterFor(provider).Allow()
}
