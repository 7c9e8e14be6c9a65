// path: internal/platform/ratelimiter.go

package platform

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests with one token bucket per
// credential id, so multiple Threads accounts in one process don't share a
// bucket and there is no process-wide budget. Each bucket holds
// requestsPerMinute tokens and refills at requestsPerMinute per minute; it
// is not a strict rolling window, so a full bucket plus its refill can pass
// more than requestsPerMinute requests within one 60s span.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    requestsPerMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(credentialID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, ok := rl.limiters[credentialID]
	rl.mu.RUnlock()
	if ok {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.limiters[credentialID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[credentialID] = limiter
	return limiter
}

// Wait blocks until the budget for credentialID allows another request.
func (rl *RateLimiter) Wait(ctx context.Context, credentialID string) error {
	return rl.limiterFor(credentialID).Wait(ctx)
}
