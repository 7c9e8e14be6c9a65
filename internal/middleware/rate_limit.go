// path: internal/middleware/rate_limit.go
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
)

// RateLimitConfig holds rate limiting configuration for the admin HTTP
// surface. This is independent of the §5 Threads-API rate limit the worker
// pool enforces with platform.RateLimiter — this one protects the admin
// endpoints themselves from abuse.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	KeyPrefix         string
}

var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerWindow: 100,
	WindowDuration:    time.Minute,
	KeyPrefix:         "admin:ratelimit:ip",
}

// RateLimiter implements sliding-window rate limiting over Redis for the
// admin HTTP surface.
type RateLimiter struct {
	redis  *redis.Client
	logger common.Logger
}

func NewRateLimiter(redis *redis.Client, logger common.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, logger: logger}
}

// RateLimitByIP limits requests per client IP.
func (rl *RateLimiter) RateLimitByIP(config RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", config.KeyPrefix, extractIP(r))

			allowed, remaining, resetAt, err := rl.checkRateLimit(r.Context(), key, config)
			if err != nil {
				rl.logger.Error("rate limit check failed", "error", err)
				next.ServeHTTP(w, r) // fail open
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetAt).Seconds()), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "rate limit exceeded",
					"retryAfter": int(time.Until(resetAt).Seconds()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, resetAt time.Time, err error) {
	now := time.Now()
	windowStart := now.Add(-config.WindowDuration)

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: fmt.Sprintf("%d", now.UnixNano())})
	pipe.Expire(ctx, key, config.WindowDuration+time.Minute)

	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count := int(countCmd.Val())
	resetAt = now.Add(config.WindowDuration)
	if count >= config.RequestsPerWindow {
		return false, 0, resetAt, nil
	}
	return true, config.RequestsPerWindow - count - 1, resetAt, nil
}

// ClearRateLimit clears rate limit state for a key (admin escape hatch).
func (rl *RateLimiter) ClearRateLimit(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, key).Err()
}
