// path: internal/application/common/interfaces.go
package common

import (
	"context"
	"time"
)

// ============================================================================
// CORE SERVICES
// ============================================================================

// CacheService handles caching operations. Unused by the scheduler/worker
// core today (it talks to Redis directly through queue.Queue and the
// scheduler's own keys) but kept for admin-surface read paths that want a
// cache in front of Repository.FindByStatus.
type CacheService interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// EventBus handles domain events.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler EventHandler) error
}

// Event represents a domain event.
type Event interface {
	Type() string
	OccurredAt() time.Time
	AggregateID() string
}

// EventHandler processes events.
type EventHandler func(ctx context.Context, event Event) error

// Logger handles structured logging. The concrete implementation wraps zap
// (internal/infrastructure/services/logger.go).
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}
