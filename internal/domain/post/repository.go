// path: internal/domain/post/repository.go

package post

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the store-facing contract the core consumes (§6.2). All
// mutations are conditional on (id, version); a mismatch returns
// ErrVersionMismatch so callers can classify it TRANSIENT.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Post, error)
	Create(ctx context.Context, p *Post) error

	// Update persists p, asserting p.Version() against the stored row and
	// incrementing it on success.
	Update(ctx context.Context, p *Post) error

	// FindDuePosts returns SCHEDULED posts whose scheduledAt is at or
	// before the given instant, ordered ascending.
	FindDuePosts(ctx context.Context, at time.Time) ([]*Post, error)

	// FindEarliestScheduled returns the minimum scheduledAt across all
	// SCHEDULED posts, or nil if none are scheduled.
	FindEarliestScheduled(ctx context.Context) (*time.Time, error)

	// FindByStatus supports admin and stalled-job sweeps.
	FindByStatus(ctx context.Context, status Status) ([]*Post, error)

	// FindPublishingOlderThan supports the §4.5.5 startup sweep.
	FindPublishingOlderThan(ctx context.Context, age time.Duration) ([]*Post, error)

	// FindRecentDuplicate implements the §4.4.2 duplicate guard: a post
	// with the same content hash, PUBLISHED within window or currently
	// PUBLISHING, excluding excludeID.
	FindRecentDuplicate(ctx context.Context, contentHash string, excludeID uuid.UUID, window time.Duration) (*Post, error)
}

// Credential is read-only to the core (§3.1, §6.2).
type Credential struct {
	ID             uuid.UUID
	PlatformUserID string
	AccessToken    string
	ExpiresAt      time.Time
}

// CredentialLookup resolves a Credential by account id, or returns the
// caller's default credential when accountID is nil.
type CredentialLookup interface {
	GetCredential(ctx context.Context, accountID *uuid.UUID) (*Credential, error)
}
