// path: internal/store/repository.go

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// PostRepository implements postdomain.Repository over Postgres via gorm,
// mirroring the teacher's one-file-per-aggregate persistence package shape
// but collapsed to the single Post aggregate this system needs.
type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) FindByID(ctx context.Context, id uuid.UUID) (*postdomain.Post, error) {
	var m PostModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, postdomain.ErrPostNotFound
		}
		return nil, fmt.Errorf("store: find post %s: %w", id, err)
	}
	return fromModel(&m), nil
}

func (r *PostRepository) Create(ctx context.Context, p *postdomain.Post) error {
	m := toModel(p)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("store: create post %s: %w", p.ID(), err)
	}
	return nil
}

// Update persists p, conditioning the write on the version it was loaded
// with and incrementing it on success (§3.1 optimistic concurrency,
// §9 "optimistic concurrency over locks"). A mismatch means someone else
// saved in between; callers must treat that as postdomain.ErrVersionMismatch
// (TRANSIENT, §4.5.4).
func (r *PostRepository) Update(ctx context.Context, p *postdomain.Post) error {
	m := toModel(p)
	loadedVersion := m.Version
	m.Version = loadedVersion + 1

	result := r.db.WithContext(ctx).Model(&PostModel{}).
		Where("id = ? AND version = ?", p.ID(), loadedVersion).
		Select("*").
		Updates(m)
	if result.Error != nil {
		return fmt.Errorf("store: update post %s: %w", p.ID(), result.Error)
	}
	if result.RowsAffected == 0 {
		return postdomain.ErrVersionMismatch
	}
	return nil
}

func (r *PostRepository) FindDuePosts(ctx context.Context, at time.Time) ([]*postdomain.Post, error) {
	var models []PostModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(postdomain.StatusScheduled), at).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("store: find due posts: %w", err)
	}
	return toDomainSlice(models), nil
}

func (r *PostRepository) FindEarliestScheduled(ctx context.Context) (*time.Time, error) {
	var m PostModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL", string(postdomain.StatusScheduled)).
		Order("scheduled_at ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find earliest scheduled: %w", err)
	}
	return m.ScheduledAt, nil
}

func (r *PostRepository) FindByStatus(ctx context.Context, status postdomain.Status) ([]*postdomain.Post, error) {
	var models []PostModel
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("store: find by status %s: %w", status, err)
	}
	return toDomainSlice(models), nil
}

func (r *PostRepository) FindPublishingOlderThan(ctx context.Context, age time.Duration) ([]*postdomain.Post, error) {
	cutoff := time.Now().UTC().Add(-age)
	var models []PostModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(postdomain.StatusPublishing), cutoff).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("store: find stuck publishing posts: %w", err)
	}
	return toDomainSlice(models), nil
}

func (r *PostRepository) FindRecentDuplicate(ctx context.Context, contentHash string, excludeID uuid.UUID, window time.Duration) (*postdomain.Post, error) {
	since := time.Now().UTC().Add(-window)
	var m PostModel
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND id <> ?", contentHash, excludeID).
		Where("(status = ? AND published_at >= ?) OR status = ?",
			string(postdomain.StatusPublished), since, string(postdomain.StatusPublishing)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find recent duplicate: %w", err)
	}
	return fromModel(&m), nil
}

func toDomainSlice(models []PostModel) []*postdomain.Post {
	out := make([]*postdomain.Post, len(models))
	for i := range models {
		out[i] = fromModel(&models[i])
	}
	return out
}
