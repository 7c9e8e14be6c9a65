// path: internal/store/model.go

package store

import (
	"time"

	"github.com/google/uuid"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// PostModel is the gorm row backing postdomain.Post. Nested value types
// (ScheduleConfig, PublishingProgress, ExecutionLock) are flattened into
// columns rather than JSON blobs so the scheduler's indexed queries
// (status, scheduledAt) stay plain SQL.
type PostModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	PostType  string    `gorm:"type:varchar(16);not null"`
	ImageURLs string    `gorm:"type:text"` // NUL-joined; see joinURLs/splitURLs in codec.go
	VideoURL  string    `gorm:"type:text"`
	Comment   string    `gorm:"type:text"`
	AccountID *uuid.UUID `gorm:"type:uuid;index"`

	Status      string     `gorm:"type:varchar(16);not null;index"`
	ScheduledAt *time.Time `gorm:"index"`
	PublishedAt *time.Time

	SchedulePattern    string `gorm:"type:varchar(16)"`
	ScheduleDaysOfWeek string `gorm:"type:varchar(32)"` // comma-separated ints
	ScheduleDayOfMonth int
	ScheduleTime       string `gorm:"type:varchar(8)"`
	ScheduleEndDate    *time.Time

	PlatformPostID    string `gorm:"type:varchar(128);index"`
	PlatformCommentID string `gorm:"type:varchar(128)"`
	CommentStatus     string `gorm:"type:varchar(16);not null"`
	CommentRetryCount int
	CommentError      string `gorm:"type:text"`

	ContentHash string `gorm:"type:varchar(64);index"`

	ProgressStepLabel     string
	ProgressStartedAt     *time.Time
	ProgressLastUpdatedAt *time.Time
	ProgressStatus        string
	ProgressError         string

	LockedBy  string
	LockedAt  *time.Time
	ExpiresAt *time.Time

	LastError       string `gorm:"type:text"`
	ErrorCategory   string `gorm:"type:varchar(16)"`
	SuggestedAction string `gorm:"type:text"`

	Version int64 `gorm:"not null;default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PostModel) TableName() string { return "posts" }

// CredentialModel stores the encrypted Threads credential (§3.1, read-only
// to the core otherwise).
type CredentialModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlatformUserID    string    `gorm:"type:varchar(128);not null"`
	AccessTokenCipher string    `gorm:"type:text;not null"`
	ExpiresAt         time.Time
	IsDefault         bool `gorm:"index"`
}

func (CredentialModel) TableName() string { return "credentials" }

func toModel(p *postdomain.Post) *PostModel {
	m := &PostModel{
		ID:                p.ID(),
		Content:           p.Content(),
		PostType:          string(p.PostType()),
		ImageURLs:         joinURLs(p.ImageURLs()),
		VideoURL:          p.VideoURL(),
		Comment:           p.Comment(),
		AccountID:         p.AccountID(),
		Status:            string(p.Status()),
		ScheduledAt:       p.ScheduledAt(),
		PublishedAt:       p.PublishedAt(),
		PlatformPostID:    p.PlatformPostID(),
		PlatformCommentID: p.PlatformCommentID(),
		CommentStatus:     string(p.CommentStatus()),
		CommentRetryCount: p.CommentRetryCount(),
		CommentError:      p.CommentError(),
		ContentHash:       p.ContentHash(),
		LastError:         p.LastError(),
		ErrorCategory:     string(p.ErrorCategory()),
		SuggestedAction:   p.SuggestedAction(),
		Version:           p.Version(),
		CreatedAt:         p.CreatedAt(),
		UpdatedAt:         p.UpdatedAt(),
	}

	if cfg := p.ScheduleConfig(); cfg != nil {
		m.SchedulePattern = string(cfg.Pattern)
		m.ScheduleDaysOfWeek = joinInts(cfg.DaysOfWeek)
		m.ScheduleDayOfMonth = cfg.DayOfMonth
		m.ScheduleTime = cfg.Time
		m.ScheduleEndDate = cfg.EndDate
	}

	if pr := p.PublishingProgress(); pr != nil {
		m.ProgressStepLabel = pr.StepLabel
		m.ProgressStartedAt = &pr.StartedAt
		m.ProgressLastUpdatedAt = &pr.LastUpdatedAt
		m.ProgressStatus = pr.Status
		m.ProgressError = pr.Error
	}

	if lock := p.ExecutionLock(); lock != nil {
		m.LockedBy = lock.LockedBy
		m.LockedAt = &lock.LockedAt
		m.ExpiresAt = &lock.ExpiresAt
	}

	return m
}

func fromModel(m *PostModel) *postdomain.Post {
	var cfg *postdomain.ScheduleConfig
	if m.SchedulePattern != "" {
		cfg = &postdomain.ScheduleConfig{
			Pattern:    postdomain.RecurrencePattern(m.SchedulePattern),
			DaysOfWeek: splitInts(m.ScheduleDaysOfWeek),
			DayOfMonth: m.ScheduleDayOfMonth,
			Time:       m.ScheduleTime,
			EndDate:    m.ScheduleEndDate,
		}
		if m.ScheduledAt != nil {
			cfg.ScheduledAt = *m.ScheduledAt
		}
	}

	var progress *postdomain.PublishingProgress
	if m.ProgressStepLabel != "" || m.ProgressStatus != "" {
		progress = &postdomain.PublishingProgress{
			StepLabel: m.ProgressStepLabel,
			Status:    m.ProgressStatus,
			Error:     m.ProgressError,
		}
		if m.ProgressStartedAt != nil {
			progress.StartedAt = *m.ProgressStartedAt
		}
		if m.ProgressLastUpdatedAt != nil {
			progress.LastUpdatedAt = *m.ProgressLastUpdatedAt
		}
	}

	var lock *postdomain.ExecutionLock
	if m.LockedBy != "" && m.LockedAt != nil && m.ExpiresAt != nil {
		lock = &postdomain.ExecutionLock{LockedBy: m.LockedBy, LockedAt: *m.LockedAt, ExpiresAt: *m.ExpiresAt}
	}

	return postdomain.Reconstruct(
		m.ID,
		m.Content,
		postdomain.PostType(m.PostType),
		splitURLs(m.ImageURLs),
		m.VideoURL,
		m.Comment,
		m.AccountID,
		postdomain.Status(m.Status),
		m.ScheduledAt,
		cfg,
		m.PublishedAt,
		m.PlatformPostID,
		m.PlatformCommentID,
		postdomain.CommentStatus(m.CommentStatus),
		m.CommentRetryCount,
		m.CommentError,
		m.ContentHash,
		progress,
		lock,
		m.LastError,
		postdomain.ErrorCategory(m.ErrorCategory),
		m.SuggestedAction,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)
}
