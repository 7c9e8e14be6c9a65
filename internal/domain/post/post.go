// path: internal/domain/post/post.go

package post

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// PostType selects the Threads container shape used at publish time.
type PostType string

const (
	PostTypeText     PostType = "TEXT"
	PostTypeImage    PostType = "IMAGE"
	PostTypeCarousel PostType = "CAROUSEL"
	PostTypeVideo    PostType = "VIDEO"
)

// Status is the lifecycle state of a Post (§4.5.2).
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusScheduled  Status = "SCHEDULED"
	StatusPublishing Status = "PUBLISHING"
	StatusPublished  Status = "PUBLISHED"
	StatusFailed     Status = "FAILED"
)

// CommentStatus tracks the optional reply-comment side effect independently
// of the main post's status.
type CommentStatus string

const (
	CommentStatusNone    CommentStatus = "NONE"
	CommentStatusPending CommentStatus = "PENDING"
	CommentStatusPosting CommentStatus = "POSTING"
	CommentStatusPosted  CommentStatus = "POSTED"
	CommentStatusFailed  CommentStatus = "FAILED"
)

// RecurrencePattern selects how ScheduleConfig advances after a publish.
type RecurrencePattern string

const (
	PatternOnce      RecurrencePattern = "ONCE"
	PatternWeekly    RecurrencePattern = "WEEKLY"
	PatternMonthly   RecurrencePattern = "MONTHLY"
	PatternDateRange RecurrencePattern = "DATE_RANGE"
)

const maxContentCodePoints = 500
const maxCarouselImages = 10

// ScheduleConfig is the recurrence descriptor embedded in a Post (§3.3).
type ScheduleConfig struct {
	Pattern     RecurrencePattern
	ScheduledAt time.Time
	Time        string // "HH:MM", interpreted in the TZ env var
	DaysOfWeek  []int  // 0=Sunday .. 6=Saturday, for WEEKLY
	DayOfMonth  int    // for MONTHLY
	EndDate     *time.Time
}

func (c ScheduleConfig) validate() error {
	switch c.Pattern {
	case PatternOnce, PatternWeekly, PatternMonthly, PatternDateRange:
	default:
		return ErrInvalidScheduleConfig
	}
	if c.Pattern == PatternWeekly && len(c.DaysOfWeek) == 0 {
		return ErrInvalidScheduleConfig
	}
	if c.Pattern == PatternMonthly && (c.DayOfMonth < 1 || c.DayOfMonth > 31) {
		return ErrInvalidScheduleConfig
	}
	return nil
}

// PublishingProgress is an ephemeral, UI-facing record of pipeline progress.
// It is not part of the status machine and carries no correctness weight.
type PublishingProgress struct {
	StepLabel     string
	StartedAt     time.Time
	LastUpdatedAt time.Time
	Status        string
	Error         string
}

// ExecutionLock is the store-side mutex described in §4.4.1.
type ExecutionLock struct {
	LockedBy  string
	LockedAt  time.Time
	ExpiresAt time.Time
}

func (l *ExecutionLock) expired(now time.Time) bool {
	return l == nil || now.After(l.ExpiresAt)
}

// Post is the unit of work: a Threads post and its publishing lifecycle.
type Post struct {
	id        uuid.UUID
	content   string
	postType  PostType
	imageURLs []string
	videoURL  string
	comment   string
	accountID *uuid.UUID

	status         Status
	scheduledAt    *time.Time
	scheduleConfig *ScheduleConfig
	publishedAt    *time.Time

	platformPostID    string
	platformCommentID string
	commentStatus     CommentStatus
	commentRetryCount int
	commentError      string

	contentHash         string
	publishingProgress  *PublishingProgress
	executionLock       *ExecutionLock

	lastError       string
	errorCategory   ErrorCategory
	suggestedAction string

	version int64

	createdAt time.Time
	updatedAt time.Time
}

// NewPostInput groups the fields a caller supplies when drafting a post.
type NewPostInput struct {
	Content   string
	PostType  PostType
	ImageURLs []string
	VideoURL  string
	Comment   string
	AccountID *uuid.UUID
}

// NewPost validates and constructs a DRAFT post.
func NewPost(in NewPostInput) (*Post, error) {
	content := norm.NFC.String(in.Content)
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxContentCodePoints {
		return nil, ErrContentTooLong
	}

	imageURLs := in.ImageURLs
	if in.PostType == PostTypeCarousel && len(imageURLs) > maxCarouselImages {
		imageURLs = imageURLs[:maxCarouselImages]
	}

	switch in.PostType {
	case PostTypeText:
		if len(imageURLs) > 0 || in.VideoURL != "" {
			return nil, ErrTextPostHasMedia
		}
	case PostTypeImage, PostTypeCarousel:
		if len(imageURLs) == 0 {
			return nil, ErrMediaRequired
		}
	case PostTypeVideo:
		if in.VideoURL == "" {
			return nil, ErrMediaRequired
		}
	default:
		return nil, ErrInvalidPostType
	}

	now := time.Now().UTC()
	p := &Post{
		id:            uuid.New(),
		content:       content,
		postType:      in.PostType,
		imageURLs:     imageURLs,
		videoURL:      in.VideoURL,
		comment:       in.Comment,
		accountID:     in.AccountID,
		status:        StatusDraft,
		commentStatus: CommentStatusNone,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}
	p.contentHash = p.computeContentHash()
	return p, nil
}

// Reconstruct rebuilds a Post from persisted state without re-running
// creation-time validation.
func Reconstruct(
	id uuid.UUID,
	content string,
	postType PostType,
	imageURLs []string,
	videoURL string,
	comment string,
	accountID *uuid.UUID,
	status Status,
	scheduledAt *time.Time,
	scheduleConfig *ScheduleConfig,
	publishedAt *time.Time,
	platformPostID string,
	platformCommentID string,
	commentStatus CommentStatus,
	commentRetryCount int,
	commentError string,
	contentHash string,
	publishingProgress *PublishingProgress,
	executionLock *ExecutionLock,
	lastError string,
	errorCategory ErrorCategory,
	suggestedAction string,
	version int64,
	createdAt, updatedAt time.Time,
) *Post {
	return &Post{
		id:                  id,
		content:             content,
		postType:            postType,
		imageURLs:           imageURLs,
		videoURL:            videoURL,
		comment:             comment,
		accountID:           accountID,
		status:              status,
		scheduledAt:         scheduledAt,
		scheduleConfig:      scheduleConfig,
		publishedAt:         publishedAt,
		platformPostID:      platformPostID,
		platformCommentID:   platformCommentID,
		commentStatus:       commentStatus,
		commentRetryCount:   commentRetryCount,
		commentError:        commentError,
		contentHash:         contentHash,
		publishingProgress:  publishingProgress,
		executionLock:       executionLock,
		lastError:           lastError,
		errorCategory:       errorCategory,
		suggestedAction:     suggestedAction,
		version:             version,
		createdAt:           createdAt,
		updatedAt:           updatedAt,
	}
}

// Getters.
func (p *Post) ID() uuid.UUID                           { return p.id }
func (p *Post) Content() string                         { return p.content }
func (p *Post) PostType() PostType                      { return p.postType }
func (p *Post) ImageURLs() []string                     { return p.imageURLs }
func (p *Post) VideoURL() string                        { return p.videoURL }
func (p *Post) Comment() string                         { return p.comment }
func (p *Post) AccountID() *uuid.UUID                   { return p.accountID }
func (p *Post) Status() Status                          { return p.status }
func (p *Post) ScheduledAt() *time.Time                 { return p.scheduledAt }
func (p *Post) ScheduleConfig() *ScheduleConfig         { return p.scheduleConfig }
func (p *Post) PublishedAt() *time.Time                 { return p.publishedAt }
func (p *Post) PlatformPostID() string                  { return p.platformPostID }
func (p *Post) PlatformCommentID() string               { return p.platformCommentID }
func (p *Post) CommentStatus() CommentStatus             { return p.commentStatus }
func (p *Post) CommentRetryCount() int                  { return p.commentRetryCount }
func (p *Post) CommentError() string                    { return p.commentError }
func (p *Post) ContentHash() string                     { return p.contentHash }
func (p *Post) PublishingProgress() *PublishingProgress { return p.publishingProgress }
func (p *Post) ExecutionLock() *ExecutionLock           { return p.executionLock }
func (p *Post) LastError() string                       { return p.lastError }
func (p *Post) ErrorCategory() ErrorCategory             { return p.errorCategory }
func (p *Post) SuggestedAction() string                 { return p.suggestedAction }
func (p *Post) Version() int64                          { return p.version }
func (p *Post) CreatedAt() time.Time                    { return p.createdAt }
func (p *Post) UpdatedAt() time.Time                    { return p.updatedAt }

func (p *Post) touch() {
	p.updatedAt = time.Now().UTC()
}

// SyncVersionForRetry adopts current's version token so a retried Update
// can succeed against the latest stored row after an ErrVersionMismatch.
// The mutations already applied to p are left untouched; only the
// optimistic-concurrency counter moves forward.
func (p *Post) SyncVersionForRetry(current *Post) {
	p.version = current.version
}

// computeContentHash is SHA-256 over content || NUL || imageUrls joined by
// NUL || NUL || videoUrl, recomputed on every publish attempt (§4.4.4).
func (p *Post) computeContentHash() string {
	var b strings.Builder
	b.WriteString(norm.NFC.String(p.content))
	b.WriteByte(0)
	b.WriteString(strings.Join(p.imageURLs, "\x00"))
	b.WriteByte(0)
	b.WriteString(p.videoURL)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// RecomputeContentHash refreshes ContentHash from current content/media so
// edits made since the last attempt are detected.
func (p *Post) RecomputeContentHash() string {
	p.contentHash = p.computeContentHash()
	return p.contentHash
}

// Schedule transitions DRAFT -> SCHEDULED (§6.2 SchedulePost).
func (p *Post) Schedule(at time.Time, cfg *ScheduleConfig) error {
	if p.status != StatusDraft && p.status != StatusFailed {
		return ErrNotDraft
	}
	if at.Before(time.Now()) {
		return ErrScheduleTimeInPast
	}
	if cfg != nil {
		if err := cfg.validate(); err != nil {
			return err
		}
	}
	p.status = StatusScheduled
	p.scheduledAt = &at
	p.scheduleConfig = cfg
	p.touch()
	return nil
}

// Cancel reverts a SCHEDULED post to DRAFT (§6.2 CancelScheduled).
func (p *Post) Cancel() error {
	if p.status != StatusScheduled {
		return ErrCannotCancel
	}
	p.status = StatusDraft
	p.scheduledAt = nil
	p.touch()
	return nil
}

// RetryFailed reverts a FAILED post to DRAFT (§6.2 RetryFailed).
func (p *Post) RetryFailed() error {
	if p.status != StatusFailed {
		return ErrNotFailed
	}
	p.status = StatusDraft
	p.lastError = ""
	p.errorCategory = ""
	p.suggestedAction = ""
	p.touch()
	return nil
}

// BeginPublishing claims the post for the pipeline (DRAFT/SCHEDULED ->
// PUBLISHING) and initialises publishingProgress. It does not check the
// execution lock: the worker pipeline calls it while holding the lock,
// Scheduler.ProcessDueTick calls it for each due post without one.
func (p *Post) BeginPublishing() error {
	if p.status != StatusDraft && p.status != StatusScheduled {
		return ErrNotScheduled
	}
	now := time.Now().UTC()
	p.status = StatusPublishing
	p.publishingProgress = &PublishingProgress{
		StepLabel:     "validating",
		StartedAt:     now,
		LastUpdatedAt: now,
		Status:        "in_progress",
	}
	p.touch()
	return nil
}

// UpdateProgress records the adapter's current pipeline step.
func (p *Post) UpdateProgress(stepLabel string) {
	if p.publishingProgress == nil {
		p.publishingProgress = &PublishingProgress{StartedAt: time.Now().UTC()}
	}
	p.publishingProgress.StepLabel = stepLabel
	p.publishingProgress.LastUpdatedAt = time.Now().UTC()
}

// MarkPublished records a successful publish (§4.5.1 step 9).
func (p *Post) MarkPublished(platformPostID string) error {
	if p.status != StatusPublishing {
		return ErrNotPublishing
	}
	now := time.Now().UTC()
	p.status = StatusPublished
	p.platformPostID = platformPostID
	p.publishedAt = &now
	if p.publishingProgress != nil {
		p.publishingProgress.Status = "done"
		p.publishingProgress.LastUpdatedAt = now
	}
	p.touch()
	return nil
}

// AdvanceRecurrence re-enters SCHEDULED with the next firing instant,
// clearing platformPostID so the next publish starts fresh (§4.1.4).
func (p *Post) AdvanceRecurrence(next time.Time) {
	p.status = StatusScheduled
	p.scheduledAt = &next
	p.platformPostID = ""
	p.publishedAt = nil
	p.touch()
}

// RollbackToScheduled reverts a failed PUBLISHING attempt to SCHEDULED,
// used for RETRYABLE failures of posts that arrived via the scheduler.
func (p *Post) RollbackToScheduled(at time.Time, category ErrorCategory, lastErr, suggestedAction string) {
	p.status = StatusScheduled
	p.scheduledAt = &at
	p.recordError(category, lastErr, suggestedAction)
}

// RollbackToDraft reverts a failed PUBLISHING attempt to DRAFT, used for
// RETRYABLE failures of posts published manually (no scheduledAt).
func (p *Post) RollbackToDraft(category ErrorCategory, lastErr, suggestedAction string) {
	p.status = StatusDraft
	p.recordError(category, lastErr, suggestedAction)
}

// MarkFailed terminates the post in FAILED (FATAL errors, or a RETRYABLE
// error that has exhausted its queue attempts).
func (p *Post) MarkFailed(category ErrorCategory, lastErr, suggestedAction string) {
	p.status = StatusFailed
	p.recordError(category, lastErr, suggestedAction)
}

func (p *Post) recordError(category ErrorCategory, lastErr, suggestedAction string) {
	p.lastError = lastErr
	p.errorCategory = category
	p.suggestedAction = suggestedAction
	if p.publishingProgress != nil {
		p.publishingProgress.Status = "failed"
		p.publishingProgress.Error = lastErr
		p.publishingProgress.LastUpdatedAt = time.Now().UTC()
	}
	p.touch()
}

// BeginCommentRetry enters the commentOnlyRetry branch (§4.5.3).
func (p *Post) BeginCommentRetry(maxRetries int) error {
	if p.status != StatusPublished {
		return ErrNoCommentPending
	}
	if p.commentRetryCount >= maxRetries {
		return ErrCommentRetriesExceeded
	}
	p.commentStatus = CommentStatusPosting
	p.commentRetryCount++
	p.touch()
	return nil
}

// MarkCommentPosted records a successful reply comment.
func (p *Post) MarkCommentPosted(platformCommentID string) {
	p.commentStatus = CommentStatusPosted
	p.platformCommentID = platformCommentID
	p.commentError = ""
	p.touch()
}

// MarkCommentFailed records a failed reply comment without touching the
// main post's status (§4.5.3: "on failure, set FAILED, record the error").
func (p *Post) MarkCommentFailed(reason string) {
	p.commentStatus = CommentStatusFailed
	p.commentError = reason
	p.touch()
}

// AcquireExecutionLock claims the lock if absent or expired (§4.4.1).
func (p *Post) AcquireExecutionLock(workerID string, ttl time.Duration) error {
	now := time.Now().UTC()
	if !p.executionLock.expired(now) && p.executionLock.LockedBy != workerID {
		return ErrExecutionLockHeld
	}
	p.executionLock = &ExecutionLock{LockedBy: workerID, LockedAt: now, ExpiresAt: now.Add(ttl)}
	return nil
}

// ReleaseExecutionLock clears the lock if still held by workerID.
func (p *Post) ReleaseExecutionLock(workerID string) {
	if p.executionLock != nil && p.executionLock.LockedBy == workerID {
		p.executionLock = nil
	}
}

// IsDue reports whether a SCHEDULED post's scheduledAt falls within the
// batch window ending at now+w.
func (p *Post) IsDue(now time.Time, w time.Duration) bool {
	if p.status != StatusScheduled || p.scheduledAt == nil {
		return false
	}
	return !p.scheduledAt.After(now.Add(w))
}

// AlreadyPublished is the §4.4.3 idempotent-replay guard.
func (p *Post) AlreadyPublished() bool {
	return p.status == StatusPublished && p.platformPostID != ""
}

// CanPublish is the §4.5.1 step-1 pre-check.
func (p *Post) CanPublish() bool {
	return p.status == StatusDraft || p.status == StatusScheduled
}

// RepairStuck applies the §4.5.5 stalled-job recovery rule to a post found
// stuck in PUBLISHING: if platformPostId is already set, the publish itself
// succeeded and only the final save crashed, so the post is marked
// PUBLISHED; otherwise it is marked FAILED. A no-op if p is not PUBLISHING.
func (p *Post) RepairStuck() {
	if p.status != StatusPublishing {
		return
	}
	if p.platformPostID != "" {
		now := time.Now().UTC()
		p.status = StatusPublished
		p.publishedAt = &now
		if p.publishingProgress != nil {
			p.publishingProgress.Status = "done"
			p.publishingProgress.LastUpdatedAt = now
		}
		p.touch()
		return
	}
	p.MarkFailed(ErrorCategoryFatal, "worker crashed during processing", "investigate worker logs; republish manually if needed")
}
