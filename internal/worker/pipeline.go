// path: internal/worker/pipeline.go

package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/platform"
	"github.com/techappsUT/threads-scheduler/internal/queue"
)

const platformName = "threads"

// minJobDeadline floors the per-job deadline derived from Config.JobTimeout
// so a job retried late in its budget still gets enough runway for one more
// adapter attempt instead of an instantly-expired context.
const minJobDeadline = 10 * time.Second

// heartbeatInterval is how often heartbeatWhileRunning refreshes a job's
// stall lease; it must stay comfortably inside LockDuration.
const heartbeatInterval = 30 * time.Second

// jobContext derives an adapter-call deadline from Config.JobTimeout and the
// time the job first entered the queue, so retried jobs get less runway
// than fresh ones instead of resetting their budget on every attempt (§9
// design note: "a per-job deadline derived from JOB_TIMEOUT minus elapsed").
func (p *Pool) jobContext(ctx context.Context, job *queue.Job) (context.Context, context.CancelFunc) {
	if p.cfg.JobTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	remaining := p.cfg.JobTimeout - time.Since(job.CreatedAt)
	if remaining < minJobDeadline {
		remaining = minJobDeadline
	}
	return context.WithTimeout(ctx, remaining)
}

// heartbeatWhileRunning keeps a dequeued job's stall lease alive for the
// duration of a long adapter call (carousel container creation plus
// readiness polling can outlast LockDuration). The caller must invoke the
// returned cancel func as soon as the adapter call returns.
func (p *Pool) heartbeatWhileRunning(ctx context.Context, jobID string) context.CancelFunc {
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := p.q.Heartbeat(hbCtx, publishQueueName, jobID, p.cfg.LockDuration); err != nil {
					p.log.Warnw("heartbeat failed", "jobId", jobID, "error", err)
				}
			}
		}
	}()
	return cancel
}

// processPublishJob runs the full §4.5.1 pipeline for one dequeued job. It
// never returns an error to the caller: every outcome is resolved into
// either queue.Complete or queue.Fail so the publish loop can move on to the
// next job unconditionally.
func (p *Pool) processPublishJob(ctx context.Context, job *queue.Job) {
	var payload queue.PublishJobPayload
	if err := job.Unmarshal(&payload); err != nil {
		p.log.Errorw("bad publish payload, dropping", "jobId", job.ID, "error", err)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	postID, err := parsePostID(payload.PostID)
	if err != nil {
		p.log.Errorw("bad post id in payload, dropping", "jobId", job.ID, "error", err)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	if payload.CommentOnlyRetry {
		p.processCommentRetry(ctx, job, postID)
		return
	}

	pst, err := p.posts.FindByID(ctx, postID)
	if err != nil {
		p.log.Errorw("post lookup failed", "postId", postID, "error", err)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	// Step 1: idempotent-replay guard (§4.4.3). A job can be redelivered
	// after a crash between MarkPublished and queue.Complete.
	if pst.AlreadyPublished() {
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}
	if !pst.CanPublish() && pst.Status() != postdomain.StatusPublishing {
		p.log.Warnw("post not publishable, skipping", "postId", postID, "status", pst.Status())
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	// Step 2: duplicate-content guard (§4.4.2).
	contentHash := pst.RecomputeContentHash()
	if dup, err := p.posts.FindRecentDuplicate(ctx, contentHash, postID, p.cfg.DuplicationWindow); err == nil && dup != nil {
		pst.MarkFailed(postdomain.ErrorCategoryFatal, "duplicate of post "+dup.ID().String(), "edit the content before rescheduling")
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	// Step 3: execution lock (§4.4.1). Contention means another worker
	// already owns this post; exit quietly rather than retrying.
	if err := pst.AcquireExecutionLock(p.cfg.WorkerID, p.cfg.LockDuration); err != nil {
		p.log.Infow("execution lock held elsewhere, skipping", "postId", postID)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}
	defer pst.ReleaseExecutionLock(p.cfg.WorkerID)

	var accountID *uuid.UUID
	if payload.AccountID != "" {
		id, err := uuid.Parse(payload.AccountID)
		if err == nil {
			accountID = &id
		}
	}
	cred, err := p.creds.GetCredential(ctx, accountID)
	if err != nil {
		pst.MarkFailed(postdomain.ErrorCategoryFatal, "no credential available: "+err.Error(), "connect a Threads account before scheduling")
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}
	if !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Before(time.Now().Add(time.Hour)) {
		pst.MarkFailed(postdomain.ErrorCategoryFatal, "credential expires within the hour", "refresh the Threads credential for this account")
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	if pst.Status() != postdomain.StatusPublishing {
		if err := pst.BeginPublishing(); err != nil {
			p.log.Errorw("begin publishing failed", "postId", postID, "error", err)
			_ = p.q.Complete(ctx, publishQueueName, job.ID)
			return
		}
	}

	if err := p.limiter.Wait(ctx, cred.ID.String()); err != nil {
		_ = p.q.Fail(ctx, publishQueueName, job.ID, "rate limiter wait cancelled: "+err.Error())
		return
	}

	adapter, err := p.adapters.Get(platformName)
	if err != nil {
		pst.MarkFailed(postdomain.ErrorCategoryFatal, err.Error(), "no publishing adapter configured")
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	req := platform.PublishRequest{
		PostType:       string(pst.PostType()),
		Content:        pst.Content(),
		ImageURLs:      pst.ImageURLs(),
		VideoURL:       pst.VideoURL(),
		Comment:        pst.Comment(),
		SkipComment:    pst.Comment() == "",
		AccessToken:    cred.AccessToken,
		PlatformUserID: cred.PlatformUserID,
	}

	var progressMu sync.Mutex
	progress := func(step string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		pst.UpdateProgress(step)
	}

	jobCtx, cancelJobCtx := p.jobContext(ctx, job)
	defer cancelJobCtx()
	stopHeartbeat := p.heartbeatWhileRunning(jobCtx, job.ID)
	result, err := adapter.PublishPost(jobCtx, req, progress)
	stopHeartbeat()
	if err != nil {
		p.handlePublishFailure(ctx, job, pst, err)
		return
	}

	pst.MarkPublished(result.PlatformPostID)

	if result.CommentResult != nil {
		if result.CommentResult.Success {
			pst.MarkCommentPosted(result.CommentResult.CommentID)
		} else {
			pst.MarkCommentFailed(result.CommentResult.Error)
			if retryErr := pst.BeginCommentRetry(p.cfg.CommentMaxRetries); retryErr == nil {
				p.enqueueCommentRetry(ctx, pst)
			}
		}
	}

	p.advanceOrFinish(ctx, pst)
	p.savePost(ctx, pst)
	_ = p.q.Complete(ctx, publishQueueName, job.ID)
}

// advanceOrFinish re-arms a recurring post's next occurrence (§4.1.4),
// leaving one-off posts in PUBLISHED.
func (p *Pool) advanceOrFinish(ctx context.Context, pst *postdomain.Post) {
	cfg := pst.ScheduleConfig()
	if cfg == nil || cfg.Pattern == postdomain.PatternOnce {
		return
	}
	next, ok := postdomain.NextOccurrence(*cfg, time.Now().UTC(), p.cfg.Timezone)
	if !ok {
		return
	}
	pst.AdvanceRecurrence(next)
	if err := p.scheduler.OnPostScheduled(ctx, pst.ID().String(), next); err != nil {
		p.log.Errorw("failed to arm next recurrence", "postId", pst.ID(), "error", err)
	}
}

func isRecurring(pst *postdomain.Post) bool {
	cfg := pst.ScheduleConfig()
	return cfg != nil && cfg.Pattern != postdomain.PatternOnce
}

// rollbackRecurringToNextOccurrence arms the next firing instant for a
// recurring post whose final retry attempt still failed, so one bad
// instance does not terminate the whole series.
func (p *Pool) rollbackRecurringToNextOccurrence(ctx context.Context, pst *postdomain.Post, pubErr *platform.PublishError) {
	cfg := pst.ScheduleConfig()
	next, ok := postdomain.NextOccurrence(*cfg, time.Now().UTC(), p.cfg.Timezone)
	if !ok {
		pst.MarkFailed(pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
		return
	}
	pst.RollbackToScheduled(next, pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
	if err := p.scheduler.OnPostScheduled(ctx, pst.ID().String(), next); err != nil {
		p.log.Errorw("failed to arm next recurrence after exhausted retry", "postId", pst.ID(), "error", err)
	}
}

// handlePublishFailure implements the §4.5.4 rollback table: FATAL and an
// exhausted RETRYABLE terminate the post, a RETRYABLE with attempts
// remaining rolls back and lets the queue retry, TRANSIENT never touches
// the post at all.
func (p *Pool) handlePublishFailure(ctx context.Context, job *queue.Job, pst *postdomain.Post, err error) {
	pubErr, ok := err.(*platform.PublishError)
	if !ok {
		pubErr = &platform.PublishError{Category: postdomain.ErrorCategoryTransient, Message: err.Error(), SuggestedAction: "no action needed; the queue will retry automatically"}
	}

	switch pubErr.Category {
	case postdomain.ErrorCategoryFatal:
		pst.MarkFailed(pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)

	case postdomain.ErrorCategoryRetryable:
		exhausted := job.Attempts+1 >= job.MaxAttempts
		switch {
		case exhausted && isRecurring(pst):
			// Last attempt on a recurring post: rearm the series instead of
			// terminating it, per §7's "last rollback target is FAILED
			// (one-off) or SCHEDULED (recurring)".
			p.rollbackRecurringToNextOccurrence(ctx, pst, pubErr)
		case exhausted:
			pst.MarkFailed(pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
		case pst.ScheduledAt() != nil:
			pst.RollbackToScheduled(*pst.ScheduledAt(), pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
		default:
			pst.RollbackToDraft(pubErr.Category, pubErr.Message, pubErr.SuggestedAction)
		}
		p.savePost(ctx, pst)
		if exhausted {
			_ = p.q.Complete(ctx, publishQueueName, job.ID)
		} else {
			_ = p.q.Fail(ctx, publishQueueName, job.ID, pubErr.Message)
		}

	default: // TRANSIENT: leave the post untouched, let the queue retry.
		_ = p.q.Fail(ctx, publishQueueName, job.ID, pubErr.Message)
	}
}

// processCommentRetry handles the commentOnlyRetry branch of §4.5.3: the
// post already published successfully and only the reply comment needs
// another attempt.
func (p *Pool) processCommentRetry(ctx context.Context, job *queue.Job, postID uuid.UUID) {
	pst, err := p.posts.FindByID(ctx, postID)
	if err != nil {
		p.log.Errorw("comment retry post lookup failed", "postId", postID, "error", err)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	if err := pst.BeginCommentRetry(p.cfg.CommentMaxRetries); err != nil {
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	cred, err := p.creds.GetCredential(ctx, nil)
	if err != nil {
		pst.MarkCommentFailed(err.Error())
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	adapter, err := p.adapters.Get(platformName)
	if err != nil {
		pst.MarkCommentFailed(err.Error())
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	jobCtx, cancelJobCtx := p.jobContext(ctx, job)
	defer cancelJobCtx()
	stopHeartbeat := p.heartbeatWhileRunning(jobCtx, job.ID)
	result, err := adapter.PublishComment(jobCtx, pst.PlatformPostID(), pst.Comment(), cred.AccessToken, cred.PlatformUserID)
	stopHeartbeat()
	if err != nil || !result.Success {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = result.Error
		}
		pst.MarkCommentFailed(reason)
		if pst.CommentRetryCount() < p.cfg.CommentMaxRetries {
			p.enqueueCommentRetry(ctx, pst)
		}
		p.savePost(ctx, pst)
		_ = p.q.Complete(ctx, publishQueueName, job.ID)
		return
	}

	pst.MarkCommentPosted(result.CommentID)
	p.savePost(ctx, pst)
	_ = p.q.Complete(ctx, publishQueueName, job.ID)
}

func (p *Pool) enqueueCommentRetry(ctx context.Context, pst *postdomain.Post) {
	delay := time.Duration(pst.CommentRetryCount()) * time.Minute
	payload, err := json.Marshal(queue.PublishJobPayload{PostID: pst.ID().String(), CommentOnlyRetry: true})
	if err != nil {
		p.log.Errorw("failed to marshal comment retry payload", "postId", pst.ID(), "error", err)
		return
	}
	jobID := "comment-retry-" + pst.ID().String() + "-" + time.Now().UTC().Format("150405.000000000")
	if err := p.q.Enqueue(ctx, publishQueueName, jobID, payload, queue.EnqueueOptions{Delay: delay, MaxAttempts: 1}); err != nil {
		p.log.Errorw("failed to enqueue comment retry", "postId", pst.ID(), "error", err)
	}
}

// savePost persists pst, retrying a small number of times on an optimistic
// concurrency conflict (§4.5.1 step 9, §9 "optimistic concurrency over
// locks"). On ErrVersionMismatch it re-fetches the stored row and adopts its
// version before retrying, since reissuing the same (id, version) Update
// would just fail identically every time.
func (p *Pool) savePost(ctx context.Context, pst *postdomain.Post) {
	for attempt := 0; attempt < 3; attempt++ {
		err := p.posts.Update(ctx, pst)
		if err == nil {
			return
		}
		if !postdomain.IsConcurrencyError(err) {
			p.log.Errorw("failed to save post", "postId", pst.ID(), "error", err)
			return
		}
		current, findErr := p.posts.FindByID(ctx, pst.ID())
		if findErr != nil {
			p.log.Errorw("failed to refetch post after version conflict", "postId", pst.ID(), "error", findErr)
			return
		}
		pst.SyncVersionForRetry(current)
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	p.log.Errorw("failed to save post after retries on version conflict", "postId", pst.ID())
}
