// path: internal/scheduler/scheduler.go

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/queue"
)

const (
	keyNextExecutionAt = "scheduler:nextExecutionAt"
	keyActiveJobID     = "scheduler:activeJobId"
	keyLock            = "scheduler:lock"

	tickQueueName = "scheduler-tick"

	lockTTL   = 10 * time.Second
	lockRetry = 5 * time.Second

	armAttempts  = 3
	armBackoffBase = 1 * time.Second
)

// Scheduler is the event-driven tick arming/rearming engine of §4.1. It
// keeps at most one delayed tick job in the queue, sized to fire at the
// earliest scheduledAt among all SCHEDULED posts. Only the scheduler
// enqueues and removes tick jobs; the worker pool's tick consumer dequeues
// them and calls back into the Scheduler only through ProcessDueTick
// (§9 cyclic-dependency note).
type Scheduler struct {
	redis  redis.UniversalClient
	queue  queue.Queue
	posts  postdomain.Repository
	log    *zap.SugaredLogger

	batchWindow time.Duration
}

func New(redisClient redis.UniversalClient, q queue.Queue, posts postdomain.Repository, log *zap.SugaredLogger, batchWindow time.Duration) *Scheduler {
	if batchWindow <= 0 {
		batchWindow = 5 * time.Second
	}
	return &Scheduler{redis: redisClient, queue: q, posts: posts, log: log, batchWindow: batchWindow}
}

// acquireLock implements the SETNX-with-expiry mutex of §3.3/§4.1.2.
func (s *Scheduler) acquireLock(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(lockRetry)
	for {
		ok, err := s.redis.SetNX(ctx, keyLock, "1", lockTTL).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *Scheduler) releaseLock(ctx context.Context) {
	s.redis.Del(ctx, keyLock)
}

// OnPostScheduled is called by the store after a post enters SCHEDULED.
func (s *Scheduler) OnPostScheduled(ctx context.Context, postID string, scheduledAt time.Time) error {
	return s.rearm(ctx, func(ctx context.Context, tCur *time.Time) (*time.Time, error) {
		if tCur != nil && tCur.Before(scheduledAt) {
			return tCur, nil
		}
		return &scheduledAt, nil
	})
}

// OnPostCancelled is called when a SCHEDULED post is deleted or reverted.
func (s *Scheduler) OnPostCancelled(ctx context.Context, postID string) error {
	return s.rearm(ctx, s.minimumScheduledTarget)
}

// ScheduleImmediateCheck is the admin escape hatch.
func (s *Scheduler) ScheduleImmediateCheck(ctx context.Context) error {
	now := time.Now().UTC()
	return s.rearm(ctx, func(ctx context.Context, tCur *time.Time) (*time.Time, error) {
		return &now, nil
	})
}

// Initialize reconstructs scheduler state at worker startup (§4.1.5).
func (s *Scheduler) Initialize(ctx context.Context) error {
	nextStr, err1 := s.redis.Get(ctx, keyNextExecutionAt).Result()
	jobID, err2 := s.redis.Get(ctx, keyActiveJobID).Result()

	if err1 == nil && err2 == nil && nextStr != "" && jobID != "" {
		// Both keys present; trust them if the Redis keys themselves exist —
		// the queue is the same store, so a present key implies the job
		// hasn't been consumed. Stronger verification would inspect queue
		// internals directly, which Scheduler intentionally does not do.
		return nil
	}

	s.redis.Del(ctx, keyNextExecutionAt, keyActiveJobID)
	return s.rearm(ctx, s.minimumScheduledTarget)
}

// ValidateConsistency is the periodic (60s) validator of §4.1.5.
func (s *Scheduler) ValidateConsistency(ctx context.Context) error {
	return s.rearm(ctx, s.minimumScheduledTarget)
}

func (s *Scheduler) minimumScheduledTarget(ctx context.Context, _ *time.Time) (*time.Time, error) {
	return s.posts.FindEarliestScheduled(ctx)
}

// rearm runs the §4.1.2 algorithm under scheduler:lock, retrying up to 3
// times with 1s/2s/4s backoff on failure before clearing state.
func (s *Scheduler) rearm(ctx context.Context, computeTarget func(ctx context.Context, tCur *time.Time) (*time.Time, error)) error {
	backoff := armBackoffBase
	var lastErr error
	for attempt := 0; attempt < armAttempts; attempt++ {
		if err := s.rearmOnce(ctx, computeTarget); err != nil {
			lastErr = err
			s.log.Warnw("scheduler rearm attempt failed", "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return nil
	}
	s.log.Errorw("scheduler rearm exhausted retries, clearing state", "error", lastErr)
	s.redis.Del(ctx, keyNextExecutionAt, keyActiveJobID)
	return fmt.Errorf("scheduler: rearm failed after %d attempts: %w", armAttempts, lastErr)
}

func (s *Scheduler) rearmOnce(ctx context.Context, computeTarget func(ctx context.Context, tCur *time.Time) (*time.Time, error)) error {
	locked, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("scheduler: could not acquire scheduler:lock")
	}
	defer s.releaseLock(ctx)

	var tCur *time.Time
	if raw, err := s.redis.Get(ctx, keyNextExecutionAt).Result(); err == nil && raw != "" {
		ms, parseErr := parseEpochMs(raw)
		if parseErr == nil {
			t := time.UnixMilli(ms).UTC()
			tCur = &t
		}
	}

	target, err := computeTarget(ctx, tCur)
	if err != nil {
		return err
	}

	if sameInstant(tCur, target) {
		return nil
	}

	if activeJobID, err := s.redis.Get(ctx, keyActiveJobID).Result(); err == nil && activeJobID != "" {
		_ = s.queue.Remove(ctx, tickQueueName, activeJobID)
	}

	if target == nil {
		s.redis.Del(ctx, keyNextExecutionAt, keyActiveJobID)
		return nil
	}

	jobID := fmt.Sprintf("scheduler-check-%d", target.UnixMilli())
	payload, _ := json.Marshal(queue.TickJobPayload{CheckTime: target.UnixMilli()})
	delay := time.Until(*target)
	if delay < 0 {
		delay = 0
	}
	if err := s.queue.Enqueue(ctx, tickQueueName, jobID, payload, queue.EnqueueOptions{Delay: delay, MaxAttempts: 1}); err != nil {
		return fmt.Errorf("scheduler: enqueue tick: %w", err)
	}

	if err := s.redis.Set(ctx, keyNextExecutionAt, target.UnixMilli(), 0).Err(); err != nil {
		return err
	}
	return s.redis.Set(ctx, keyActiveJobID, jobID, 0).Err()
}

// ProcessDueTick is invoked by the worker pool when a tick job fires
// (§4.1.3). It batches due posts onto the publish queue and re-arms.
func (s *Scheduler) ProcessDueTick(ctx context.Context, pq queue.Queue) error {
	now := time.Now().UTC()
	due, err := s.posts.FindDuePosts(ctx, now.Add(s.batchWindow))
	if err != nil {
		return fmt.Errorf("scheduler: find due posts: %w", err)
	}

	nowMs := now.UnixMilli()
	for i, p := range due {
		jobID := fmt.Sprintf("publish-%s-%d", p.ID(), nowMs)
		payload, _ := json.Marshal(queue.PublishJobPayload{PostID: p.ID().String()})
		if err := pq.Enqueue(ctx, "publish", jobID, payload, queue.EnqueueOptions{MaxAttempts: 3, BackoffBase: 2 * time.Second}); err != nil {
			s.log.Errorw("failed to enqueue due post", "postId", p.ID(), "error", err)
			continue
		}
		if err := p.BeginPublishing(); err != nil {
			s.log.Warnw("post not publishable at tick time", "postId", p.ID(), "error", err)
			continue
		}
		if err := s.posts.Update(ctx, p); err != nil {
			s.log.Errorw("failed to save PUBLISHING transition", "postId", p.ID(), "index", i, "error", err)
		}
	}

	return s.rearm(ctx, s.minimumScheduledTarget)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func parseEpochMs(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
