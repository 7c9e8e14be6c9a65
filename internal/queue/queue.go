// path: internal/queue/queue.go

package queue

import (
	"context"
	"time"
)

// EnqueueOptions controls delayed delivery, idempotency and retry policy
// for a single job (§3.2, §4.2).
type EnqueueOptions struct {
	// Delay before the job becomes ready. Zero means "ready now".
	Delay time.Duration
	// MaxAttempts caps retries on Fail before the job moves to the DLQ.
	MaxAttempts int
	// BackoffBase is the exponential backoff base (default 2s).
	BackoffBase time.Duration
}

// Queue is the durable, delayed, idempotent job queue described in §4.2. A
// single Queue value serves every logical queue name passed to its methods,
// mirroring how one Redis connection backs both "publish" and
// "scheduler-tick" in production.
type Queue interface {
	// Enqueue is idempotent by jobID: a duplicate id is a no-op that
	// returns nil.
	Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts EnqueueOptions) error

	// Dequeue promotes any due delayed jobs, then blocks up to timeout for
	// a ready job. It returns (nil, nil) on timeout with nothing ready.
	Dequeue(ctx context.Context, queueName string, lockDuration, timeout time.Duration) (*Job, error)

	// Heartbeat extends a reserved job's stall deadline; callers on long
	// jobs must call this more often than lockDuration.
	Heartbeat(ctx context.Context, queueName, jobID string, lockDuration time.Duration) error

	// Complete removes a job from the processing set after success.
	Complete(ctx context.Context, queueName, jobID string) error

	// Fail requeues the job with exponential backoff if attempts remain,
	// otherwise moves it to the dead-letter list.
	Fail(ctx context.Context, queueName, jobID string, reason string) error

	// Remove removes a waiting or delayed job. It is a no-op if the job is
	// active (currently being processed) or already gone — §4.1.2 step 4
	// requires removal attempts to never fail the caller.
	Remove(ctx context.Context, queueName, jobID string) error

	// ReclaimStalled scans the processing set for jobs whose heartbeat has
	// expired, re-queues them (up to maxStalledCount) or moves them to the
	// DLQ, and returns the ids reclaimed for retry.
	ReclaimStalled(ctx context.Context, queueName string, maxStalledCount int) ([]string, error)

	// Len reports the combined count of delayed+ready jobs, for admin and
	// tests.
	Len(ctx context.Context, queueName string) (int64, error)

	// Close waits up to timeout for the processing set to drain. It does
	// not close the underlying Redis client.
	Close(ctx context.Context, timeout time.Duration) error
}
