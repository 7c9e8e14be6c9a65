// path: internal/queue/redis_queue_test.go

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueue(client), mr
}

func TestEnqueueIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "publish", "job-1", []byte(`{"postId":"a"}`), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "publish", "job-1", []byte(`{"postId":"b"}`), EnqueueOptions{}); err != nil {
		t.Fatalf("duplicate enqueue should be a no-op, got error: %v", err)
	}

	n, err := q.Len(ctx, "publish")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single logical job after duplicate enqueue, got %d", n)
	}
}

func TestDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "publish", "job-1", []byte(`{"postId":"a"}`), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx, "publish", 5*time.Minute, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil || job.ID != "job-1" {
		t.Fatalf("expected job-1, got %+v", job)
	}

	if err := q.Complete(ctx, "publish", job.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestCompleteRecordsCappedHistory(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	for i := 0; i < completedKeep+5; i++ {
		id := "job-" + time.Now().UTC().Format("150405.000000000") + "-" + string(rune('a'+i%26))
		if err := q.Enqueue(ctx, "publish", id, []byte(`{}`), EnqueueOptions{}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		job, err := q.Dequeue(ctx, "publish", time.Minute, time.Second)
		if err != nil || job == nil {
			t.Fatalf("dequeue %s: %v", id, err)
		}
		if err := q.Complete(ctx, "publish", job.ID); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}

	n, err := client.LLen(ctx, "queue:publish:completed").Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != completedKeep {
		t.Fatalf("expected completed history capped at %d, got %d", completedKeep, n)
	}
}

func TestDelayedEnqueueNotReadyUntilDue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "scheduler-tick", "tick-1", []byte(`{}`), EnqueueOptions{Delay: 500 * time.Millisecond}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx, "scheduler-tick", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no ready job before delay elapses, got %+v", job)
	}

	// Due times are wall-clock scores, so real time has to pass; miniredis
	// FastForward only moves key TTLs.
	time.Sleep(600 * time.Millisecond)

	job, err = q.Dequeue(ctx, "scheduler-tick", time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("dequeue after delay: %v", err)
	}
	if job == nil || job.ID != "tick-1" {
		t.Fatalf("expected tick-1 ready after delay, got %+v", job)
	}
}

func TestFailRequeuesWithBackoffThenDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "publish", "job-1", []byte(`{}`), EnqueueOptions{MaxAttempts: 2, BackoffBase: time.Second}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx, "publish", time.Minute, time.Second)
	if job == nil {
		t.Fatal("expected job")
	}

	if err := q.Fail(ctx, "publish", job.ID, "transient error"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	time.Sleep(1100 * time.Millisecond) // past the 1s backoff of attempt 1
	job, err := q.Dequeue(ctx, "publish", time.Minute, time.Second)
	if err != nil {
		t.Fatalf("dequeue retry: %v", err)
	}
	if job == nil {
		t.Fatal("expected job requeued after first failure")
	}

	if err := q.Fail(ctx, "publish", job.ID, "fatal on retry"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	dlqLen, err := mr.Llen("queue:publish:dlq")
	if err != nil {
		t.Fatalf("llen dlq: %v", err)
	}
	if dlqLen != 1 {
		t.Fatalf("expected job in dlq after exhausting attempts, got llen=%d", dlqLen)
	}
}

func TestReclaimStalled(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "publish", "job-1", []byte(`{}`), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx, "publish", time.Second, time.Second)
	if job == nil {
		t.Fatal("expected job")
	}

	time.Sleep(1100 * time.Millisecond) // past the 1s lock duration

	reclaimed, err := q.ReclaimStalled(ctx, "publish", 2)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "job-1" {
		t.Fatalf("expected job-1 reclaimed, got %v", reclaimed)
	}
}

func TestRemoveIsNoOpForActiveJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "scheduler-tick", "tick-1", []byte(`{}`), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, _ := q.Dequeue(ctx, "scheduler-tick", time.Minute, time.Second)
	if job == nil {
		t.Fatal("expected job")
	}

	if err := q.Remove(ctx, "scheduler-tick", job.ID); err != nil {
		t.Fatalf("remove active job should not error: %v", err)
	}
}
