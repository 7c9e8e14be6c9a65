// path: internal/queue/redis_queue.go

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue over a single redis.UniversalClient,
// generalising the teacher's list-based WorkerQueueService into the
// delayed/idempotent/stall-aware design of §4.2: a ZSET of delayed jobs
// keyed by ready time, a ready LIST, a processing LIST, a heartbeat ZSET
// keyed by stall deadline, and a capped dead-letter LIST.
type RedisQueue struct {
	client redis.UniversalClient
}

func NewRedisQueue(client redis.UniversalClient) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) keyDelayed(queueName string) string    { return "queue:" + queueName + ":delayed" }
func (q *RedisQueue) keyReady(queueName string) string       { return "queue:" + queueName + ":ready" }
func (q *RedisQueue) keyProcessing(queueName string) string  { return "queue:" + queueName + ":processing" }
func (q *RedisQueue) keyHeartbeat(queueName string) string   { return "queue:" + queueName + ":heartbeat" }
func (q *RedisQueue) keyDLQ(queueName string) string         { return "queue:" + queueName + ":dlq" }
func (q *RedisQueue) keyCompleted(queueName string) string   { return "queue:" + queueName + ":completed" }
func (q *RedisQueue) keyJob(queueName, id string) string     { return "queue:" + queueName + ":job:" + id }
func (q *RedisQueue) keyStalled(queueName, id string) string { return "queue:" + queueName + ":stalled:" + id }

const (
	completedKeep = 100
	dlqKeep       = 1000
	defaultMaxAttempts = 3
	defaultBackoffBase = 2 * time.Second
)

func (q *RedisQueue) Enqueue(ctx context.Context, queueName, jobID string, payload []byte, opts EnqueueOptions) error {
	jobKey := q.keyJob(queueName, jobID)

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	created, err := q.client.HSetNX(ctx, jobKey, "payload", payload).Result()
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", jobID, err)
	}
	if !created {
		// Idempotent enqueue: duplicate job id is a no-op success.
		return nil
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"queue":       queueName,
		"attempts":    0,
		"maxAttempts": maxAttempts,
		"backoffMs":   backoffBase.Milliseconds(),
		"createdAt":   now.UnixMilli(),
	}
	if err := q.client.HSet(ctx, jobKey, fields).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", jobID, err)
	}

	if opts.Delay > 0 {
		score := float64(now.Add(opts.Delay).UnixMilli())
		if err := q.client.ZAdd(ctx, q.keyDelayed(queueName), redis.Z{Score: score, Member: jobID}).Err(); err != nil {
			return fmt.Errorf("queue: delay %s: %w", jobID, err)
		}
		return nil
	}
	if err := q.client.RPush(ctx, q.keyReady(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("queue: ready-push %s: %w", jobID, err)
	}
	return nil
}

// promote moves due delayed jobs into the ready list.
func (q *RedisQueue) promote(ctx context.Context, queueName string) error {
	nowMs := float64(time.Now().UTC().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, q.keyDelayed(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", nowMs),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := q.client.ZRem(ctx, q.keyDelayed(queueName), id).Err(); err != nil {
			continue
		}
		q.client.RPush(ctx, q.keyReady(queueName), id)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, lockDuration, timeout time.Duration) (*Job, error) {
	if err := q.promote(ctx, queueName); err != nil {
		return nil, fmt.Errorf("queue: promote: %w", err)
	}

	id, err := q.client.BLMove(ctx, q.keyReady(queueName), q.keyProcessing(queueName), "LEFT", "RIGHT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}

	jobKey := q.keyJob(queueName, id)
	data, err := q.client.HGetAll(ctx, jobKey).Result()
	if err != nil || len(data) == 0 {
		// Job metadata vanished (e.g. concurrent DLQ sweep); drop silently.
		q.client.LRem(ctx, q.keyProcessing(queueName), 0, id)
		return nil, nil
	}

	if err := q.client.ZAdd(ctx, q.keyHeartbeat(queueName), redis.Z{
		Score: float64(time.Now().UTC().Add(lockDuration).UnixMilli()), Member: id,
	}).Err(); err != nil {
		return nil, fmt.Errorf("queue: heartbeat init: %w", err)
	}

	return &Job{
		ID:          id,
		Queue:       queueName,
		Payload:     []byte(data["payload"]),
		Attempts:    atoiDefault(data["attempts"], 0),
		MaxAttempts: atoiDefault(data["maxAttempts"], defaultMaxAttempts),
		CreatedAt:   time.UnixMilli(int64(atoiDefault(data["createdAt"], 0))).UTC(),
	}, nil
}

func (q *RedisQueue) Heartbeat(ctx context.Context, queueName, jobID string, lockDuration time.Duration) error {
	return q.client.ZAdd(ctx, q.keyHeartbeat(queueName), redis.Z{
		Score: float64(time.Now().UTC().Add(lockDuration).UnixMilli()), Member: jobID,
	}).Err()
}

// Complete removes jobID from the processing set and records it on the
// capped completed LIST, mirroring moveToDLQ's retention so the last
// completedKeep job ids stay inspectable after the job hash itself is gone.
func (q *RedisQueue) Complete(ctx context.Context, queueName, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keyProcessing(queueName), 0, jobID)
	pipe.ZRem(ctx, q.keyHeartbeat(queueName), jobID)
	pipe.Del(ctx, q.keyJob(queueName, jobID))
	pipe.Del(ctx, q.keyStalled(queueName, jobID))
	pipe.LPush(ctx, q.keyCompleted(queueName), jobID)
	pipe.LTrim(ctx, q.keyCompleted(queueName), 0, completedKeep-1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, queueName, jobID string, reason string) error {
	jobKey := q.keyJob(queueName, jobID)
	data, err := q.client.HGetAll(ctx, jobKey).Result()
	if err != nil || len(data) == 0 {
		return fmt.Errorf("queue: fail %s: job missing", jobID)
	}

	attempts := atoiDefault(data["attempts"], 0) + 1
	maxAttempts := atoiDefault(data["maxAttempts"], defaultMaxAttempts)
	backoffMs := int64(atoiDefault(data["backoffMs"], int(defaultBackoffBase.Milliseconds())))

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keyProcessing(queueName), 0, jobID)
	pipe.ZRem(ctx, q.keyHeartbeat(queueName), jobID)
	pipe.HSet(ctx, jobKey, "attempts", attempts, "lastError", reason)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: fail %s: %w", jobID, err)
	}

	if attempts >= maxAttempts {
		return q.moveToDLQ(ctx, queueName, jobID)
	}

	backoff := time.Duration(backoffMs) * time.Duration(1<<uint(attempts-1))
	score := float64(time.Now().UTC().Add(backoff).UnixMilli())
	if err := q.client.ZAdd(ctx, q.keyDelayed(queueName), redis.Z{Score: score, Member: jobID}).Err(); err != nil {
		return fmt.Errorf("queue: requeue %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) moveToDLQ(ctx context.Context, queueName, jobID string) error {
	if err := q.client.LPush(ctx, q.keyDLQ(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("queue: dlq %s: %w", jobID, err)
	}
	q.client.LTrim(ctx, q.keyDLQ(queueName), 0, dlqKeep-1)
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, queueName, jobID string) error {
	active, err := q.client.LPos(ctx, q.keyProcessing(queueName), jobID, redis.LPosArgs{}).Result()
	if err == nil && active >= 0 {
		// Active: will self-consume. Do not fail removal (§4.1.2 step 4).
		return nil
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.keyDelayed(queueName), jobID)
	pipe.LRem(ctx, q.keyReady(queueName), 0, jobID)
	pipe.Del(ctx, q.keyJob(queueName, jobID))
	_, execErr := pipe.Exec(ctx)
	// Swallow removal errors per §4.1.2 step 4.
	_ = execErr
	return nil
}

func (q *RedisQueue) ReclaimStalled(ctx context.Context, queueName string, maxStalledCount int) ([]string, error) {
	nowMs := float64(time.Now().UTC().UnixMilli())
	stalledIDs, err := q.client.ZRangeByScore(ctx, q.keyHeartbeat(queueName), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", nowMs),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan stalled: %w", err)
	}

	reclaimed := make([]string, 0, len(stalledIDs))
	for _, id := range stalledIDs {
		q.client.ZRem(ctx, q.keyHeartbeat(queueName), id)
		q.client.LRem(ctx, q.keyProcessing(queueName), 0, id)

		count, _ := q.client.Incr(ctx, q.keyStalled(queueName, id)).Result()
		if int(count) > maxStalledCount {
			q.moveToDLQ(ctx, queueName, id)
			continue
		}
		q.client.LPush(ctx, q.keyReady(queueName), id)
		reclaimed = append(reclaimed, id)
	}
	return reclaimed, nil
}

func (q *RedisQueue) Len(ctx context.Context, queueName string) (int64, error) {
	delayed, err := q.client.ZCard(ctx, q.keyDelayed(queueName)).Result()
	if err != nil {
		return 0, err
	}
	ready, err := q.client.LLen(ctx, q.keyReady(queueName)).Result()
	if err != nil {
		return 0, err
	}
	return delayed + ready, nil
}

func (q *RedisQueue) Close(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		keys, err := q.client.Keys(ctx, "queue:*:processing").Result()
		if err != nil {
			break
		}
		empty := true
		for _, k := range keys {
			n, _ := q.client.LLen(ctx, k).Result()
			if n > 0 {
				empty = false
				break
			}
		}
		if empty {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	var neg bool
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
