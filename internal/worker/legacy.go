// path: internal/worker/legacy.go

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/techappsUT/threads-scheduler/internal/queue"
)

const legacyPollInterval = 30 * time.Second

// legacyPoller is the pre-event-driven fallback: a fixed-interval ticker
// polling FindDuePosts directly, in the shape of the teacher's
// PublishPostProcessor (Name/Run/Stop). It is only started when
// Config.UseEventDriven is false, in place of the precisely-timed tick job
// the Scheduler otherwise arms.
type legacyPoller struct {
	p *Pool
}

func (lp *legacyPoller) Name() string { return "legacyPoller" }

func (lp *legacyPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(legacyPollInterval)
	defer ticker.Stop()
	lp.p.log.Infow("legacy polling scheduler started", "interval", legacyPollInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lp.poll(ctx); err != nil {
				lp.p.log.Errorw("legacy poll failed", "error", err)
			}
		}
	}
}

func (lp *legacyPoller) Stop(ctx context.Context) error {
	lp.p.log.Info("stopping legacy polling scheduler")
	return nil
}

// poll enqueues every currently-due post onto the publish queue, same
// target as Scheduler.ProcessDueTick but discovered by polling instead of
// a precisely-armed delayed job.
func (lp *legacyPoller) poll(ctx context.Context) error {
	due, err := lp.p.posts.FindDuePosts(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("legacy poll: find due posts: %w", err)
	}

	nowMs := time.Now().UTC().UnixMilli()
	for _, pst := range due {
		jobID := fmt.Sprintf("publish-%s-%d", pst.ID(), nowMs)
		payload, err := json.Marshal(queue.PublishJobPayload{PostID: pst.ID().String()})
		if err != nil {
			lp.p.log.Errorw("legacy poll: marshal payload failed", "postId", pst.ID(), "error", err)
			continue
		}
		if err := lp.p.q.Enqueue(ctx, publishQueueName, jobID, payload, queue.EnqueueOptions{MaxAttempts: 3, BackoffBase: 2 * time.Second}); err != nil {
			lp.p.log.Errorw("legacy poll: enqueue failed", "postId", pst.ID(), "error", err)
		}
	}
	return nil
}
