// path: internal/worker/sweep.go

package worker

import (
	"context"
	"fmt"
	"time"
)

const stuckPublishingAge = 5 * time.Minute

// StartupSweep applies §4.5.5's repair rule to every post still found in
// PUBLISHING older than 5 minutes. It is meant to run once at process
// startup, before the pool begins consuming jobs, to clean up after an
// unclean shutdown.
func (p *Pool) StartupSweep(ctx context.Context) error {
	stuck, err := p.posts.FindPublishingOlderThan(ctx, stuckPublishingAge)
	if err != nil {
		return fmt.Errorf("worker: startup sweep: find stuck posts: %w", err)
	}

	for _, pst := range stuck {
		pst.RepairStuck()
		if err := p.posts.Update(ctx, pst); err != nil {
			p.log.Errorw("startup sweep: failed to save repaired post", "postId", pst.ID(), "error", err)
			continue
		}
		p.log.Warnw("startup sweep repaired stuck post", "postId", pst.ID(), "status", pst.Status())
	}
	return nil
}
