// path: internal/application/post/cancel_scheduled.go
package post

import (
	"context"

	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
)

// CancelScheduledInput matches §6.2's CancelScheduled(postIds): a batch
// revert to DRAFT, each one triggering OnPostCancelled.
type CancelScheduledInput struct {
	PostIDs []uuid.UUID `json:"postIds" validate:"required,min=1"`
}

type CancelScheduledOutput struct {
	Cancelled []uuid.UUID       `json:"cancelled"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type CancelScheduledUseCase struct {
	postRepo  postdomain.Repository
	scheduler *scheduler.Scheduler
	logger    common.Logger
}

func NewCancelScheduledUseCase(postRepo postdomain.Repository, sched *scheduler.Scheduler, logger common.Logger) *CancelScheduledUseCase {
	return &CancelScheduledUseCase{postRepo: postRepo, scheduler: sched, logger: logger}
}

func (uc *CancelScheduledUseCase) Execute(ctx context.Context, in CancelScheduledInput) (*CancelScheduledOutput, error) {
	out := &CancelScheduledOutput{Failed: map[string]string{}}

	for _, id := range in.PostIDs {
		p, err := uc.postRepo.FindByID(ctx, id)
		if err != nil {
			out.Failed[id.String()] = err.Error()
			continue
		}
		if err := p.Cancel(); err != nil {
			out.Failed[id.String()] = err.Error()
			continue
		}
		if err := uc.postRepo.Update(ctx, p); err != nil {
			out.Failed[id.String()] = err.Error()
			continue
		}
		if err := uc.scheduler.OnPostCancelled(ctx, id.String()); err != nil {
			uc.logger.Error("failed to rearm scheduler after CancelScheduled", "postId", id, "error", err)
		}
		out.Cancelled = append(out.Cancelled, id)
	}

	if len(out.Failed) == 0 {
		out.Failed = nil
	}
	return out, nil
}
