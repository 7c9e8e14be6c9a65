// path: internal/application/post/schedule_post.go
package post

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
)

// SchedulePostInput matches §6.2's SchedulePost(postId, config, accountId?).
// The post itself must already exist as a DRAFT or FAILED row; creating one
// is a CRUD concern outside the core.
type SchedulePostInput struct {
	PostID      uuid.UUID                  `json:"postId" validate:"required"`
	ScheduledAt time.Time                  `json:"scheduledAt" validate:"required"`
	Config      *postdomain.ScheduleConfig `json:"config,omitempty"`
	AccountID   *uuid.UUID                 `json:"accountId,omitempty"`
}

type SchedulePostOutput struct {
	Post *PostDTO `json:"post"`
}

type SchedulePostUseCase struct {
	postRepo  postdomain.Repository
	scheduler *scheduler.Scheduler
	logger    common.Logger
}

func NewSchedulePostUseCase(postRepo postdomain.Repository, sched *scheduler.Scheduler, logger common.Logger) *SchedulePostUseCase {
	return &SchedulePostUseCase{postRepo: postRepo, scheduler: sched, logger: logger}
}

func (uc *SchedulePostUseCase) Execute(ctx context.Context, in SchedulePostInput) (*SchedulePostOutput, error) {
	p, err := uc.postRepo.FindByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	if err := p.Schedule(in.ScheduledAt, in.Config); err != nil {
		return nil, err
	}

	if err := uc.postRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("post: save scheduled post: %w", err)
	}

	if err := uc.scheduler.OnPostScheduled(ctx, p.ID().String(), in.ScheduledAt); err != nil {
		uc.logger.Error("failed to arm scheduler after SchedulePost", "postId", p.ID(), "error", err)
	}

	uc.logger.Info("post scheduled", "postId", p.ID(), "scheduledAt", in.ScheduledAt)
	return &SchedulePostOutput{Post: MapPostToDTO(p)}, nil
}
