// path: internal/application/post/retry_failed.go
package post

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// RetryFailedInput matches §6.2's RetryFailed(postId): FAILED -> DRAFT. The
// caller reschedules separately through SchedulePost.
type RetryFailedInput struct {
	PostID uuid.UUID `json:"postId" validate:"required"`
}

type RetryFailedOutput struct {
	Post *PostDTO `json:"post"`
}

type RetryFailedUseCase struct {
	postRepo postdomain.Repository
	logger   common.Logger
}

func NewRetryFailedUseCase(postRepo postdomain.Repository, logger common.Logger) *RetryFailedUseCase {
	return &RetryFailedUseCase{postRepo: postRepo, logger: logger}
}

func (uc *RetryFailedUseCase) Execute(ctx context.Context, in RetryFailedInput) (*RetryFailedOutput, error) {
	p, err := uc.postRepo.FindByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	if err := p.RetryFailed(); err != nil {
		return nil, err
	}

	if err := uc.postRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("post: save retried post: %w", err)
	}

	uc.logger.Info("failed post reverted to draft", "postId", p.ID())
	return &RetryFailedOutput{Post: MapPostToDTO(p)}, nil
}
