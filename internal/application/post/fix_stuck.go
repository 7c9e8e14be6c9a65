// path: internal/application/post/fix_stuck.go
package post

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// FixStuckInput matches §6.2's FixStuck(postId): an admin-triggered repair
// of a single post found stuck in PUBLISHING (§4.5.5), for use outside the
// periodic worker sweep.
type FixStuckInput struct {
	PostID uuid.UUID `json:"postId" validate:"required"`
}

type FixStuckOutput struct {
	Post *PostDTO `json:"post"`
}

type FixStuckUseCase struct {
	postRepo postdomain.Repository
	logger   common.Logger
}

func NewFixStuckUseCase(postRepo postdomain.Repository, logger common.Logger) *FixStuckUseCase {
	return &FixStuckUseCase{postRepo: postRepo, logger: logger}
}

func (uc *FixStuckUseCase) Execute(ctx context.Context, in FixStuckInput) (*FixStuckOutput, error) {
	p, err := uc.postRepo.FindByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	p.RepairStuck()

	if err := uc.postRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("post: save repaired post: %w", err)
	}

	uc.logger.Info("stuck post repaired", "postId", p.ID(), "status", p.Status())
	return &FixStuckOutput{Post: MapPostToDTO(p)}, nil
}
