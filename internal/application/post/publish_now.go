// path: internal/application/post/publish_now.go
package post

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/queue"
)

// PublishNowInput matches §6.2's PublishNow(postId, accountId?): enqueue
// immediately, bypassing the scheduler.
type PublishNowInput struct {
	PostID    uuid.UUID  `json:"postId" validate:"required"`
	AccountID *uuid.UUID `json:"accountId,omitempty"`
}

type PublishNowOutput struct {
	JobID string `json:"jobId"`
}

type PublishNowUseCase struct {
	postRepo postdomain.Repository
	queue    queue.Queue
	logger   common.Logger
}

func NewPublishNowUseCase(postRepo postdomain.Repository, q queue.Queue, logger common.Logger) *PublishNowUseCase {
	return &PublishNowUseCase{postRepo: postRepo, queue: q, logger: logger}
}

func (uc *PublishNowUseCase) Execute(ctx context.Context, in PublishNowInput) (*PublishNowOutput, error) {
	p, err := uc.postRepo.FindByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !p.CanPublish() {
		return nil, postdomain.ErrNotDraft
	}

	accountID := ""
	if in.AccountID != nil {
		accountID = in.AccountID.String()
	}
	payload, err := json.Marshal(queue.PublishJobPayload{PostID: p.ID().String(), AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("post: marshal publish-now payload: %w", err)
	}

	jobID := fmt.Sprintf("publish-now-%s-%d", p.ID(), time.Now().UTC().UnixNano())
	if err := uc.queue.Enqueue(ctx, "publish", jobID, payload, queue.EnqueueOptions{MaxAttempts: 3, BackoffBase: 2 * time.Second}); err != nil {
		return nil, fmt.Errorf("post: enqueue publish-now job: %w", err)
	}

	uc.logger.Info("publish-now enqueued", "postId", p.ID(), "jobId", jobID)
	return &PublishNowOutput{JobID: jobID}, nil
}
