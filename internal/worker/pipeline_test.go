// path: internal/worker/pipeline_test.go

package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/platform"
	"github.com/techappsUT/threads-scheduler/internal/queue"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
)

type fakeRepo struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*postdomain.Post
}

func newFakeRepo() *fakeRepo { return &fakeRepo{posts: make(map[uuid.UUID]*postdomain.Post)} }

func (f *fakeRepo) put(p *postdomain.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID()] = p
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*postdomain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, postdomain.ErrPostNotFound
	}
	return p, nil
}

func (f *fakeRepo) Create(ctx context.Context, p *postdomain.Post) error { f.put(p); return nil }
func (f *fakeRepo) Update(ctx context.Context, p *postdomain.Post) error { f.put(p); return nil }

func (f *fakeRepo) FindDuePosts(ctx context.Context, at time.Time) ([]*postdomain.Post, error) {
	return nil, nil
}
func (f *fakeRepo) FindEarliestScheduled(ctx context.Context) (*time.Time, error) { return nil, nil }
func (f *fakeRepo) FindByStatus(ctx context.Context, status postdomain.Status) ([]*postdomain.Post, error) {
	return nil, nil
}
func (f *fakeRepo) FindPublishingOlderThan(ctx context.Context, age time.Duration) ([]*postdomain.Post, error) {
	return nil, nil
}

func (f *fakeRepo) FindRecentDuplicate(ctx context.Context, hash string, exclude uuid.UUID, window time.Duration) (*postdomain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.posts {
		if id == exclude {
			continue
		}
		if p.ContentHash() != hash {
			continue
		}
		if p.Status() == postdomain.StatusPublishing || p.AlreadyPublished() {
			return p, nil
		}
	}
	return nil, nil
}

type fakeCreds struct {
	cred *postdomain.Credential
	err  error
}

func (f *fakeCreds) GetCredential(ctx context.Context, accountID *uuid.UUID) (*postdomain.Credential, error) {
	return f.cred, f.err
}

type fakeAdapter struct {
	result *platform.PublishResult
	err    error
}

func (a *fakeAdapter) PublishPost(ctx context.Context, req platform.PublishRequest, progress platform.ProgressFunc) (*platform.PublishResult, error) {
	progress("creating container")
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

func (a *fakeAdapter) PublishComment(ctx context.Context, platformParentID, text, accessToken, platformUserID string) (*platform.CommentResult, error) {
	return &platform.CommentResult{Success: true, CommentID: "comment-1"}, nil
}

func (a *fakeAdapter) ValidateMedia(ctx context.Context, url string) bool { return true }

func newTestPool(t *testing.T, adapter platform.PlatformAdapter) (*Pool, *fakeRepo, queue.Queue) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(client)
	repo := newFakeRepo()
	logger := zap.NewNop().Sugar()
	sched := scheduler.New(client, q, repo, logger, 5*time.Second)

	registry := platform.NewRegistry()
	if err := registry.Register(platformName, adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	creds := &fakeCreds{cred: &postdomain.Credential{ID: uuid.New(), PlatformUserID: "pu-1", AccessToken: "tok", ExpiresAt: time.Now().Add(24 * time.Hour)}}

	pool := NewPool(q, repo, creds, registry, sched, logger, Config{
		WorkerID: "worker-test", Concurrency: 1, LockDuration: time.Minute,
		DuplicationWindow: 24 * time.Hour, CommentMaxRetries: 3, RateLimitPerMinute: 1000,
	})
	return pool, repo, q
}

func scheduledPost(t *testing.T) *postdomain.Post {
	t.Helper()
	p, err := postdomain.NewPost(postdomain.NewPostInput{Content: "hello world", PostType: postdomain.PostTypeText})
	if err != nil {
		t.Fatalf("new post: %v", err)
	}
	if err := p.Schedule(time.Now().Add(time.Minute), nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := p.BeginPublishing(); err != nil {
		t.Fatalf("begin publishing: %v", err)
	}
	return p
}

func enqueuePublishJob(t *testing.T, ctx context.Context, q queue.Queue, postID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.PublishJobPayload{PostID: postID.String()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	jobID := "publish-" + postID.String()
	if err := q.Enqueue(ctx, publishQueueName, jobID, payload, queue.EnqueueOptions{MaxAttempts: 3}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := q.Dequeue(ctx, publishQueueName, time.Minute, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil {
		t.Fatalf("expected a ready job")
	}
	return job
}

func TestProcessPublishJobSuccess(t *testing.T) {
	adapter := &fakeAdapter{result: &platform.PublishResult{Success: true, PlatformPostID: "tp-1"}}
	pool, repo, q := newTestPool(t, adapter)
	ctx := context.Background()

	p := scheduledPost(t)
	repo.put(p)

	job := enqueuePublishJob(t, ctx, q, p.ID())
	pool.processPublishJob(ctx, job)

	got, err := repo.FindByID(ctx, p.ID())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status() != postdomain.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s", got.Status())
	}
	if got.PlatformPostID() != "tp-1" {
		t.Fatalf("expected platform post id to be recorded, got %q", got.PlatformPostID())
	}

	n, err := q.Len(ctx, publishQueueName)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected job consumed, queue length %d", n)
	}
}

func TestProcessPublishJobFatalMarksFailed(t *testing.T) {
	adapter := &fakeAdapter{err: &platform.PublishError{Category: postdomain.ErrorCategoryFatal, Message: "token expired", SuggestedAction: "reconnect"}}
	pool, repo, q := newTestPool(t, adapter)
	ctx := context.Background()

	p := scheduledPost(t)
	repo.put(p)

	job := enqueuePublishJob(t, ctx, q, p.ID())
	pool.processPublishJob(ctx, job)

	got, err := repo.FindByID(ctx, p.ID())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status() != postdomain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status())
	}
	if got.ErrorCategory() != postdomain.ErrorCategoryFatal {
		t.Fatalf("expected FATAL category, got %s", got.ErrorCategory())
	}
}

func TestProcessPublishJobRetryableRollsBackToScheduled(t *testing.T) {
	adapter := &fakeAdapter{err: &platform.PublishError{Category: postdomain.ErrorCategoryRetryable, Message: "bad request", SuggestedAction: "check content"}}
	pool, repo, q := newTestPool(t, adapter)
	ctx := context.Background()

	p := scheduledPost(t)
	repo.put(p)

	job := enqueuePublishJob(t, ctx, q, p.ID())
	pool.processPublishJob(ctx, job)

	got, err := repo.FindByID(ctx, p.ID())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status() != postdomain.StatusScheduled {
		t.Fatalf("expected rollback to SCHEDULED, got %s", got.Status())
	}

	n, err := q.Len(ctx, publishQueueName)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected job requeued for retry, queue length %d", n)
	}
}

type conflictOnceRepo struct {
	*fakeRepo
	conflicted bool
}

func (c *conflictOnceRepo) Update(ctx context.Context, p *postdomain.Post) error {
	if !c.conflicted {
		c.conflicted = true
		return postdomain.ErrVersionMismatch
	}
	return c.fakeRepo.Update(ctx, p)
}

// FindByID simulates a concurrent writer having already bumped the stored
// version by the time savePost re-fetches, so SyncVersionForRetry has
// something real to adopt.
func (c *conflictOnceRepo) FindByID(ctx context.Context, id uuid.UUID) (*postdomain.Post, error) {
	p, err := c.fakeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return postdomain.Reconstruct(
		p.ID(), p.Content(), p.PostType(), p.ImageURLs(), p.VideoURL(), p.Comment(), p.AccountID(),
		p.Status(), p.ScheduledAt(), p.ScheduleConfig(), p.PublishedAt(),
		p.PlatformPostID(), p.PlatformCommentID(), p.CommentStatus(), p.CommentRetryCount(), p.CommentError(),
		p.ContentHash(), p.PublishingProgress(), p.ExecutionLock(), p.LastError(), p.ErrorCategory(), p.SuggestedAction(),
		p.Version()+1, p.CreatedAt(), p.UpdatedAt(),
	), nil
}

func TestSavePostRetriesAfterVersionConflict(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(client)
	logger := zap.NewNop().Sugar()

	base := newFakeRepo()
	p, err := postdomain.NewPost(postdomain.NewPostInput{Content: "hello", PostType: postdomain.PostTypeText})
	if err != nil {
		t.Fatalf("new post: %v", err)
	}
	base.put(p)

	repo := &conflictOnceRepo{fakeRepo: base}
	sched := scheduler.New(client, q, repo, logger, 5*time.Second)
	registry := platform.NewRegistry()
	creds := &fakeCreds{cred: &postdomain.Credential{ID: uuid.New()}}

	pool := NewPool(q, repo, creds, registry, sched, logger, Config{WorkerID: "worker-test", Concurrency: 1, LockDuration: time.Minute})

	pool.savePost(context.Background(), p)

	if p.Version() != 2 {
		t.Fatalf("expected pst to have adopted the refetched version 2, got %d", p.Version())
	}
	if !repo.conflicted {
		t.Fatalf("expected the first Update to have been attempted")
	}
}

func TestProcessPublishJobAlreadyPublishedIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{result: &platform.PublishResult{Success: true, PlatformPostID: "tp-2"}}
	pool, repo, q := newTestPool(t, adapter)
	ctx := context.Background()

	p := scheduledPost(t)
	if err := p.MarkPublished("tp-2"); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	repo.put(p)

	job := enqueuePublishJob(t, ctx, q, p.ID())
	pool.processPublishJob(ctx, job)

	n, err := q.Len(ctx, publishQueueName)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected replayed job to be dropped, queue length %d", n)
	}
}
