// path: internal/handlers/post_handler_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postapp "github.com/techappsUT/threads-scheduler/internal/application/post"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
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
	return nil, nil
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}

func newTestRouter(t *testing.T) (*chi.Mux, *fakeRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueue(client)
	repo := newFakeRepo()
	sched := scheduler.New(client, q, repo, zap.NewNop().Sugar(), 5*time.Second)

	var logger common.Logger = noopLogger{}
	schedulePostUC := postapp.NewSchedulePostUseCase(repo, sched, logger)
	cancelScheduledUC := postapp.NewCancelScheduledUseCase(repo, sched, logger)
	retryFailedUC := postapp.NewRetryFailedUseCase(repo, logger)
	publishNowUC := postapp.NewPublishNowUseCase(repo, q, logger)
	fixStuckUC := postapp.NewFixStuckUseCase(repo, logger)

	h := NewPostHandler(schedulePostUC, cancelScheduledUC, retryFailedUC, publishNowUC, fixStuckUC)

	r := chi.NewRouter()
	r.Route("/api/v1/posts", func(r chi.Router) {
		r.Post("/{id}/schedule", h.SchedulePost)
		r.Post("/cancel", h.CancelScheduled)
		r.Post("/{id}/retry", h.RetryFailed)
		r.Post("/{id}/publish", h.PublishNow)
		r.Post("/{id}/fix-stuck", h.FixStuck)
	})
	return r, repo
}

func mustDraftPost(t *testing.T) *postdomain.Post {
	t.Helper()
	p, err := postdomain.NewPost(postdomain.NewPostInput{Content: "hello world", PostType: postdomain.PostTypeText})
	if err != nil {
		t.Fatalf("new post: %v", err)
	}
	return p
}

func TestSchedulePostHandler(t *testing.T) {
	r, repo := newTestRouter(t)
	p := mustDraftPost(t)
	repo.put(p)

	body, _ := json.Marshal(map[string]interface{}{
		"scheduledAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/"+p.ID().String()+"/schedule", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, err := repo.FindByID(context.Background(), p.ID())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if updated.Status() != postdomain.StatusScheduled {
		t.Fatalf("expected post scheduled, got %s", updated.Status())
	}
}

func TestSchedulePostHandlerNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"scheduledAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/"+uuid.NewString()+"/schedule", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelScheduledHandler(t *testing.T) {
	r, repo := newTestRouter(t)
	p := mustDraftPost(t)
	if err := p.Schedule(time.Now().Add(time.Hour), nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	repo.put(p)

	body, _ := json.Marshal(map[string]interface{}{"postIds": []string{p.ID().String()}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/cancel", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, _ := repo.FindByID(context.Background(), p.ID())
	if updated.Status() != postdomain.StatusDraft {
		t.Fatalf("expected post reverted to draft, got %s", updated.Status())
	}
}

func TestPublishNowHandlerRejectsAlreadyPublished(t *testing.T) {
	r, repo := newTestRouter(t)
	p := mustDraftPost(t)
	if err := p.Schedule(time.Now().Add(time.Hour), nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := p.BeginPublishing(); err != nil {
		t.Fatalf("begin publishing: %v", err)
	}
	if err := p.MarkPublished("threads-post-1"); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	repo.put(p)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/"+p.ID().String()+"/publish", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an already-published post, got %d: %s", rec.Code, rec.Body.String())
	}
}
