// path: internal/scheduler/scheduler_test.go

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/queue"
)

type fakeRepo struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*postdomain.Post
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{posts: make(map[uuid.UUID]*postdomain.Post)}
}

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
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*postdomain.Post
	for _, p := range f.posts {
		if p.Status() == postdomain.StatusScheduled && p.ScheduledAt() != nil && !p.ScheduledAt().After(at) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindEarliestScheduled(ctx context.Context) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var min *time.Time
	for _, p := range f.posts {
		if p.Status() != postdomain.StatusScheduled || p.ScheduledAt() == nil {
			continue
		}
		if min == nil || p.ScheduledAt().Before(*min) {
			t := *p.ScheduledAt()
			min = &t
		}
	}
	return min, nil
}

func (f *fakeRepo) FindByStatus(ctx context.Context, status postdomain.Status) ([]*postdomain.Post, error) {
	return nil, nil
}
func (f *fakeRepo) FindPublishingOlderThan(ctx context.Context, age time.Duration) ([]*postdomain.Post, error) {
	return nil, nil
}
func (f *fakeRepo) FindRecentDuplicate(ctx context.Context, hash string, exclude uuid.UUID, window time.Duration) (*postdomain.Post, error) {
	return nil, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeRepo, queue.Queue) {
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
	return New(client, q, repo, logger, 5*time.Second), repo, q
}

func mustPost(t *testing.T, scheduledAt time.Time) *postdomain.Post {
	t.Helper()
	p, err := postdomain.NewPost(postdomain.NewPostInput{Content: "hello", PostType: postdomain.PostTypeText})
	if err != nil {
		t.Fatalf("new post: %v", err)
	}
	if err := p.Schedule(scheduledAt, nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return p
}

func TestOnPostScheduledArmsTick(t *testing.T) {
	s, repo, q := newTestScheduler(t)
	ctx := context.Background()

	p := mustPost(t, time.Now().Add(time.Hour))
	repo.put(p)

	if err := s.OnPostScheduled(ctx, p.ID().String(), *p.ScheduledAt()); err != nil {
		t.Fatalf("OnPostScheduled: %v", err)
	}

	n, err := q.Len(ctx, "scheduler-tick")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one armed tick job, got %d", n)
	}
}

func TestOnPostScheduledKeepsEarlierTick(t *testing.T) {
	s, repo, q := newTestScheduler(t)
	ctx := context.Background()

	early := mustPost(t, time.Now().Add(time.Minute))
	repo.put(early)
	if err := s.OnPostScheduled(ctx, early.ID().String(), *early.ScheduledAt()); err != nil {
		t.Fatalf("arm early: %v", err)
	}

	later := mustPost(t, time.Now().Add(time.Hour))
	repo.put(later)
	if err := s.OnPostScheduled(ctx, later.ID().String(), *later.ScheduledAt()); err != nil {
		t.Fatalf("arm later: %v", err)
	}

	n, err := q.Len(ctx, "scheduler-tick")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected still exactly one armed tick job, got %d", n)
	}
}

func TestProcessDueTickBatchesAndRearms(t *testing.T) {
	s, repo, q := newTestScheduler(t)
	ctx := context.Background()

	due := mustPost(t, time.Now().Add(time.Second))
	repo.put(due)
	future := mustPost(t, time.Now().Add(time.Hour))
	repo.put(future)

	if err := s.ProcessDueTick(ctx, q); err != nil {
		t.Fatalf("ProcessDueTick: %v", err)
	}

	if due.Status() != postdomain.StatusPublishing {
		t.Fatalf("expected due post to enter PUBLISHING, got %s", due.Status())
	}

	n, err := q.Len(ctx, "publish")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one publish job enqueued, got %d", n)
	}

	tickLen, err := q.Len(ctx, "scheduler-tick")
	if err != nil {
		t.Fatalf("len tick: %v", err)
	}
	if tickLen != 1 {
		t.Fatalf("expected scheduler to rearm for the remaining future post, got %d", tickLen)
	}
}
