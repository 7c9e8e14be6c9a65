// path: internal/worker/pool.go

package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/internal/platform"
	"github.com/techappsUT/threads-scheduler/internal/queue"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
)

const (
	publishQueueName = "publish"
	tickQueueName    = "scheduler-tick"

	stalledPollInterval = 30 * time.Second
)

// Config holds the §6.3 environment-derived tunables the pool needs.
type Config struct {
	WorkerID           string
	Concurrency        int
	LockDuration       time.Duration
	JobTimeout         time.Duration
	DuplicationWindow  time.Duration
	CommentMaxRetries  int
	RateLimitPerMinute int
	Timezone           *time.Location

	// UseEventDriven selects the C3 tick-based scheduler path. When false
	// the pool falls back to legacyPoller, the teacher's fixed-interval
	// FindDuePosts polling loop.
	UseEventDriven bool
}

// Pool is the bounded-concurrency publish worker pool of C5. It consumes
// the "publish" queue with Config.Concurrency goroutines and the
// "scheduler-tick" queue with exactly one, generalising the teacher's named
// PublishPostProcessor (Run/Stop, a distributed per-post lock check before
// work) into the full §4.5 pipeline.
type Pool struct {
	q         queue.Queue
	posts     postdomain.Repository
	creds     postdomain.CredentialLookup
	adapters  *platform.Registry
	limiter   *platform.RateLimiter
	scheduler *scheduler.Scheduler
	log       *zap.SugaredLogger
	cfg       Config
}

func NewPool(
	q queue.Queue,
	posts postdomain.Repository,
	creds postdomain.CredentialLookup,
	adapters *platform.Registry,
	sched *scheduler.Scheduler,
	log *zap.SugaredLogger,
	cfg Config,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 5 * time.Minute
	}
	if cfg.DuplicationWindow <= 0 {
		cfg.DuplicationWindow = 24 * time.Hour
	}
	if cfg.CommentMaxRetries <= 0 {
		cfg.CommentMaxRetries = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Pool{
		q: q, posts: posts, creds: creds, adapters: adapters, scheduler: sched, log: log, cfg: cfg,
		limiter: platform.NewRateLimiter(cfg.RateLimitPerMinute),
	}
}

// Run launches the publish workers and the single-concurrency tick
// consumer, and blocks until ctx is cancelled (graceful shutdown: §5 "stop
// accepting new jobs, wait up to lockDuration for in-flight jobs").
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error { return p.publishLoop(gctx) })
	}
	if p.cfg.UseEventDriven {
		g.Go(func() error { return p.tickLoop(gctx) })
	} else {
		lp := &legacyPoller{p: p}
		g.Go(func() error { return lp.Run(gctx) })
	}
	g.Go(func() error { return p.stalledSweepLoop(gctx) })

	return g.Wait()
}

func (p *Pool) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, err := p.q.Dequeue(ctx, publishQueueName, p.cfg.LockDuration, 5*time.Second)
		if err != nil {
			p.log.Errorw("publish dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		p.processPublishJob(ctx, job)
	}
}

func (p *Pool) tickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, err := p.q.Dequeue(ctx, tickQueueName, p.cfg.LockDuration, 5*time.Second)
		if err != nil {
			p.log.Errorw("tick dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.scheduler.ProcessDueTick(ctx, p.q); err != nil {
			p.log.Errorw("process due tick failed", "error", err)
			if failErr := p.q.Fail(ctx, tickQueueName, job.ID, err.Error()); failErr != nil {
				p.log.Errorw("failed to mark tick job failed", "error", failErr)
			}
			continue
		}
		if err := p.q.Complete(ctx, tickQueueName, job.ID); err != nil {
			p.log.Errorw("failed to complete tick job", "error", err)
		}
	}
}

func (p *Pool) stalledSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(stalledPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reclaimed, err := p.q.ReclaimStalled(ctx, publishQueueName, 2)
			if err != nil {
				p.log.Errorw("stalled sweep failed", "error", err)
				continue
			}
			for _, id := range reclaimed {
				p.log.Warnw("reclaimed stalled publish job", "jobId", id)
			}
		}
	}
}

func parsePostID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}
