// path: cmd/worker/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/techappsUT/threads-scheduler/internal/config"
	"github.com/techappsUT/threads-scheduler/internal/platform"
	"github.com/techappsUT/threads-scheduler/internal/platform/threads"
	"github.com/techappsUT/threads-scheduler/internal/queue"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
	"github.com/techappsUT/threads-scheduler/internal/store"
	"github.com/techappsUT/threads-scheduler/internal/worker"
)

const consistencyCheckInterval = time.Minute

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using process environment")
	}

	cfg := config.Load()

	app, err := newWorkerApp(cfg, log)
	if err != nil {
		log.Fatalw("worker init failed", "error", err)
	}
	defer app.cleanup()

	app.run()
}

type workerApp struct {
	db       *sql.DB
	redis    *redis.Client
	log      *zap.SugaredLogger
	cfg      *config.Config
	sched    *scheduler.Scheduler
	pool     *worker.Pool
}

func newWorkerApp(cfg *config.Config, log *zap.SugaredLogger) (*workerApp, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode,
	)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("worker: connect postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("worker: unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := store.Migrate(sqlDB, "file://migrations"); err != nil {
		return nil, fmt.Errorf("worker: migrate: %w", err)
	}
	log.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("worker: connect redis: %w", err)
	}
	log.Info("connected to redis")

	encryptor, err := store.NewCredentialEncryption(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("worker: credential encryption: %w", err)
	}

	postRepo := store.NewPostRepository(gdb)
	credRepo := store.NewCredentialRepository(gdb, encryptor)

	q := queue.NewRedisQueue(redisClient)

	registry := platform.NewRegistry()
	if err := registry.Register("threads", threads.New(log)); err != nil {
		return nil, fmt.Errorf("worker: register threads adapter: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warnw("unknown timezone, falling back to UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	sched := scheduler.New(redisClient, q, postRepo, log, cfg.Scheduler.BatchWindow)

	pool := worker.NewPool(q, postRepo, credRepo, registry, sched, log, worker.Config{
		WorkerID:           fmt.Sprintf("worker-%d", os.Getpid()),
		Concurrency:        cfg.Worker.Concurrency,
		LockDuration:       cfg.Worker.ExecutionLockTimeout,
		JobTimeout:         cfg.Worker.JobTimeout,
		DuplicationWindow:  cfg.Worker.DuplicationWindow,
		CommentMaxRetries:  cfg.Worker.CommentMaxRetries,
		RateLimitPerMinute: cfg.Worker.RateLimitPerMinute,
		Timezone:           loc,
		UseEventDriven:     cfg.Scheduler.UseEventDriven,
	})

	return &workerApp{db: sqlDB, redis: redisClient, log: log, cfg: cfg, sched: sched, pool: pool}, nil
}

func (a *workerApp) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Scheduler.UseEventDriven {
		if err := a.sched.Initialize(ctx); err != nil {
			a.log.Errorw("scheduler initialize failed", "error", err)
		}
		go a.consistencyLoop(ctx)
	} else {
		a.log.Info("event-driven scheduler disabled, running legacy polling fallback")
	}

	if err := a.pool.StartupSweep(ctx); err != nil {
		a.log.Errorw("startup sweep failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.pool.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.log.Infow("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			a.log.Errorw("worker pool exited", "error", err)
		}
	}

	cancel()

	shutdownTimer := time.NewTimer(a.cfg.Worker.ExecutionLockTimeout)
	defer shutdownTimer.Stop()
	select {
	case <-errCh:
		a.log.Info("worker pool stopped gracefully")
	case <-shutdownTimer.C:
		a.log.Warn("graceful shutdown timed out, exiting anyway")
	}
}

func (a *workerApp) consistencyLoop(ctx context.Context) {
	ticker := time.NewTicker(consistencyCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sched.ValidateConsistency(ctx); err != nil {
				a.log.Errorw("scheduler consistency check failed", "error", err)
			}
		}
	}
}

func (a *workerApp) cleanup() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
