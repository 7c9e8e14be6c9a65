// path: cmd/admin/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
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

	"github.com/techappsUT/threads-scheduler/internal/application/common"
	postapp "github.com/techappsUT/threads-scheduler/internal/application/post"
	"github.com/techappsUT/threads-scheduler/internal/config"
	"github.com/techappsUT/threads-scheduler/internal/handlers"
	"github.com/techappsUT/threads-scheduler/internal/infrastructure/services"
	appmiddleware "github.com/techappsUT/threads-scheduler/internal/middleware"
	"github.com/techappsUT/threads-scheduler/internal/queue"
	"github.com/techappsUT/threads-scheduler/internal/scheduler"
	"github.com/techappsUT/threads-scheduler/internal/store"
)

// adminApp is the thin HTTP surface §6.2 requires: SchedulePost,
// CancelScheduled, RetryFailed, PublishNow, FixStuck. Post creation/CRUD is
// out of scope; every route here acts on an already-existing post id.
type adminApp struct {
	httpServer  *http.Server
	db          *gorm.DB
	redis       *redis.Client
	logger      common.Logger
	rateLimiter *appmiddleware.RateLimiter
	postHandler *handlers.PostHandler
}

func main() {
	zlog, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zlog.Sync()
	logger := services.NewZapLogger(zlog.Sugar())

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using process environment")
	}

	cfg := config.Load()

	app, err := newAdminApp(cfg, logger, zlog.Sugar())
	if err != nil {
		logger.Error("admin init failed", "error", err)
		os.Exit(1)
	}
	defer app.cleanup()

	app.run(cfg)
}

func newAdminApp(cfg *config.Config, logger common.Logger, zlog *zap.SugaredLogger) (*adminApp, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode,
	)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("admin: connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("admin: connect redis: %w", err)
	}

	postRepo := store.NewPostRepository(gdb)
	q := queue.NewRedisQueue(redisClient)

	sched := scheduler.New(redisClient, q, postRepo, zlog, cfg.Scheduler.BatchWindow)

	schedulePostUC := postapp.NewSchedulePostUseCase(postRepo, sched, logger)
	cancelScheduledUC := postapp.NewCancelScheduledUseCase(postRepo, sched, logger)
	retryFailedUC := postapp.NewRetryFailedUseCase(postRepo, logger)
	publishNowUC := postapp.NewPublishNowUseCase(postRepo, q, logger)
	fixStuckUC := postapp.NewFixStuckUseCase(postRepo, logger)

	postHandler := handlers.NewPostHandler(schedulePostUC, cancelScheduledUC, retryFailedUC, publishNowUC, fixStuckUC)

	app := &adminApp{
		db:          gdb,
		redis:       redisClient,
		logger:      logger,
		rateLimiter: appmiddleware.NewRateLimiter(redisClient, logger),
		postHandler: postHandler,
	}

	r := setupRouter(app)
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return app, nil
}

func (a *adminApp) run(cfg *config.Config) {
	go func() {
		a.logger.Info("admin http surface listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("admin http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("shutting down admin http surface")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("admin http shutdown error", "error", err)
	}
}

func (a *adminApp) cleanup() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
