// path: cmd/admin/router.go
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appmiddleware "github.com/techappsUT/threads-scheduler/internal/middleware"
	"github.com/techappsUT/threads-scheduler/pkg/response"
)

func setupRouter(app *adminApp) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(app.logger))
	r.Use(appmiddleware.RecoveryLogger(app.logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(app.rateLimiter.RateLimitByIP(appmiddleware.DefaultRateLimitConfig))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/posts", func(r chi.Router) {
		r.Post("/{id}/schedule", app.postHandler.SchedulePost)
		r.Post("/cancel", app.postHandler.CancelScheduled)
		r.Post("/{id}/retry", app.postHandler.RetryFailed)
		r.Post("/{id}/publish", app.postHandler.PublishNow)
		r.Post("/{id}/fix-stuck", app.postHandler.FixStuck)
	})

	return r
}
