// path: internal/handlers/post_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/techappsUT/threads-scheduler/internal/application/post"
	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
	"github.com/techappsUT/threads-scheduler/pkg/response"
)

var validate = validator.New()

// PostHandler exposes the §6.2 store-facing operations over HTTP. Post
// creation/CRUD stays out of this surface; every route here acts on a post
// id that already exists.
type PostHandler struct {
	schedulePostUC     *post.SchedulePostUseCase
	cancelScheduledUC  *post.CancelScheduledUseCase
	retryFailedUC      *post.RetryFailedUseCase
	publishNowUC       *post.PublishNowUseCase
	fixStuckUC         *post.FixStuckUseCase
}

func NewPostHandler(
	schedulePostUC *post.SchedulePostUseCase,
	cancelScheduledUC *post.CancelScheduledUseCase,
	retryFailedUC *post.RetryFailedUseCase,
	publishNowUC *post.PublishNowUseCase,
	fixStuckUC *post.FixStuckUseCase,
) *PostHandler {
	return &PostHandler{
		schedulePostUC:    schedulePostUC,
		cancelScheduledUC: cancelScheduledUC,
		retryFailedUC:     retryFailedUC,
		publishNowUC:      publishNowUC,
		fixStuckUC:        fixStuckUC,
	}
}

// POST /api/v1/posts/{id}/schedule
func (h *PostHandler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid post id", nil)
		return
	}

	var in post.SchedulePostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in.PostID = id

	if err := validate.Struct(in); err != nil {
		response.Error(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	out, err := h.schedulePostUC.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.Success(w, out)
}

// POST /api/v1/posts/cancel
func (h *PostHandler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	var in post.CancelScheduledInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validate.Struct(in); err != nil {
		response.Error(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	out, err := h.cancelScheduledUC.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.Success(w, out)
}

// POST /api/v1/posts/{id}/retry
func (h *PostHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid post id", nil)
		return
	}

	out, err := h.retryFailedUC.Execute(r.Context(), post.RetryFailedInput{PostID: id})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.Success(w, out)
}

// POST /api/v1/posts/{id}/publish
func (h *PostHandler) PublishNow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid post id", nil)
		return
	}

	var in post.PublishNowInput
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	in.PostID = id

	out, err := h.publishNowUC.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.Success(w, out)
}

// POST /api/v1/posts/{id}/fix-stuck
func (h *PostHandler) FixStuck(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid post id", nil)
		return
	}

	out, err := h.fixStuckUC.Execute(r.Context(), post.FixStuckInput{PostID: id})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.Success(w, out)
}

func isStateTransitionError(err error) bool {
	switch {
	case errors.Is(err, postdomain.ErrNotScheduled),
		errors.Is(err, postdomain.ErrNotDraft),
		errors.Is(err, postdomain.ErrNotFailed),
		errors.Is(err, postdomain.ErrNotPublishing),
		errors.Is(err, postdomain.ErrAlreadyPublished),
		errors.Is(err, postdomain.ErrCannotCancel):
		return true
	default:
		return false
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case postdomain.IsNotFound(err):
		response.Error(w, http.StatusNotFound, "post not found", err)
	case postdomain.IsValidationError(err), isStateTransitionError(err):
		response.Error(w, http.StatusBadRequest, "invalid request", err)
	case postdomain.IsConcurrencyError(err):
		response.Error(w, http.StatusConflict, "post was modified concurrently, retry", err)
	default:
		response.Error(w, http.StatusInternalServerError, "internal error", err)
	}
}
