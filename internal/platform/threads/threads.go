// path: internal/platform/threads/threads.go

package threads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/techappsUT/threads-scheduler/internal/platform"
)

const (
	defaultAPIVersion = "v18.0"
	pollInterval      = 5 * time.Second
	pollCeiling       = 5 * time.Minute
	commentDelay      = 30 * time.Second
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".webm": true,
	".mkv": true, ".flv": true, ".wmv": true, ".m4v": true,
}

// Adapter implements platform.PlatformAdapter against the Threads Graph
// API (§6.1). BaseURL is exported so tests can point it at an
// httptest.Server, the same technique the teacher uses for its Facebook
// adapter.
type Adapter struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Log        *zap.SugaredLogger

	breaker *gobreaker.CircuitBreaker
}

func New(log *zap.SugaredLogger) *Adapter {
	a := &Adapter{
		BaseURL:    "https://graph.threads.net",
		APIVersion: defaultAPIVersion,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Log:        log,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "threads-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return a
}

func (a *Adapter) apiBase() string {
	return strings.TrimRight(a.BaseURL, "/") + "/" + a.APIVersion
}

// PublishPost runs the §4.3.1 protocol: container creation, readiness
// polling, publish, then an optional delayed reply comment.
func (a *Adapter) PublishPost(ctx context.Context, req platform.PublishRequest, progress platform.ProgressFunc) (*platform.PublishResult, error) {
	notify(progress, "validating")
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	containerID, err := a.createContainer(ctx, req, progress)
	if err != nil {
		return nil, err
	}

	notify(progress, "waiting for media processing")
	if err := a.pollReady(ctx, containerID, req.AccessToken); err != nil {
		return nil, err
	}

	notify(progress, "publishing")
	platformPostID, err := a.publish(ctx, req.PlatformUserID, req.AccessToken, containerID)
	if err != nil {
		return nil, err
	}

	result := &platform.PublishResult{Success: true, PlatformPostID: platformPostID}

	if req.Comment != "" && !req.SkipComment {
		notify(progress, "posting comment")
		result.CommentResult = a.postComment(ctx, platformPostID, req.Comment, req.AccessToken, req.PlatformUserID)
	}

	return result, nil
}

func validateRequest(req platform.PublishRequest) error {
	switch req.PostType {
	case "TEXT":
	case "IMAGE":
		if len(req.ImageURLs) != 1 {
			return &platform.PublishError{Category: "RETRYABLE", Message: "image posts require exactly one image url", SuggestedAction: "attach exactly one image"}
		}
	case "VIDEO":
		if req.VideoURL == "" {
			return &platform.PublishError{Category: "RETRYABLE", Message: "video posts require a video url", SuggestedAction: "attach a video url"}
		}
	case "CAROUSEL":
		if len(req.ImageURLs) < 2 {
			return &platform.PublishError{Category: "RETRYABLE", Message: "carousel posts require at least 2 media urls", SuggestedAction: "attach 2-10 media urls"}
		}
	default:
		return &platform.PublishError{Category: "FATAL", Message: "unknown post type " + req.PostType, SuggestedAction: "fix the post's postType"}
	}
	return nil
}

func notify(progress platform.ProgressFunc, step string) {
	if progress == nil {
		return
	}
	go progress(step)
}

func (a *Adapter) createContainer(ctx context.Context, req platform.PublishRequest, progress platform.ProgressFunc) (string, error) {
	switch req.PostType {
	case "TEXT":
		return a.createSingleContainer(ctx, req.PlatformUserID, req.AccessToken, url.Values{
			"media_type": {"TEXT"}, "text": {req.Content},
		})
	case "IMAGE":
		return a.createSingleContainer(ctx, req.PlatformUserID, req.AccessToken, url.Values{
			"media_type": {"IMAGE"}, "image_url": {req.ImageURLs[0]}, "text": {req.Content},
		})
	case "VIDEO":
		return a.createSingleContainer(ctx, req.PlatformUserID, req.AccessToken, url.Values{
			"media_type": {"VIDEO"}, "video_url": {req.VideoURL}, "text": {req.Content},
		})
	case "CAROUSEL":
		notify(progress, fmt.Sprintf("creating %d containers", len(req.ImageURLs)))
		childIDs := make([]string, 0, len(req.ImageURLs))
		for _, mediaURL := range req.ImageURLs {
			fields := url.Values{"is_carousel_item": {"true"}}
			if isVideoURL(mediaURL) {
				fields.Set("media_type", "VIDEO")
				fields.Set("video_url", mediaURL)
			} else {
				fields.Set("media_type", "IMAGE")
				fields.Set("image_url", mediaURL)
			}
			childID, err := a.createSingleContainer(ctx, req.PlatformUserID, req.AccessToken, fields)
			if err != nil {
				return "", err
			}
			if err := a.pollReady(ctx, childID, req.AccessToken); err != nil {
				return "", err
			}
			childIDs = append(childIDs, childID)
		}
		return a.createSingleContainer(ctx, req.PlatformUserID, req.AccessToken, url.Values{
			"media_type": {"CAROUSEL"}, "children": {strings.Join(childIDs, ",")}, "text": {req.Content},
		})
	default:
		return "", &platform.PublishError{Category: "FATAL", Message: "unknown post type " + req.PostType}
	}
}

func isVideoURL(u string) bool {
	lower := strings.ToLower(u)
	for ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (a *Adapter) createSingleContainer(ctx context.Context, userID, token string, fields url.Values) (string, error) {
	fields.Set("access_token", token)
	path := fmt.Sprintf("%s/%s/threads", a.apiBase(), userID)
	var out struct {
		ID string `json:"id"`
	}
	if err := a.doForm(ctx, path, fields, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (a *Adapter) pollReady(ctx context.Context, containerID, token string) error {
	deadline := time.Now().Add(pollCeiling)
	path := fmt.Sprintf("%s/%s", a.apiBase(), containerID)
	for {
		var status struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		}
		q := url.Values{"fields": {"status,error_message"}, "access_token": {token}}
		if err := a.doGet(ctx, path+"?"+q.Encode(), &status); err != nil {
			return err
		}
		switch status.Status {
		case "FINISHED":
			return nil
		case "IN_PROGRESS", "PUBLISHED":
			// continue polling
		default:
			return &platform.PublishError{
				Category:        "RETRYABLE",
				Message:         fmt.Sprintf("container %s entered unexpected status %s: %s", containerID, status.Status, status.ErrorMessage),
				SuggestedAction: "inspect the media url and retry",
			}
		}
		if time.Now().After(deadline) {
			return &platform.PublishError{
				Category:        "TRANSIENT",
				Message:         fmt.Sprintf("container %s did not finish within %s", containerID, pollCeiling),
				SuggestedAction: "no action needed; the queue will retry automatically",
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (a *Adapter) publish(ctx context.Context, userID, token, containerID string) (string, error) {
	path := fmt.Sprintf("%s/%s/threads_publish", a.apiBase(), userID)
	fields := url.Values{"creation_id": {containerID}, "access_token": {token}}
	var out struct {
		ID string `json:"id"`
	}
	if err := a.doForm(ctx, path, fields, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// PublishComment posts a reply to an already-published post (§4.3.1 step
// 4, and the standalone commentOnlyRetry path of §4.5.3).
func (a *Adapter) PublishComment(ctx context.Context, platformParentID, text, accessToken, platformUserID string) (*platform.CommentResult, error) {
	return a.postComment(ctx, platformParentID, text, accessToken, platformUserID), nil
}

func (a *Adapter) postComment(ctx context.Context, platformParentID, text, accessToken, platformUserID string) *platform.CommentResult {
	select {
	case <-time.After(commentDelay):
	case <-ctx.Done():
		return &platform.CommentResult{Success: false, Error: ctx.Err().Error()}
	}

	containerID, err := a.createSingleContainer(ctx, platformUserID, accessToken, url.Values{
		"media_type": {"TEXT"}, "text": {text}, "reply_to_id": {platformParentID},
	})
	if err != nil {
		return &platform.CommentResult{Success: false, Error: err.Error()}
	}
	if err := a.pollReady(ctx, containerID, accessToken); err != nil {
		return &platform.CommentResult{Success: false, Error: err.Error()}
	}
	commentID, err := a.publish(ctx, platformUserID, accessToken, containerID)
	if err != nil {
		return &platform.CommentResult{Success: false, Error: err.Error()}
	}
	return &platform.CommentResult{Success: true, CommentID: commentID}
}

// ValidateMedia is a best-effort HEAD check (§9 Q2): container creation
// remains the real gate, so a failure here never blocks the pipeline.
func (a *Adapter) ValidateMedia(ctx context.Context, mediaURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return false
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (a *Adapter) doForm(ctx context.Context, path string, fields url.Values, out interface{}) error {
	return a.do(ctx, http.MethodPost, path, strings.NewReader(fields.Encode()), "application/x-www-form-urlencoded", out)
}

func (a *Adapter) doGet(ctx context.Context, path string, out interface{}) error {
	return a.do(ctx, http.MethodGet, path, nil, "", out)
}

func (a *Adapter) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := a.HTTPClient.Do(req)
		if err != nil {
			return nil, classifyTransportError(err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 {
			var envelope struct {
				Error graphError `json:"error"`
			}
			_ = json.Unmarshal(raw, &envelope)
			return nil, classifyHTTPError(resp.StatusCode, string(raw), envelope.Error)
		}
		return raw, nil
	})
	if err != nil {
		if pubErr, ok := err.(*platform.PublishError); ok {
			return pubErr
		}
		return classifyTransportError(err)
	}
	raw := result.([]byte)
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("threads: decode response: %w", err)
		}
	}
	return nil
}
