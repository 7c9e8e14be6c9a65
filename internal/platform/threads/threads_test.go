// path: internal/platform/threads/threads_test.go

package threads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/techappsUT/threads-scheduler/internal/platform"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a := New(zap.NewNop().Sugar())
	a.BaseURL = server.URL
	a.HTTPClient = server.Client()
	return a
}

func TestPublishTextPostHappyPath(t *testing.T) {
	step := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/"+defaultAPIVersion+"/user-1/threads" && step == 0:
			step++
			json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/"+defaultAPIVersion+"/container-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "FINISHED"})
		case r.Method == http.MethodPost && r.URL.Path == "/"+defaultAPIVersion+"/user-1/threads_publish":
			json.NewEncoder(w).Encode(map[string]string{"id": "post-1"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}
	a := newTestAdapter(t, handler)

	result, err := a.PublishPost(context.Background(), platform.PublishRequest{
		PostType: "TEXT", Content: "hello", AccessToken: "tok", PlatformUserID: "user-1", SkipComment: true,
	}, nil)
	if err != nil {
		t.Fatalf("PublishPost: %v", err)
	}
	if !result.Success || result.PlatformPostID != "post-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPublishPostTokenExpiredIsFatal(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "Error validating access token: Session has expired", "code": 190},
		})
	}
	a := newTestAdapter(t, handler)

	_, err := a.PublishPost(context.Background(), platform.PublishRequest{
		PostType: "TEXT", Content: "hello", AccessToken: "tok", PlatformUserID: "user-1", SkipComment: true,
	}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	pubErr, ok := err.(*platform.PublishError)
	if !ok {
		t.Fatalf("expected *platform.PublishError, got %T", err)
	}
	if pubErr.Category != "FATAL" {
		t.Fatalf("expected FATAL category, got %s", pubErr.Category)
	}
}

func TestPublishPostServerErrorIsTransient(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "internal error"},
		})
	}
	a := newTestAdapter(t, handler)

	_, err := a.PublishPost(context.Background(), platform.PublishRequest{
		PostType: "TEXT", Content: "hello", AccessToken: "tok", PlatformUserID: "user-1", SkipComment: true,
	}, nil)
	pubErr, ok := err.(*platform.PublishError)
	if !ok {
		t.Fatalf("expected *platform.PublishError, got %T (%v)", err, err)
	}
	if pubErr.Category != "TRANSIENT" {
		t.Fatalf("expected TRANSIENT category, got %s", pubErr.Category)
	}
}

func TestValidateMediaBestEffort(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	a := newTestAdapter(t, handler)

	ok := a.ValidateMedia(context.Background(), a.BaseURL+"/image.png")
	if !ok {
		t.Fatal("expected ValidateMedia to succeed against a 200 response")
	}
}
