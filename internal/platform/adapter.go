// path: internal/platform/adapter.go

package platform

import "context"

// ProgressFunc is invoked by an adapter at each phase of the publish
// protocol (§4.3.3). Implementations must not block on it.
type ProgressFunc func(stepLabel string)

// PublishRequest carries everything an adapter needs to publish one post.
// PostType, ImageURLs, and VideoURL mirror the domain Post fields of the
// same name; the adapter package does not import the post package so it
// stays usable against any future platform with a different entity shape.
type PublishRequest struct {
	PostType  string
	Content   string
	ImageURLs []string
	VideoURL  string
	Comment   string
	SkipComment bool

	AccessToken    string
	PlatformUserID string
}

// CommentResult is the outcome of the optional reply-comment step. A
// failed comment never fails the enclosing PublishResult (§4.3.1).
type CommentResult struct {
	Success   bool
	CommentID string
	Error     string
}

// PublishResult is the outcome of PublishPost.
type PublishResult struct {
	Success        bool
	PlatformPostID string
	CommentResult  *CommentResult
}

// PlatformAdapter is the small capability set every social platform
// implementation provides (§4.3, §9 design note: no inheritance, an
// interface with per-post dynamic dispatch).
type PlatformAdapter interface {
	PublishPost(ctx context.Context, req PublishRequest, progress ProgressFunc) (*PublishResult, error)
	PublishComment(ctx context.Context, platformParentID, text, accessToken, platformUserID string) (*CommentResult, error)
	ValidateMedia(ctx context.Context, url string) bool
}
