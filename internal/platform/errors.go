// path: internal/platform/errors.go

package platform

import (
	"strconv"
	"strings"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// PublishError is the structured result of classifying a failed platform
// call, per §4.3.2 / §7. Category drives the worker pool's rollback policy;
// SuggestedAction is surfaced to operators verbatim.
type PublishError struct {
	Category        postdomain.ErrorCategory
	Message         string
	SuggestedAction string
}

func (e *PublishError) Error() string { return e.Message }

// graphError mirrors the Threads/Graph API error envelope used in both the
// container-creation and publish responses.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	ErrorSubcode int  `json:"error_subcode"`
}

// classifyHTTPError maps an HTTP status code plus the decoded error
// envelope (possibly zero-valued if the body didn't parse) to a
// PublishError, per §4.3.2.
func classifyHTTPError(statusCode int, body string, gerr graphError) *PublishError {
	lowerMsg := strings.ToLower(gerr.Message)
	lowerBody := strings.ToLower(body)

	if gerr.Code == 190 || strings.Contains(lowerMsg, "expired") {
		return &PublishError{
			Category:        postdomain.ErrorCategoryFatal,
			Message:         "access token expired or invalid: " + gerr.Message,
			SuggestedAction: "refresh the Threads credential for this account and retry",
		}
	}

	if statusCode == 400 {
		if strings.Contains(lowerMsg, "image") || strings.Contains(lowerMsg, "video") || strings.Contains(lowerBody, "image") || strings.Contains(lowerBody, "video") {
			return &PublishError{
				Category:        postdomain.ErrorCategoryRetryable,
				Message:         "invalid media: " + gerr.Message,
				SuggestedAction: "verify the media url is publicly reachable and in a supported format",
			}
		}
		if strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many") || gerr.Code == 4 || gerr.Code == 17 {
			return &PublishError{
				Category:        postdomain.ErrorCategoryRetryable,
				Message:         "rate limited: " + gerr.Message,
				SuggestedAction: "retry later; consider lowering WORKER_CONCURRENCY",
			}
		}
		if strings.Contains(lowerMsg, "character") || strings.Contains(lowerMsg, "length") || strings.Contains(lowerMsg, "too long") {
			return &PublishError{
				Category:        postdomain.ErrorCategoryRetryable,
				Message:         "content too long: " + gerr.Message,
				SuggestedAction: "shorten the post content below the platform limit",
			}
		}
		return &PublishError{
			Category:        postdomain.ErrorCategoryRetryable,
			Message:         "bad request: " + gerr.Message,
			SuggestedAction: "inspect the post content and media for platform compliance",
		}
	}

	if statusCode == 401 {
		return &PublishError{
			Category:        postdomain.ErrorCategoryFatal,
			Message:         "authentication failed: " + gerr.Message,
			SuggestedAction: "reconnect the Threads account",
		}
	}
	if statusCode == 403 {
		return &PublishError{
			Category:        postdomain.ErrorCategoryFatal,
			Message:         "permission denied: " + gerr.Message,
			SuggestedAction: "verify the account grants threads_content_publish permission",
		}
	}
	if statusCode == 429 {
		return &PublishError{
			Category:        postdomain.ErrorCategoryRetryable,
			Message:         "rate limited (429): " + gerr.Message,
			SuggestedAction: "retry later; consider lowering WORKER_CONCURRENCY",
		}
	}
	if statusCode >= 500 {
		return &PublishError{
			Category:        postdomain.ErrorCategoryTransient,
			Message:         "platform server error (" + strconv.Itoa(statusCode) + "): " + gerr.Message,
			SuggestedAction: "no action needed; the queue will retry automatically",
		}
	}

	return &PublishError{
		Category:        postdomain.ErrorCategoryRetryable,
		Message:         "unclassified platform error (" + strconv.Itoa(statusCode) + "): " + gerr.Message,
		SuggestedAction: "inspect the platform response for details",
	}
}

// classifyTransportError handles network-level failures (timeouts, DNS,
// connection resets) that never reached the HTTP response stage.
func classifyTransportError(err error) *PublishError {
	return &PublishError{
		Category:        postdomain.ErrorCategoryTransient,
		Message:         "network error: " + err.Error(),
		SuggestedAction: "no action needed; the queue will retry automatically",
	}
}
