// path: internal/queue/job.go

package queue

import (
	"encoding/json"
	"time"
)

// Job is one unit of work dequeued from a named queue. Payload is raw JSON;
// callers unmarshal it into the shape appropriate to the queue they read
// from (publish vs scheduler-tick).
type Job struct {
	ID          string
	Queue       string
	Payload     []byte
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
}

// Unmarshal decodes the job payload into v.
func (j Job) Unmarshal(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// PublishJobPayload is the payload carried by jobs on the "publish" queue
// (§3.2).
type PublishJobPayload struct {
	PostID           string `json:"postId"`
	AccountID        string `json:"accountId,omitempty"`
	CommentOnlyRetry bool   `json:"commentOnlyRetry,omitempty"`
}

// TickJobPayload is the payload carried by the single "scheduler-tick" job.
type TickJobPayload struct {
	CheckTime int64 `json:"checkTime"`
}
