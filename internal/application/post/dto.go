// path: internal/application/post/dto.go
package post

import (
	"time"

	"github.com/google/uuid"

	postdomain "github.com/techappsUT/threads-scheduler/internal/domain/post"
)

// PostDTO is the wire shape returned by every use case in this package.
type PostDTO struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	PostType  string     `json:"postType"`
	ImageURLs []string   `json:"imageUrls,omitempty"`
	VideoURL  string     `json:"videoUrl,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	AccountID *uuid.UUID `json:"accountId,omitempty"`

	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	PlatformPostID string `json:"platformPostId,omitempty"`
	CommentStatus  string `json:"commentStatus"`
	CommentError   string `json:"commentError,omitempty"`

	LastError       string `json:"lastError,omitempty"`
	ErrorCategory   string `json:"errorCategory,omitempty"`
	SuggestedAction string `json:"suggestedAction,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MapPostToDTO projects a domain Post onto its wire representation.
func MapPostToDTO(p *postdomain.Post) *PostDTO {
	return &PostDTO{
		ID:              p.ID(),
		Content:         p.Content(),
		PostType:        string(p.PostType()),
		ImageURLs:       p.ImageURLs(),
		VideoURL:        p.VideoURL(),
		Comment:         p.Comment(),
		AccountID:       p.AccountID(),
		Status:          string(p.Status()),
		ScheduledAt:     p.ScheduledAt(),
		PublishedAt:     p.PublishedAt(),
		PlatformPostID:  p.PlatformPostID(),
		CommentStatus:   string(p.CommentStatus()),
		CommentError:    p.CommentError(),
		LastError:       p.LastError(),
		ErrorCategory:   string(p.ErrorCategory()),
		SuggestedAction: p.SuggestedAction(),
		Version:         p.Version(),
		UpdatedAt:       p.UpdatedAt(),
	}
}
