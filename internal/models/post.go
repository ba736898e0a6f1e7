package models

import (
	"time"

	"gorm.io/gorm"
)

// Post statuses. A post moves draft -> previewed -> published, or to
// sync-failed when the remote publish step is rejected.
const (
	PostStatusDraft      = "draft"
	PostStatusPreviewed  = "previewed"
	PostStatusPublished  = "published"
	PostStatusSyncFailed = "sync-failed"
)

// Post types select the prompt template used for generation.
const (
	PostTypeToolReview = "tool-review"
	PostTypeGeneral    = "general"
	PostTypeGuide      = "guide"
)

// Post represents a generated (or remotely imported) blog post.
type Post struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	TopicID     *uint          `gorm:"index" json:"topic_id,omitempty"`
	Type        string         `gorm:"default:general" json:"type"`
	Title       string         `gorm:"not null" json:"title"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Tags        string         `gorm:"type:text" json:"-"`
	Category    string         `json:"category"`
	Status      string         `gorm:"not null;default:draft;index" json:"status"`
	RemoteID    *string        `gorm:"index" json:"remote_id,omitempty"`
	RemoteURL   string         `json:"remote_url,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// ValidPostType reports whether t names a known prompt template.
func ValidPostType(t string) bool {
	switch t {
	case PostTypeToolReview, PostTypeGeneral, PostTypeGuide:
		return true
	}
	return false
}
