package models

import "time"

// Topic is a candidate subject for a blog post. The Used flag is flipped
// exactly once, by a conditional update, when a draft is generated from it.
type Topic struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Text           string    `gorm:"not null" json:"text"`
	NormalizedText string    `gorm:"not null;index" json:"normalized_text"`
	Used           bool      `gorm:"default:false" json:"used"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddingRecord pairs a topic's normalized text with its embedding vector.
// Records are keyed by (user, normalized text) so recomputing an embedding
// for identical text is a no-op.
type EmbeddingRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index:idx_embeddings_user_text,unique" json:"user_id"`
	NormalizedText string    `gorm:"not null;index:idx_embeddings_user_text,unique" json:"normalized_text"`
	Vector         string    `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
