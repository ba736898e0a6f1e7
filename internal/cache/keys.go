package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	UserKeyPrefix      = "user:%d"
	PostKeyPrefix      = "post:%d"
	SettingsKeyPrefix  = "settings:%d"
	EmbeddingKeyPrefix = "emb:%d:%s"
)

const (
	UserTTL      = 5 * time.Minute
	PostTTL      = 30 * time.Minute
	SettingsTTL  = 10 * time.Minute
	EmbeddingTTL = 24 * time.Hour
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func SettingsKey(userID uint) string {
	return fmt.Sprintf(SettingsKeyPrefix, userID)
}

// EmbeddingKey builds a per-user cache key for a normalized topic text. The
// text is hashed so arbitrary titles produce fixed-length keys.
func EmbeddingKey(userID uint, normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return fmt.Sprintf(EmbeddingKeyPrefix, userID, hex.EncodeToString(sum[:]))
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
	Invalidate(ctx, SettingsKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}
