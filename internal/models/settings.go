package models

import "time"

// DefaultSyncIntervalHours is the sync cadence applied when a user has not
// saved settings yet.
const DefaultSyncIntervalHours = 6

// UserSettings holds a user's third-party credentials and pipeline preferences.
// Credential fields (WordPressPassword, OpenAIKey, BackupSecret) are stored
// AES-GCM sealed with the process credential key and never serialized to JSON.
type UserSettings struct {
	UserID            uint      `gorm:"primaryKey" json:"user_id"`
	WordPressURL      string    `json:"wordpress_url"`
	WordPressUsername string    `json:"wordpress_username"`
	WordPressPassword string    `json:"-"`
	OpenAIKey         string    `json:"-"`
	ToolPrompt        string    `gorm:"type:text" json:"tool_prompt"`
	GeneralPrompt     string    `gorm:"type:text" json:"general_prompt"`
	GuidePrompt       string    `gorm:"type:text" json:"guide_prompt"`
	AutoSyncEnabled   bool      `gorm:"default:false" json:"auto_sync_enabled"`
	SyncIntervalHours int       `gorm:"default:6" json:"sync_interval_hours"`
	EnableBackup      bool      `gorm:"default:false" json:"enable_backup"`
	EncryptBackup     bool      `gorm:"default:false" json:"encrypt_backup"`
	EmailAfterBackup  bool      `gorm:"default:false" json:"email_after_backup"`
	BackupSecret      string    `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}
