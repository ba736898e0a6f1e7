package database

import "blogforge/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserSettings{},
		&models.Topic{},
		&models.EmbeddingRecord{},
		&models.Post{},
	}
}
