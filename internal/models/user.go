// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account in the Blogforge application.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	IsAdmin   bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Settings  *UserSettings  `gorm:"foreignKey:UserID" json:"settings,omitempty"`
	Posts     []Post         `gorm:"foreignKey:UserID" json:"posts,omitempty"`
	Topics    []Topic        `gorm:"foreignKey:UserID" json:"topics,omitempty"`
}
