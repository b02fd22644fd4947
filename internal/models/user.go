package models

import "time"

// User represents an author account stored in the database.
type User struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Opaque UUID.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email.
	Name     string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Active bool `gorm:"not null;default:true"` // Whether the user can sign in.

	AIProviders []AIProvider `gorm:"foreignKey:UserID"` // Registered AI provider credentials.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
