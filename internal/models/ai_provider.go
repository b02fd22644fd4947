package models

import (
	"time"

	"gorm.io/datatypes"
)

// AIProvider stores one encrypted AI provider credential per user and provider type.
type AIProvider struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Opaque UUID, generated at creation.

	UserID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_ai_providers_user_provider"` // Owning user.
	Provider string `gorm:"type:varchar(32);not null;uniqueIndex:idx_ai_providers_user_provider"` // Provider tag, immutable.

	APIKey         string  `gorm:"type:text;not null"` // Encrypted credential; empty only for Ollama.
	KeyHash        string  `gorm:"type:text;not null"` // One-way digest for display identification.
	KeyLabel       *string `gorm:"type:text"`          // User-facing label.
	ProviderUserID *string `gorm:"type:text"`          // Upstream identity from OAuth exchange.

	IsActive  bool `gorm:"not null;default:true"`  // Soft-disable flag.
	IsDefault bool `gorm:"not null;default:false"` // At most one per (user, provider).

	UsageLimit     *float64 `gorm:"type:decimal(20,10)"`                    // Optional quota cap.
	UsageRemaining *float64 `gorm:"type:decimal(20,10)"`                    // Optional remaining quota.
	CurrentUsage   float64  `gorm:"type:decimal(20,10);not null;default:0"` // Accumulated usage.

	SupportedModels datatypes.JSON `gorm:"type:jsonb"` // Optional ordered model identifier list.
	ProviderConfig  datatypes.JSON `gorm:"type:jsonb"` // Optional free-form configuration mapping.

	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	LastUsedAt *time.Time // Stamped by downstream AI-invocation consumers.
}

// TableName overrides the default table name.
func (AIProvider) TableName() string {
	return "ai_providers"
}
