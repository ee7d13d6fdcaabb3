// Package domain contains the append-only provider usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

// ProviderUsageRecord is one metered provider call. Records are append-only;
// budget math reads a trailing window, nothing is ever updated in place.
type ProviderUsageRecord struct {
	ID        snowflake.ID            `json:"id" gorm:"primaryKey"`
	Platform  identitydomain.Platform `json:"platform" gorm:"type:text;not null;index:ix_provider_usage_records_window,priority:1"`
	Operation string                  `json:"operation" gorm:"type:text;not null"`
	Credits   int                     `json:"credits" gorm:"not null;default:1"`
	Success   bool                    `json:"success" gorm:"not null;default:false"`
	CalledAt  time.Time               `json:"called_at" gorm:"not null;index:ix_provider_usage_records_window,priority:2"`
	CreatedAt time.Time               `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProviderUsageRecord) TableName() string { return "provider_usage_records" }

// DailyUsage summarizes credits consumed over the trailing 24 hours.
type DailyUsage struct {
	Total      int64                             `json:"total"`
	ByPlatform map[identitydomain.Platform]int64 `json:"by_platform"`
}
