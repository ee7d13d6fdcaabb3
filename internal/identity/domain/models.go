// Package domain contains the canonical creator identity model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Platform identifies the source network a handle belongs to.
type Platform string

const (
	PlatformTwitch    Platform = "TWITCH"
	PlatformYouTube   Platform = "YOUTUBE"
	PlatformTwitter   Platform = "TWITTER"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformTikTok    Platform = "TIKTOK"
	PlatformKick      Platform = "KICK"
)

// NormalizePlatform maps free-form input to a canonical platform name.
func NormalizePlatform(raw string) Platform {
	return Platform(strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizeHandle lower-cases and trims a handle. All writes and lookups go
// through this so (platform, handle) stays globally unique.
func NormalizeHandle(raw string) string {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
	return strings.ToLower(trimmed)
}

// SyncTier is the freshness classification governing re-sync cadence.
type SyncTier string

const (
	TierHot      SyncTier = "HOT"
	TierActive   SyncTier = "ACTIVE"
	TierStandard SyncTier = "STANDARD"
	TierCold     SyncTier = "COLD"
)

// SyncKind selects which watermark a sync pass stamps.
type SyncKind string

const (
	SyncKindPlatform SyncKind = "platform"
	SyncKindSocial   SyncKind = "social"
)

// SyncKindFor maps a platform to the watermark its syncs stamp: streaming
// platforms carry live metrics and stamp the platform watermark, social
// networks stamp the social one.
func SyncKindFor(p Platform) SyncKind {
	switch p {
	case PlatformTwitter, PlatformInstagram, PlatformTikTok:
		return SyncKindSocial
	default:
		return SyncKindPlatform
	}
}

// CreatorIdentity is one tracked (platform, handle) account.
type CreatorIdentity struct {
	ID                 snowflake.ID      `json:"id" gorm:"primaryKey"`
	Platform           Platform          `json:"platform" gorm:"type:text;not null;index:ux_creator_identities_platform_handle,unique,priority:1"`
	Handle             string            `json:"handle" gorm:"type:text;not null;index:ux_creator_identities_platform_handle,unique,priority:2"`
	DisplayName        string            `json:"display_name" gorm:"type:text;not null;default:''"`
	IsLive             bool              `json:"is_live" gorm:"not null;default:false"`
	AvgViewers         int               `json:"avg_viewers" gorm:"not null;default:0"`
	Followers          int               `json:"followers" gorm:"not null;default:0"`
	LastActivityAt     *time.Time        `json:"last_activity_at"`
	SyncTier           SyncTier          `json:"sync_tier" gorm:"type:text;not null;default:'COLD';index"`
	LastPlatformSyncAt *time.Time        `json:"last_platform_sync_at"`
	LastSocialSyncAt   *time.Time        `json:"last_social_sync_at"`
	BioText            string            `json:"bio_text" gorm:"type:text;not null;default:''"`
	Metadata           datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreatorIdentity) TableName() string { return "creator_identities" }

// Key is the (platform, handle) pair used by the dedup index.
type Key struct {
	Platform Platform
	Handle   string
}
