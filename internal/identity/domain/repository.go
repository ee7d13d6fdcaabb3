package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInvalidHandle = errors.New("invalid_handle")

// MergeRequest is a create-or-update of one identity from a fetched profile.
// ID is only used when the row does not exist yet.
type MergeRequest struct {
	ID             snowflake.ID
	Platform       Platform
	Handle         string
	DisplayName    string
	IsLive         bool
	AvgViewers     int
	Followers      int
	LastActivityAt *time.Time
	BioText        string
	Tier           SyncTier
	SyncKind       SyncKind
	Now            time.Time
}

type Repository interface {
	// Merge upserts by (platform, handle) and stamps the watermark selected
	// by SyncKind. Idempotent: repeating the same request leaves one row.
	Merge(ctx context.Context, db *gorm.DB, req MergeRequest) (*CreatorIdentity, error)
	FindByKey(ctx context.Context, db *gorm.DB, platform Platform, handle string) (*CreatorIdentity, error)
	// ListKeys returns every (platform, handle) pair for the dedup index.
	ListKeys(ctx context.Context, db *gorm.DB) ([]Key, error)
	// ListAfter pages identities by ascending id for the tier sweep.
	ListAfter(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]CreatorIdentity, error)
	// UpdateTier persists a recomputed tier; returns false when the stored
	// tier already matched (no write).
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier SyncTier, now time.Time) (bool, error)
	CountByTier(ctx context.Context, db *gorm.DB) (map[SyncTier]int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
