// Package domain contains the durable sync backlog model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a queue item. PENDING items with a
// claimed_at timestamp are in flight; terminal items stay as audit trail and
// only an explicit reset returns them to PENDING.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// SyncQueueItem is one unit of pending enrichment work, unique per
// (platform, handle).
type SyncQueueItem struct {
	ID           snowflake.ID            `json:"id" gorm:"primaryKey"`
	Platform     identitydomain.Platform `json:"platform" gorm:"type:text;not null;index:ux_sync_queue_items_platform_handle,unique,priority:1"`
	Handle       string                  `json:"handle" gorm:"type:text;not null;index:ux_sync_queue_items_platform_handle,unique,priority:2"`
	Priority     int                     `json:"priority" gorm:"not null;default:0"`
	ProvenanceID *snowflake.ID           `json:"provenance_id"`
	Status       Status                  `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	ClaimedAt    *time.Time              `json:"claimed_at"`
	RetryCount   int                     `json:"retry_count" gorm:"not null;default:0"`
	LastError    *string                 `json:"last_error" gorm:"type:text"`
	Metadata     datatypes.JSONMap       `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time               `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time               `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SyncQueueItem) TableName() string { return "sync_queue_items" }

// EnqueueItem is a discovery candidate headed for the backlog. ID is only
// used when the (platform, handle) row does not exist yet.
type EnqueueItem struct {
	ID           snowflake.ID
	Platform     identitydomain.Platform
	Handle       string
	Priority     int
	ProvenanceID *snowflake.ID
}

// PlatformStats aggregates queue counts for one provider partition.
type PlatformStats struct {
	Platform  identitydomain.Platform `json:"platform"`
	Pending   int64                   `json:"pending"`
	Completed int64                   `json:"completed"`
	Failed    int64                   `json:"failed"`
}
