package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// Enqueue upserts candidates by (platform, handle). A PENDING row takes
	// the new priority and provenance (the fresher signal wins); terminal
	// rows are left untouched. Returns the number of newly created rows.
	Enqueue(ctx context.Context, db *gorm.DB, items []EnqueueItem, now time.Time) (int64, error)

	// NextBatch returns up to size unclaimed PENDING items for one provider,
	// ordered priority DESC then created_at ASC (FIFO tie-break).
	NextBatch(ctx context.Context, db *gorm.DB, platform identitydomain.Platform, size int) ([]SyncQueueItem, error)

	// Claim is the single compare-and-set in the subsystem: it stamps
	// claimed_at only if the row is still PENDING and unclaimed, and reports
	// whether this caller won. Safe under any number of concurrent workers
	// because the condition and the write are one statement.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// MarkProcessed moves a claimed item to its terminal status. Failures
	// increment retry_count and record the error; nothing is auto-requeued.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, success bool, errMsg string, now time.Time) error

	// ResetStuck returns items claimed longer than olderThan ago, but never
	// finished, to the unclaimed PENDING pool. Crash recovery only.
	ResetStuck(ctx context.Context, db *gorm.DB, olderThan time.Duration, now time.Time) (int64, error)

	// ResetFailed is the explicit administrative resurrection path for
	// FAILED rows with retry_count at or below maxRetries.
	ResetFailed(ctx context.Context, db *gorm.DB, platform identitydomain.Platform, maxRetries int, now time.Time) (int64, error)

	StatsByPlatform(ctx context.Context, db *gorm.DB) ([]PlatformStats, error)

	// PendingByTier joins pending items against known identities; items for
	// handles not yet in the store report under the "NEW" bucket.
	PendingByTier(ctx context.Context, db *gorm.DB) (map[string]int64, error)
}
