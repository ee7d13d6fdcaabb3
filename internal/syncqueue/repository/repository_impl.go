package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() queuedomain.Repository {
	return &repo{}
}

func (r *repo) Enqueue(ctx context.Context, db *gorm.DB, items []queuedomain.EnqueueItem, now time.Time) (int64, error) {
	var added int64
	for _, item := range items {
		handle := identitydomain.NormalizeHandle(item.Handle)
		if handle == "" {
			continue
		}

		// Refresh an outstanding PENDING row first: the new priority and
		// provenance win outright, reseed reasons are fresher signal.
		result := db.WithContext(ctx).Exec(
			`UPDATE sync_queue_items
			 SET priority = ?, provenance_id = ?, updated_at = ?
			 WHERE platform = ? AND handle = ? AND status = ?`,
			item.Priority,
			item.ProvenanceID,
			now,
			item.Platform,
			handle,
			queuedomain.StatusPending,
		)
		if result.Error != nil {
			return added, result.Error
		}
		if result.RowsAffected > 0 {
			continue
		}

		// No PENDING row. Insert unless a terminal row already occupies the
		// key; COMPLETED/FAILED rows are never silently resurrected.
		result = db.WithContext(ctx).Exec(
			`INSERT INTO sync_queue_items (
				id, platform, handle, priority, provenance_id, status,
				retry_count, created_at, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
			 ON CONFLICT (platform, handle) DO NOTHING`,
			item.ID,
			item.Platform,
			handle,
			item.Priority,
			item.ProvenanceID,
			queuedomain.StatusPending,
			now,
			now,
		)
		if result.Error != nil {
			return added, result.Error
		}
		added += result.RowsAffected
	}
	return added, nil
}

func (r *repo) NextBatch(ctx context.Context, db *gorm.DB, platform identitydomain.Platform, size int) ([]queuedomain.SyncQueueItem, error) {
	if size <= 0 {
		size = 25
	}
	var items []queuedomain.SyncQueueItem
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM sync_queue_items
		 WHERE platform = ? AND status = ? AND claimed_at IS NULL
		 ORDER BY priority DESC, created_at ASC, id ASC
		 LIMIT ?`,
		platform,
		queuedomain.StatusPending,
		size,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_queue_items
		 SET claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND claimed_at IS NULL`,
		now,
		now,
		id,
		queuedomain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, success bool, errMsg string, now time.Time) error {
	if success {
		return db.WithContext(ctx).Exec(
			`UPDATE sync_queue_items
			 SET status = ?, last_error = NULL, updated_at = ?
			 WHERE id = ? AND status = ?`,
			queuedomain.StatusCompleted,
			now,
			id,
			queuedomain.StatusPending,
		).Error
	}
	var lastError any
	if errMsg != "" {
		lastError = errMsg
	}
	return db.WithContext(ctx).Exec(
		`UPDATE sync_queue_items
		 SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		queuedomain.StatusFailed,
		lastError,
		now,
		id,
		queuedomain.StatusPending,
	).Error
}

func (r *repo) ResetStuck(ctx context.Context, db *gorm.DB, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan)
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_queue_items
		 SET claimed_at = NULL, updated_at = ?
		 WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?`,
		now,
		queuedomain.StatusPending,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ResetFailed(ctx context.Context, db *gorm.DB, platform identitydomain.Platform, maxRetries int, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_queue_items
		 SET status = ?, claimed_at = NULL, last_error = NULL, updated_at = ?
		 WHERE platform = ? AND status = ? AND retry_count <= ?`,
		queuedomain.StatusPending,
		now,
		platform,
		queuedomain.StatusFailed,
		maxRetries,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) StatsByPlatform(ctx context.Context, db *gorm.DB) ([]queuedomain.PlatformStats, error) {
	var rows []struct {
		Platform identitydomain.Platform
		Status   queuedomain.Status
		Total    int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT platform, status, COUNT(1) AS total
		 FROM sync_queue_items
		 GROUP BY platform, status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byPlatform := map[identitydomain.Platform]*queuedomain.PlatformStats{}
	order := make([]identitydomain.Platform, 0, len(rows))
	for _, row := range rows {
		stats, ok := byPlatform[row.Platform]
		if !ok {
			stats = &queuedomain.PlatformStats{Platform: row.Platform}
			byPlatform[row.Platform] = stats
			order = append(order, row.Platform)
		}
		switch row.Status {
		case queuedomain.StatusPending:
			stats.Pending = row.Total
		case queuedomain.StatusCompleted:
			stats.Completed = row.Total
		case queuedomain.StatusFailed:
			stats.Failed = row.Total
		}
	}

	out := make([]queuedomain.PlatformStats, 0, len(order))
	for _, platform := range order {
		out = append(out, *byPlatform[platform])
	}
	return out, nil
}

func (r *repo) PendingByTier(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Tier  string
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(ci.sync_tier, 'NEW') AS tier, COUNT(1) AS total
		 FROM sync_queue_items q
		 LEFT JOIN creator_identities ci
		   ON ci.platform = q.platform AND ci.handle = q.handle
		 WHERE q.status = ?
		 GROUP BY COALESCE(ci.sync_tier, 'NEW')`,
		queuedomain.StatusPending,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Tier] = row.Total
	}
	return out, nil
}
