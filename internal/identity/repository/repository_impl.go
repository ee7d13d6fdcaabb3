package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() identitydomain.Repository {
	return &repo{}
}

func watermarkColumn(kind identitydomain.SyncKind) string {
	if kind == identitydomain.SyncKindSocial {
		return "last_social_sync_at"
	}
	return "last_platform_sync_at"
}

func (r *repo) Merge(ctx context.Context, db *gorm.DB, req identitydomain.MergeRequest) (*identitydomain.CreatorIdentity, error) {
	handle := identitydomain.NormalizeHandle(req.Handle)
	if handle == "" {
		return nil, identitydomain.ErrInvalidHandle
	}

	wm := watermarkColumn(req.SyncKind)
	query := fmt.Sprintf(
		`INSERT INTO creator_identities (
			id, platform, handle, display_name, is_live, avg_viewers, followers,
			last_activity_at, sync_tier, %s, bio_text, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (platform, handle) DO UPDATE SET
			display_name = excluded.display_name,
			is_live = excluded.is_live,
			avg_viewers = excluded.avg_viewers,
			followers = excluded.followers,
			last_activity_at = excluded.last_activity_at,
			sync_tier = excluded.sync_tier,
			%s = excluded.%s,
			bio_text = excluded.bio_text,
			updated_at = excluded.updated_at`,
		wm, wm, wm,
	)

	err := db.WithContext(ctx).Exec(query,
		req.ID,
		req.Platform,
		handle,
		req.DisplayName,
		req.IsLive,
		req.AvgViewers,
		req.Followers,
		req.LastActivityAt,
		req.Tier,
		req.Now,
		req.BioText,
		req.Now,
		req.Now,
	).Error
	if err != nil {
		return nil, err
	}

	return r.FindByKey(ctx, db, req.Platform, handle)
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, platform identitydomain.Platform, handle string) (*identitydomain.CreatorIdentity, error) {
	var identity identitydomain.CreatorIdentity
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creator_identities WHERE platform = ? AND handle = ?`,
		platform,
		identitydomain.NormalizeHandle(handle),
	).Scan(&identity).Error
	if err != nil {
		return nil, err
	}
	if identity.ID == 0 {
		return nil, nil
	}
	return &identity, nil
}

func (r *repo) ListKeys(ctx context.Context, db *gorm.DB) ([]identitydomain.Key, error) {
	var keys []identitydomain.Key
	err := db.WithContext(ctx).Raw(
		`SELECT platform, handle FROM creator_identities`,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) ListAfter(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]identitydomain.CreatorIdentity, error) {
	if limit <= 0 {
		limit = 500
	}
	var identities []identitydomain.CreatorIdentity
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM creator_identities WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID,
		limit,
	).Scan(&identities).Error
	if err != nil {
		return nil, err
	}
	return identities, nil
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier identitydomain.SyncTier, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE creator_identities
		 SET sync_tier = ?, updated_at = ?
		 WHERE id = ? AND sync_tier <> ?`,
		tier,
		now,
		id,
		tier,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountByTier(ctx context.Context, db *gorm.DB) (map[identitydomain.SyncTier]int64, error) {
	var rows []struct {
		SyncTier identitydomain.SyncTier
		Total    int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT sync_tier, COUNT(1) AS total FROM creator_identities GROUP BY sync_tier`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[identitydomain.SyncTier]int64, len(rows))
	for _, row := range rows {
		out[row.SyncTier] = row.Total
	}
	return out, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM creator_identities`,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
