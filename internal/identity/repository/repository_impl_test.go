package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&identitydomain.CreatorIdentity{}))
	return db
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestMergeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	req := identitydomain.MergeRequest{
		ID:          node.Generate(),
		Platform:    identitydomain.PlatformTwitch,
		Handle:      "Foo",
		DisplayName: "Foo",
		Followers:   500,
		Tier:        identitydomain.TierStandard,
		SyncKind:    identitydomain.SyncKindPlatform,
		Now:         testNow,
	}

	first, err := r.Merge(ctx, db, req)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "foo", first.Handle)

	// Same request again: still one row, same id.
	req.ID = node.Generate()
	second, err := r.Merge(ctx, db, req)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	count, err := r.Count(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMergeRefreshesMetricsAndTier(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	_, err := r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:        node.Generate(),
		Platform:  identitydomain.PlatformTwitch,
		Handle:    "bar",
		Followers: 100,
		Tier:      identitydomain.TierCold,
		SyncKind:  identitydomain.SyncKindPlatform,
		Now:       testNow,
	})
	require.NoError(t, err)

	updated, err := r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:         node.Generate(),
		Platform:   identitydomain.PlatformTwitch,
		Handle:     "bar",
		IsLive:     true,
		AvgViewers: 12_000,
		Followers:  2_000,
		Tier:       identitydomain.TierHot,
		SyncKind:   identitydomain.SyncKindPlatform,
		Now:        testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.IsLive)
	assert.Equal(t, 12_000, updated.AvgViewers)
	assert.Equal(t, identitydomain.TierHot, updated.SyncTier)
}

func TestMergeStampsWatermarkBySyncKind(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	identity, err := r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:       node.Generate(),
		Platform: identitydomain.PlatformTwitter,
		Handle:   "baz",
		SyncKind: identitydomain.SyncKindPlatform,
		Now:      testNow,
	})
	require.NoError(t, err)
	require.NotNil(t, identity.LastPlatformSyncAt)
	assert.Nil(t, identity.LastSocialSyncAt)
	assert.WithinDuration(t, testNow, *identity.LastPlatformSyncAt, time.Second)

	// A social refresh stamps its own watermark and leaves the other alone.
	identity, err = r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:       node.Generate(),
		Platform: identitydomain.PlatformTwitter,
		Handle:   "baz",
		SyncKind: identitydomain.SyncKindSocial,
		Now:      testNow.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, identity.LastPlatformSyncAt)
	require.NotNil(t, identity.LastSocialSyncAt)
	assert.WithinDuration(t, testNow, *identity.LastPlatformSyncAt, time.Second)
	assert.WithinDuration(t, testNow.Add(30*time.Minute), *identity.LastSocialSyncAt, time.Second)
}

func TestMergeRejectsEmptyHandle(t *testing.T) {
	db := newTestDB(t)
	r := Provide()

	_, err := r.Merge(context.Background(), db, identitydomain.MergeRequest{
		ID:       newNode(t).Generate(),
		Platform: identitydomain.PlatformTwitch,
		Handle:   "  @  ",
		Now:      testNow,
	})
	assert.ErrorIs(t, err, identitydomain.ErrInvalidHandle)
}

func TestFindByKeyNormalizes(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	_, err := r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:       node.Generate(),
		Platform: identitydomain.PlatformTikTok,
		Handle:   "dancer",
		Now:      testNow,
	})
	require.NoError(t, err)

	found, err := r.FindByKey(ctx, db, identitydomain.PlatformTikTok, "@Dancer")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "dancer", found.Handle)

	missing, err := r.FindByKey(ctx, db, identitydomain.PlatformTikTok, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAfterPages(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	handles := []string{"a", "b", "c", "d", "e"}
	for _, h := range handles {
		_, err := r.Merge(ctx, db, identitydomain.MergeRequest{
			ID:       node.Generate(),
			Platform: identitydomain.PlatformKick,
			Handle:   h,
			Now:      testNow,
		})
		require.NoError(t, err)
	}

	var seen []string
	var after snowflake.ID
	for {
		page, err := r.ListAfter(ctx, db, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, identity := range page {
			seen = append(seen, identity.Handle)
			after = identity.ID
		}
	}
	assert.Equal(t, handles, seen)
}

func TestUpdateTierReportsChange(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	identity, err := r.Merge(ctx, db, identitydomain.MergeRequest{
		ID:       node.Generate(),
		Platform: identitydomain.PlatformYouTube,
		Handle:   "vlogger",
		Tier:     identitydomain.TierStandard,
		Now:      testNow,
	})
	require.NoError(t, err)

	changed, err := r.UpdateTier(ctx, db, identity.ID, identitydomain.TierActive, testNow)
	require.NoError(t, err)
	assert.True(t, changed)

	// Writing the same tier again is a no-op.
	changed, err = r.UpdateTier(ctx, db, identity.ID, identitydomain.TierActive, testNow)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCountByTier(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	for _, row := range []struct {
		handle string
		tier   identitydomain.SyncTier
	}{
		{"h1", identitydomain.TierHot},
		{"h2", identitydomain.TierHot},
		{"c1", identitydomain.TierCold},
	} {
		_, err := r.Merge(ctx, db, identitydomain.MergeRequest{
			ID:       node.Generate(),
			Platform: identitydomain.PlatformTwitch,
			Handle:   row.handle,
			Tier:     row.tier,
			Now:      testNow,
		})
		require.NoError(t, err)
	}

	byTier, err := r.CountByTier(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 2, byTier[identitydomain.TierHot])
	assert.EqualValues(t, 1, byTier[identitydomain.TierCold])
}
