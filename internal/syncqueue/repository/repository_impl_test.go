package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Serialize access so concurrent claims contend on one connection.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&identitydomain.CreatorIdentity{}, &queuedomain.SyncQueueItem{}))
	return db
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func enqueueOne(t *testing.T, db *gorm.DB, r queuedomain.Repository, node *snowflake.Node, platform identitydomain.Platform, handle string, priority int) snowflake.ID {
	t.Helper()
	id := node.Generate()
	added, err := r.Enqueue(context.Background(), db, []queuedomain.EnqueueItem{
		{ID: id, Platform: platform, Handle: handle, Priority: priority},
	}, testNow)
	require.NoError(t, err)
	require.EqualValues(t, 1, added)
	return id
}

func loadItem(t *testing.T, db *gorm.DB, platform identitydomain.Platform, handle string) queuedomain.SyncQueueItem {
	t.Helper()
	var item queuedomain.SyncQueueItem
	require.NoError(t, db.Raw(
		`SELECT * FROM sync_queue_items WHERE platform = ? AND handle = ?`,
		platform, handle,
	).Scan(&item).Error)
	require.NotZero(t, item.ID)
	return item
}

func TestEnqueueNeverDuplicatesKey(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)

	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "bar", 10)

	// Second enqueue of the same pair while PENDING: priority refreshed, no
	// new row, zero added.
	added, err := r.Enqueue(context.Background(), db, []queuedomain.EnqueueItem{
		{ID: node.Generate(), Platform: identitydomain.PlatformTwitch, Handle: "bar", Priority: 50},
	}, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, added)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM sync_queue_items`).Scan(&count).Error)
	assert.EqualValues(t, 1, count)

	item := loadItem(t, db, identitydomain.PlatformTwitch, "bar")
	assert.Equal(t, 50, item.Priority)
	assert.Equal(t, queuedomain.StatusPending, item.Status)
}

func TestEnqueueNormalizesHandles(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)

	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "MixedCase", 1)
	added, err := r.Enqueue(context.Background(), db, []queuedomain.EnqueueItem{
		{ID: node.Generate(), Platform: identitydomain.PlatformTwitch, Handle: "@mixedcase", Priority: 2},
	}, testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 0, added)

	item := loadItem(t, db, identitydomain.PlatformTwitch, "mixedcase")
	assert.Equal(t, 2, item.Priority)
}

func TestEnqueueDoesNotResurrectTerminalRows(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "done", 1)
	claimed, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, id, true, "", testNow))

	added, err := r.Enqueue(ctx, db, []queuedomain.EnqueueItem{
		{ID: node.Generate(), Platform: identitydomain.PlatformTwitch, Handle: "done", Priority: 99},
	}, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, added)

	item := loadItem(t, db, identitydomain.PlatformTwitch, "done")
	assert.Equal(t, queuedomain.StatusCompleted, item.Status)
	assert.Equal(t, 1, item.Priority)
}

func TestNextBatchOrdering(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	// Insert with distinct created_at values to exercise the FIFO tie-break.
	for i, row := range []struct {
		handle   string
		priority int
		offset   time.Duration
	}{
		{"low", 1, 0},
		{"high-older", 9, time.Second},
		{"high-newer", 9, 2 * time.Second},
		{"mid", 5, 3 * time.Second},
	} {
		_ = i
		_, err := r.Enqueue(ctx, db, []queuedomain.EnqueueItem{
			{ID: node.Generate(), Platform: identitydomain.PlatformTwitch, Handle: row.handle, Priority: row.priority},
		}, testNow.Add(row.offset))
		require.NoError(t, err)
	}

	batch, err := r.NextBatch(ctx, db, identitydomain.PlatformTwitch, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "high-older", batch[0].Handle)
	assert.Equal(t, "high-newer", batch[1].Handle)
	assert.Equal(t, "mid", batch[2].Handle)
}

func TestNextBatchIsPartitionedByPlatform(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "a", 1)
	enqueueOne(t, db, r, node, identitydomain.PlatformYouTube, "b", 1)

	batch, err := r.NextBatch(ctx, db, identitydomain.PlatformTwitch, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].Handle)
}

func TestClaimIsSingleWinner(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "item-1", 1)

	first, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := r.Claim(ctx, db, id, testNow.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, second)
}

func TestClaimConcurrentExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "contested", 1)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Claim(ctx, db, id, testNow)
			if err == nil && ok {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	assert.Equal(t, 1, winners)

	item := loadItem(t, db, identitydomain.PlatformTwitch, "contested")
	assert.Equal(t, queuedomain.StatusPending, item.Status)
	assert.NotNil(t, item.ClaimedAt)
}

func TestClaimedItemLeavesNextBatch(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "claimed", 1)
	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "free", 1)

	claimed, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	require.True(t, claimed)

	batch, err := r.NextBatch(ctx, db, identitydomain.PlatformTwitch, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "free", batch[0].Handle)
}

func TestMarkProcessedFailureIncrementsRetryCount(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "missing", 1)
	claimed, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, r.MarkProcessed(ctx, db, id, false, "not found", testNow))

	item := loadItem(t, db, identitydomain.PlatformTwitch, "missing")
	assert.Equal(t, queuedomain.StatusFailed, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.LastError)
	assert.Equal(t, "not found", *item.LastError)
}

func TestMarkProcessedIsTerminal(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "once", 1)
	claimed, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, id, true, "", testNow))

	// A second terminal mark is a no-op: the status guard misses.
	require.NoError(t, r.MarkProcessed(ctx, db, id, false, "late failure", testNow))

	item := loadItem(t, db, identitydomain.PlatformTwitch, "once")
	assert.Equal(t, queuedomain.StatusCompleted, item.Status)
	assert.Equal(t, 0, item.RetryCount)
}

func TestResetStuck(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	stuckID := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "stuck", 1)
	freshID := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "fresh", 1)

	claimed, err := r.Claim(ctx, db, stuckID, testNow.Add(-40*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = r.Claim(ctx, db, freshID, testNow.Add(-5*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	reset, err := r.ResetStuck(ctx, db, 30*time.Minute, testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reset)

	stuck := loadItem(t, db, identitydomain.PlatformTwitch, "stuck")
	assert.Equal(t, queuedomain.StatusPending, stuck.Status)
	assert.Nil(t, stuck.ClaimedAt)

	fresh := loadItem(t, db, identitydomain.PlatformTwitch, "fresh")
	assert.NotNil(t, fresh.ClaimedAt)
}

func TestResetStuckIgnoresTerminalItems(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "failed", 1)
	claimed, err := r.Claim(ctx, db, id, testNow.Add(-2*time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, id, false, "gone", testNow.Add(-time.Hour)))

	reset, err := r.ResetStuck(ctx, db, 30*time.Minute, testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reset)
}

func TestResetFailed(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	id := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "retryable", 1)
	claimed, err := r.Claim(ctx, db, id, testNow)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, id, false, "timeout", testNow))

	reset, err := r.ResetFailed(ctx, db, identitydomain.PlatformTwitch, 3, testNow)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reset)

	item := loadItem(t, db, identitydomain.PlatformTwitch, "retryable")
	assert.Equal(t, queuedomain.StatusPending, item.Status)
	assert.Nil(t, item.ClaimedAt)
	assert.Nil(t, item.LastError)
	assert.Equal(t, 1, item.RetryCount)

	// Reclaimable again after the reset.
	claimed, err = r.Claim(ctx, db, id, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestStatsByPlatform(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "p1", 1)
	doneID := enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "c1", 1)
	failID := enqueueOne(t, db, r, node, identitydomain.PlatformYouTube, "f1", 1)

	claimed, err := r.Claim(ctx, db, doneID, testNow)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, doneID, true, "", testNow))

	claimed, err = r.Claim(ctx, db, failID, testNow)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, r.MarkProcessed(ctx, db, failID, false, "private", testNow))

	stats, err := r.StatsByPlatform(ctx, db)
	require.NoError(t, err)

	byPlatform := map[identitydomain.Platform]queuedomain.PlatformStats{}
	for _, s := range stats {
		byPlatform[s.Platform] = s
	}
	assert.EqualValues(t, 1, byPlatform[identitydomain.PlatformTwitch].Pending)
	assert.EqualValues(t, 1, byPlatform[identitydomain.PlatformTwitch].Completed)
	assert.EqualValues(t, 1, byPlatform[identitydomain.PlatformYouTube].Failed)
}

func TestPendingByTier(t *testing.T) {
	db := newTestDB(t)
	r := Provide()
	node := newNode(t)
	ctx := context.Background()

	// One pending item backed by a known STANDARD identity, one for a handle
	// the store has never seen.
	require.NoError(t, db.Create(&identitydomain.CreatorIdentity{
		ID:       node.Generate(),
		Platform: identitydomain.PlatformTwitch,
		Handle:   "known",
		SyncTier: identitydomain.TierStandard,
	}).Error)
	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "known", 1)
	enqueueOne(t, db, r, node, identitydomain.PlatformTwitch, "unknown", 1)

	byTier, err := r.PendingByTier(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, byTier["STANDARD"])
	assert.EqualValues(t, 1, byTier["NEW"])
}
