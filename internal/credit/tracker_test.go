package credit

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	creditdomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/credit/domain"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, cfg config.CreditConfig) (*Tracker, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&creditdomain.ProviderUsageRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(testNow)
	return NewTracker(db, node, clk, zap.NewNop(), cfg), clk
}

func TestTrackCallAppends(t *testing.T) {
	tracker, _ := newTracker(t, config.CreditConfig{DefaultQuota: 100})
	ctx := context.Background()

	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", false)

	used, err := tracker.UsedSince(ctx, identitydomain.PlatformTwitch, testNow.Add(-time.Hour))
	require.NoError(t, err)
	// Failed calls still consume credits.
	assert.EqualValues(t, 2, used)
}

func TestCost(t *testing.T) {
	tracker, _ := newTracker(t, config.CreditConfig{
		DefaultQuota: 100,
		Costs:        map[string]int{"YOUTUBE": 5},
	})

	assert.Equal(t, 5, tracker.Cost(identitydomain.PlatformYouTube))
	assert.Equal(t, 1, tracker.Cost(identitydomain.PlatformTwitch))
}

func TestDailyUsageWindow(t *testing.T) {
	tracker, clk := newTracker(t, config.CreditConfig{DefaultQuota: 100})
	ctx := context.Background()

	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	clk.Advance(30 * time.Hour)
	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	tracker.TrackCall(ctx, identitydomain.PlatformYouTube, "fetch_profile", true)

	usage, err := tracker.DailyUsage(ctx)
	require.NoError(t, err)
	// The first call fell out of the trailing 24h window.
	assert.EqualValues(t, 2, usage.Total)
	assert.EqualValues(t, 1, usage.ByPlatform[identitydomain.PlatformTwitch])
	assert.EqualValues(t, 1, usage.ByPlatform[identitydomain.PlatformYouTube])
}

func TestHasBudget(t *testing.T) {
	tracker, _ := newTracker(t, config.CreditConfig{
		DefaultQuota: 100,
		Quotas:       map[string]int{"TWITCH": 2},
	})
	ctx := context.Background()

	assert.True(t, tracker.HasBudget(ctx, identitydomain.PlatformTwitch))
	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	assert.True(t, tracker.HasBudget(ctx, identitydomain.PlatformTwitch))
	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	assert.False(t, tracker.HasBudget(ctx, identitydomain.PlatformTwitch))
}

func TestHasBudgetRecoversAsWindowSlides(t *testing.T) {
	tracker, clk := newTracker(t, config.CreditConfig{
		Quotas: map[string]int{"TWITCH": 1},
	})
	ctx := context.Background()

	tracker.TrackCall(ctx, identitydomain.PlatformTwitch, "fetch_profile", true)
	assert.False(t, tracker.HasBudget(ctx, identitydomain.PlatformTwitch))

	clk.Advance(25 * time.Hour)
	assert.True(t, tracker.HasBudget(ctx, identitydomain.PlatformTwitch))
}

func TestZeroQuotaIsUnlimited(t *testing.T) {
	tracker, _ := newTracker(t, config.CreditConfig{
		DefaultQuota: 0,
	})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		tracker.TrackCall(ctx, identitydomain.PlatformKick, "fetch_profile", true)
	}
	assert.True(t, tracker.HasBudget(ctx, identitydomain.PlatformKick))
}
