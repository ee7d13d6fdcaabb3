package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySyncErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SyncErrorReasonDeadlineExceeded,
		},
		{
			name: "canceled",
			err:  context.Canceled,
			want: SyncErrorReasonDeadlineExceeded,
		},
		{
			name: "db",
			err:  gorm.ErrInvalidTransaction,
			want: SyncErrorReasonDB,
		},
		{
			name: "duplicate_key",
			err:  gorm.ErrDuplicatedKey,
			want: SyncErrorReasonDB,
		},
		{
			name: "driver_duplicate_key",
			err:  errors.New(`duplicate key value violates unique constraint "ux_sync_queue_items_platform_handle"`),
			want: SyncErrorReasonDB,
		},
		{
			name: "record_not_found_is_not_db",
			err:  gorm.ErrRecordNotFound,
			want: SyncErrorReasonUnknown,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SyncErrorReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySyncErrorReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSyncMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSyncMetrics(registry, Config{ServiceName: "test", Environment: "test"})

	m.IncJobRun("sync_twitch")
	m.IncJobRun("sync_twitch")
	m.IncClaimAttempt("TWITCH")
	m.IncClaimConflict("TWITCH")
	m.IncProviderCall("TWITCH", ProviderOutcomeSuccess)
	m.AddCreditsUsed("TWITCH", 3)
	m.IncBudgetStop("TWITCH")
	m.IncItemProcessed("TWITCH", "COMPLETED")
	m.AddItemsEnqueued("TWITCH", "discovered", 4)
	m.IncTierTransition("COLD", "HOT")
	m.ObserveJobDuration("sync_twitch", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("sync_twitch")); got != 2 {
		t.Fatalf("expected 2 job runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.claimConflicts.WithLabelValues("TWITCH")); got != 1 {
		t.Fatalf("expected 1 claim conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.creditsUsed.WithLabelValues("TWITCH")); got != 3 {
		t.Fatalf("expected 3 credits used, got %v", got)
	}
	if got := testutil.ToFloat64(m.itemsEnqueued.WithLabelValues("TWITCH", "discovered")); got != 4 {
		t.Fatalf("expected 4 items enqueued, got %v", got)
	}
}

func TestSyncMetricsNilSafety(t *testing.T) {
	var m *SyncMetrics
	m.IncJobRun("noop")
	m.IncJobError("noop", errors.New("boom"))
	m.ObserveJobDuration("noop", time.Second)
	m.IncClaimAttempt("TWITCH")
	m.AddCreditsUsed("TWITCH", 1)
}

func TestSyncSingletonReset(t *testing.T) {
	ResetSyncMetricsForTest()
	t.Cleanup(ResetSyncMetricsForTest)

	first := SyncWithConfig(Config{ServiceName: "test", Environment: "test"})
	second := Sync()
	if first != second {
		t.Fatal("expected singleton instance")
	}
}
