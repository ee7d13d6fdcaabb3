// Package credit meters provider API calls against advisory daily quotas.
package credit

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/config"
	creditdomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/credit/domain"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const usageWindow = 24 * time.Hour

// Tracker records provider calls and answers advisory budget checks over a
// trailing 24h window. Quotas are soft: the worker stops scheduling new calls
// when a provider runs out, but nothing here blocks a call already in flight.
type Tracker struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
	cfg   config.CreditConfig
}

func NewTracker(db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger, cfg config.CreditConfig) *Tracker {
	return &Tracker{
		db:    db,
		node:  node,
		clock: clk,
		log:   log,
		cfg:   cfg,
	}
}

// Cost returns the per-call credit cost for a provider, defaulting to 1.
func (t *Tracker) Cost(platform identitydomain.Platform) int {
	if cost, ok := t.cfg.Costs[strings.ToUpper(string(platform))]; ok && cost > 0 {
		return cost
	}
	return 1
}

// Quota returns the daily credit quota for a provider. Zero means unlimited.
func (t *Tracker) Quota(platform identitydomain.Platform) int {
	if quota, ok := t.cfg.Quotas[strings.ToUpper(string(platform))]; ok {
		return quota
	}
	return t.cfg.DefaultQuota
}

// TrackCall appends one usage record. Metering must never fail a sync pass,
// so write errors are logged and swallowed.
func (t *Tracker) TrackCall(ctx context.Context, platform identitydomain.Platform, operation string, success bool) {
	record := creditdomain.ProviderUsageRecord{
		ID:        t.node.Generate(),
		Platform:  platform,
		Operation: operation,
		Credits:   t.Cost(platform),
		Success:   success,
		CalledAt:  t.clock.Now(),
	}
	err := t.db.WithContext(ctx).Exec(
		`INSERT INTO provider_usage_records (
			id, platform, operation, credits, success, called_at, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Platform,
		record.Operation,
		record.Credits,
		record.Success,
		record.CalledAt,
		record.CalledAt,
	).Error
	if err != nil {
		t.log.Warn("credit.track.failed",
			zap.String("platform", string(platform)),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

// UsedSince sums credits consumed by one provider since the cutoff.
func (t *Tracker) UsedSince(ctx context.Context, platform identitydomain.Platform, since time.Time) (int64, error) {
	var used int64
	err := t.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credits), 0)
		 FROM provider_usage_records
		 WHERE platform = ? AND called_at >= ?`,
		platform,
		since,
	).Scan(&used).Error
	if err != nil {
		return 0, err
	}
	return used, nil
}

// HasBudget reports whether one more call fits inside the provider's trailing
// 24h quota. A zero quota always passes. Read errors fail open: an outage in
// the metering store should not stall sync.
func (t *Tracker) HasBudget(ctx context.Context, platform identitydomain.Platform) bool {
	quota := t.Quota(platform)
	if quota <= 0 {
		return true
	}
	used, err := t.UsedSince(ctx, platform, t.clock.Now().Add(-usageWindow))
	if err != nil {
		t.log.Warn("credit.budget.check_failed",
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
		return true
	}
	return used+int64(t.Cost(platform)) <= int64(quota)
}

// DailyUsage aggregates credits consumed over the trailing 24 hours.
func (t *Tracker) DailyUsage(ctx context.Context) (*creditdomain.DailyUsage, error) {
	var rows []struct {
		Platform identitydomain.Platform
		Total    int64
	}
	err := t.db.WithContext(ctx).Raw(
		`SELECT platform, COALESCE(SUM(credits), 0) AS total
		 FROM provider_usage_records
		 WHERE called_at >= ?
		 GROUP BY platform`,
		t.clock.Now().Add(-usageWindow),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	usage := &creditdomain.DailyUsage{
		ByPlatform: make(map[identitydomain.Platform]int64, len(rows)),
	}
	for _, row := range rows {
		usage.ByPlatform[row.Platform] = row.Total
		usage.Total += row.Total
	}
	return usage, nil
}
