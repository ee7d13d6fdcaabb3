package syncworker

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/credit/domain"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	obsmetrics "github.com/envisionerapp/envisioner-discovery-sub000/internal/observability/metrics"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/tier"
	"go.uber.org/zap"
)

// Candidate is one discovery ingress tuple.
type Candidate struct {
	Platform     identitydomain.Platform `json:"platform"`
	Handle       string                  `json:"handle"`
	Priority     int                     `json:"priority"`
	ProvenanceID *snowflake.ID           `json:"provenance_id,omitempty"`
}

// EnqueueResult reports how an ingress batch fared against the dedup filter.
type EnqueueResult struct {
	Received int   `json:"received"`
	Known    int   `json:"known"`
	Added    int64 `json:"added"`
}

// TierSweepResult summarizes one recompute sweep.
type TierSweepResult struct {
	Checked int  `json:"checked"`
	Changed int  `json:"changed"`
	Skipped bool `json:"skipped"`
}

// SyncStats is the operator-facing view of scheduling state.
type SyncStats struct {
	Identities       int64                             `json:"identities"`
	TierDistribution map[identitydomain.SyncTier]int64 `json:"tier_distribution"`
	PendingByTier    map[string]int64                  `json:"pending_by_tier"`
	DailyCredits     *creditdomain.DailyUsage          `json:"daily_credits"`
	DedupKeys        int                               `json:"dedup_keys"`
}

// Enqueue is the discovery ingress: candidates for already-known identities
// are dropped by the dedup index, the rest land in the queue.
func (w *Worker) Enqueue(ctx context.Context, candidates []Candidate) (*EnqueueResult, error) {
	result := &EnqueueResult{Received: len(candidates)}
	m := obsmetrics.Sync()
	now := w.clock.Now()

	byPlatform := map[identitydomain.Platform][]Candidate{}
	for _, candidate := range candidates {
		platform := identitydomain.NormalizePlatform(string(candidate.Platform))
		if identitydomain.NormalizeHandle(candidate.Handle) == "" {
			continue
		}
		candidate.Platform = platform
		byPlatform[platform] = append(byPlatform[platform], candidate)
	}

	for platform, group := range byPlatform {
		handles := make([]string, 0, len(group))
		for _, candidate := range group {
			handles = append(handles, candidate.Handle)
		}
		fresh := w.dedup.FilterNew(platform, handles)
		result.Known += len(group) - len(fresh)

		freshSet := make(map[string]struct{}, len(fresh))
		for _, handle := range fresh {
			freshSet[handle] = struct{}{}
		}

		items := make([]queuedomain.EnqueueItem, 0, len(fresh))
		for _, candidate := range group {
			handle := identitydomain.NormalizeHandle(candidate.Handle)
			if _, ok := freshSet[handle]; !ok {
				continue
			}
			delete(freshSet, handle)
			items = append(items, queuedomain.EnqueueItem{
				ID:           w.genID.Generate(),
				Platform:     platform,
				Handle:       handle,
				Priority:     candidate.Priority,
				ProvenanceID: candidate.ProvenanceID,
			})
		}
		if len(items) == 0 {
			continue
		}
		added, err := w.queue.Enqueue(ctx, w.db, items, now)
		if err != nil {
			return result, err
		}
		result.Added += added
		m.AddItemsEnqueued(string(platform), "ingress", added)
	}

	w.log.Info("worker.enqueue.ingress",
		zap.Int("received", result.Received),
		zap.Int("known", result.Known),
		zap.Int64("added", result.Added),
	)
	return result, nil
}

// ResetStuck returns claims older than olderThan to the unclaimed pool.
func (w *Worker) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = w.cfg.StuckThreshold
	}
	reset, err := w.queue.ResetStuck(ctx, w.db, olderThan, w.clock.Now())
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		w.log.Warn("worker.claims.reset", zap.Int64("items", reset), zap.Duration("older_than", olderThan))
	}
	return reset, nil
}

// ResetFailed resurrects FAILED items for a platform, bounded by maxRetries.
func (w *Worker) ResetFailed(ctx context.Context, platform identitydomain.Platform, maxRetries int) (int64, error) {
	reset, err := w.queue.ResetFailed(ctx, w.db, identitydomain.NormalizePlatform(string(platform)), maxRetries, w.clock.Now())
	if err != nil {
		return 0, err
	}
	w.log.Info("worker.failed.reset",
		zap.String("platform", string(platform)),
		zap.Int64("items", reset),
		zap.Int("max_retries", maxRetries),
	)
	return reset, nil
}

// RecalculateAllTiers pages every identity, recomputes its tier from current
// metrics and persists only the changed ones. When a sweep lock is
// configured only one replica sweeps at a time; losing the lock skips the
// sweep rather than erroring.
func (w *Worker) RecalculateAllTiers(ctx context.Context) (*TierSweepResult, error) {
	result := &TierSweepResult{}

	if w.sweepLock != nil {
		token, ok, err := w.sweepLock.TryLock(ctx, tierSweepLockKey, 10*time.Minute)
		if err != nil {
			w.log.Warn("worker.sweep.lock_failed", zap.Error(err))
		} else if !ok {
			result.Skipped = true
			w.log.Debug("worker.sweep.lock_held")
			return result, nil
		} else {
			defer func() {
				if err := w.sweepLock.Release(ctx, tierSweepLockKey, token); err != nil {
					w.log.Warn("worker.sweep.unlock_failed", zap.Error(err))
				}
			}()
		}
	}

	m := obsmetrics.Sync()
	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := w.identities.ListAfter(ctx, w.db, afterID, w.cfg.SweepPageSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}

		now := w.clock.Now()
		for _, identity := range page {
			afterID = identity.ID
			result.Checked++

			newTier := tier.Classify(identity, now)
			if newTier == identity.SyncTier {
				continue
			}
			changed, err := w.identities.UpdateTier(ctx, w.db, identity.ID, newTier, now)
			if err != nil {
				return result, err
			}
			if changed {
				result.Changed++
				m.IncTierTransition(string(identity.SyncTier), string(newTier))
			}
		}
	}

	w.log.Info("worker.sweep.done",
		zap.Int("checked", result.Checked),
		zap.Int("changed", result.Changed),
	)
	return result, nil
}

// QueueStats returns per-platform pending/completed/failed counts.
func (w *Worker) QueueStats(ctx context.Context) ([]queuedomain.PlatformStats, error) {
	return w.queue.StatsByPlatform(ctx, w.db)
}

// Stats assembles the sync overview: tier distribution, pending backlog by
// tier and trailing 24h credit spend.
func (w *Worker) Stats(ctx context.Context) (*SyncStats, error) {
	total, err := w.identities.Count(ctx, w.db)
	if err != nil {
		return nil, err
	}
	byTier, err := w.identities.CountByTier(ctx, w.db)
	if err != nil {
		return nil, err
	}
	pendingByTier, err := w.queue.PendingByTier(ctx, w.db)
	if err != nil {
		return nil, err
	}
	dailyCredits, err := w.credits.DailyUsage(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncStats{
		Identities:       total,
		TierDistribution: byTier,
		PendingByTier:    pendingByTier,
		DailyCredits:     dailyCredits,
		DedupKeys:        w.dedup.Size(),
	}, nil
}
