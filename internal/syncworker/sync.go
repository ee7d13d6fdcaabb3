package syncworker

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	obsmetrics "github.com/envisionerapp/envisioner-discovery-sub000/internal/observability/metrics"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/provider"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/tier"
	"go.uber.org/zap"
)

// SyncResult aggregates one sync pass over a platform's queue partition.
type SyncResult struct {
	Total   int   `json:"total"`
	Success int   `json:"success"`
	Errors  int   `json:"errors"`
	Credits int64 `json:"credits"`
}

// SyncPlatform drains up to batchSize pending queue items for one platform.
// Items are processed strictly sequentially; the budget check runs before
// every call so an exhausted provider stops the pass with items left PENDING
// for the next one. Claim losses are skipped silently.
func (w *Worker) SyncPlatform(ctx context.Context, platform identitydomain.Platform, batchSize int) (*SyncResult, error) {
	fetcher, err := w.providers.Fetcher(platform)
	if err != nil {
		return nil, err
	}

	items, err := w.queue.NextBatch(ctx, w.db, platform, batchSize)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	m := obsmetrics.Sync()
	log := w.log.With(zap.String("platform", string(platform)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !w.credits.HasBudget(ctx, platform) {
			m.IncBudgetStop(string(platform))
			log.Warn("worker.budget.exhausted", zap.Int("remaining_items", len(items)-result.Total))
			break
		}

		m.IncClaimAttempt(string(platform))
		claimed, err := w.queue.Claim(ctx, w.db, item.ID, w.clock.Now())
		if err != nil {
			return result, err
		}
		if !claimed {
			m.IncClaimConflict(string(platform))
			log.Debug("worker.claim.lost", zap.String("handle", item.Handle))
			continue
		}

		if result.Total > 0 {
			w.pace(ctx, platform)
		}
		result.Total++

		credits, ok := w.syncItem(ctx, fetcher, item)
		result.Credits += int64(credits)
		if ok {
			result.Success++
		} else {
			result.Errors++
		}
	}

	log.Info("worker.sync.pass",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("errors", result.Errors),
		zap.Int64("credits", result.Credits),
	)
	return result, nil
}

// syncItem resolves one claimed queue item: fetch, merge, reseed, terminal
// mark. Item-level failures are absorbed here so the batch continues.
func (w *Worker) syncItem(ctx context.Context, fetcher provider.Fetcher, item queuedomain.SyncQueueItem) (int, bool) {
	platform := item.Platform
	m := obsmetrics.Sync()
	log := w.log.With(
		zap.String("platform", string(platform)),
		zap.String("handle", item.Handle),
	)

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	profile, fetchErr := fetcher.FetchProfile(fetchCtx, item.Handle)
	cancel()

	cost := w.credits.Cost(platform)
	w.credits.TrackCall(ctx, platform, "fetch_profile", fetchErr == nil)
	m.AddCreditsUsed(string(platform), cost)

	now := w.clock.Now()
	if fetchErr != nil {
		outcome := obsmetrics.ProviderOutcomeError
		reason := fetchErr.Error()
		if errors.Is(fetchErr, provider.ErrNotFound) {
			outcome = obsmetrics.ProviderOutcomeNotFound
			reason = "not found"
		}
		m.IncProviderCall(string(platform), outcome)
		log.Info("worker.fetch.failed", zap.String("outcome", outcome), zap.Error(fetchErr))

		if err := w.queue.MarkProcessed(ctx, w.db, item.ID, false, reason, now); err != nil {
			log.Error("worker.item.mark_failed", zap.Error(err))
		}
		m.IncItemProcessed(string(platform), string(queuedomain.StatusFailed))
		return cost, false
	}

	m.IncProviderCall(string(platform), obsmetrics.ProviderOutcomeSuccess)

	merged, err := w.mergeProfile(ctx, platform, item.Handle, profile, now)
	if err != nil {
		log.Error("worker.merge.failed", zap.Error(err))
		if markErr := w.queue.MarkProcessed(ctx, w.db, item.ID, false, err.Error(), now); markErr != nil {
			log.Error("worker.item.mark_failed", zap.Error(markErr))
		}
		m.IncItemProcessed(string(platform), string(queuedomain.StatusFailed))
		return cost, false
	}

	w.enqueueDiscovered(ctx, merged, profile)

	// The item completes against the requested handle even when the account
	// was renamed and merged under the returned one; re-enqueueing the old
	// handle would loop forever.
	if err := w.queue.MarkProcessed(ctx, w.db, item.ID, true, "", now); err != nil {
		log.Error("worker.item.mark_failed", zap.Error(err))
	}
	m.IncItemProcessed(string(platform), string(queuedomain.StatusCompleted))
	return cost, true
}

// mergeProfile upserts the fetched profile into the identity store, keyed by
// the handle the provider returned, with the tier recomputed from the fresh
// metrics.
func (w *Worker) mergeProfile(
	ctx context.Context,
	platform identitydomain.Platform,
	requestedHandle string,
	profile *provider.NormalizedProfile,
	now time.Time,
) (*identitydomain.CreatorIdentity, error) {
	handle := profile.Handle
	if identitydomain.NormalizeHandle(handle) == "" {
		handle = requestedHandle
	}

	newTier := tier.Classify(identitydomain.CreatorIdentity{
		IsLive:         profile.IsLive,
		AvgViewers:     profile.AvgViewers,
		Followers:      profile.Followers,
		LastActivityAt: profile.LastActivityAt,
	}, now)

	merged, err := w.identities.Merge(ctx, w.db, identitydomain.MergeRequest{
		ID:             w.genID.Generate(),
		Platform:       platform,
		Handle:         handle,
		DisplayName:    profile.DisplayName,
		IsLive:         profile.IsLive,
		AvgViewers:     profile.AvgViewers,
		Followers:      profile.Followers,
		LastActivityAt: profile.LastActivityAt,
		BioText:        profile.BioText,
		Tier:           newTier,
		SyncKind:       identitydomain.SyncKindFor(platform),
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	w.dedup.Add(platform, merged.Handle)
	return merged, nil
}

// enqueueDiscovered reseeds cross-platform handles referenced in a profile's
// bio and discovered links. Known handles are filtered by the dedup index;
// failures only cost a missed discovery, so they are logged and dropped.
func (w *Worker) enqueueDiscovered(ctx context.Context, source *identitydomain.CreatorIdentity, profile *provider.NormalizedProfile) {
	refs := provider.ExtractHandles(profile.BioText)
	for _, link := range profile.DiscoveredLinks {
		refs = append(refs, provider.ExtractHandles(link)...)
	}
	if len(refs) == 0 {
		return
	}

	m := obsmetrics.Sync()
	byPlatform := map[identitydomain.Platform][]string{}
	for _, ref := range refs {
		if ref.Platform == source.Platform && ref.Handle == source.Handle {
			continue
		}
		byPlatform[ref.Platform] = append(byPlatform[ref.Platform], ref.Handle)
	}

	now := w.clock.Now()
	provenance := source.ID
	for platform, handles := range byPlatform {
		fresh := w.dedup.FilterNew(platform, handles)
		if len(fresh) == 0 {
			continue
		}
		items := make([]queuedomain.EnqueueItem, 0, len(fresh))
		for _, handle := range fresh {
			items = append(items, queuedomain.EnqueueItem{
				ID:           w.genID.Generate(),
				Platform:     platform,
				Handle:       handle,
				Priority:     w.cfg.DiscoveredPriority,
				ProvenanceID: &provenance,
			})
		}
		added, err := w.queue.Enqueue(ctx, w.db, items, now)
		if err != nil {
			w.log.Warn("worker.discover.enqueue_failed",
				zap.String("platform", string(platform)),
				zap.Error(err),
			)
			continue
		}
		m.AddItemsEnqueued(string(platform), "discovered", added)
	}
}

// RefreshDue re-fetches identities whose tier interval has elapsed, paging
// the store and stopping per platform when the budget runs out. This is the
// steady-state refresh path; the queue only carries first-time discoveries.
func (w *Worker) RefreshDue(ctx context.Context, limit int) (*SyncResult, error) {
	if limit <= 0 {
		limit = w.cfg.BatchSize
	}

	enabled := map[identitydomain.Platform]bool{}
	for _, platform := range w.cfg.Platforms {
		enabled[platform] = true
	}
	exhausted := map[identitydomain.Platform]bool{}

	result := &SyncResult{}
	m := obsmetrics.Sync()
	var afterID snowflake.ID

	for result.Total < limit {
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

		for _, identity := range page {
			afterID = identity.ID
			if result.Total >= limit {
				break
			}
			platform := identity.Platform
			if !enabled[platform] || exhausted[platform] || !w.providers.Has(platform) {
				continue
			}
			if !tier.NeedsSync(identity, identitydomain.SyncKindFor(platform), w.clock.Now()) {
				continue
			}
			if !w.credits.HasBudget(ctx, platform) {
				m.IncBudgetStop(string(platform))
				exhausted[platform] = true
				continue
			}

			fetcher, err := w.providers.Fetcher(platform)
			if err != nil {
				continue
			}

			if result.Total > 0 {
				w.pace(ctx, platform)
			}
			result.Total++

			credits, ok := w.refreshIdentity(ctx, fetcher, identity)
			result.Credits += int64(credits)
			if ok {
				result.Success++
			} else {
				result.Errors++
			}
		}
	}

	if result.Total > 0 {
		w.log.Info("worker.refresh.pass",
			zap.Int("total", result.Total),
			zap.Int("success", result.Success),
			zap.Int("errors", result.Errors),
			zap.Int64("credits", result.Credits),
		)
	}
	return result, nil
}

func (w *Worker) refreshIdentity(ctx context.Context, fetcher provider.Fetcher, identity identitydomain.CreatorIdentity) (int, bool) {
	platform := identity.Platform
	m := obsmetrics.Sync()
	log := w.log.With(
		zap.String("platform", string(platform)),
		zap.String("handle", identity.Handle),
	)

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	profile, fetchErr := fetcher.FetchProfile(fetchCtx, identity.Handle)
	cancel()

	cost := w.credits.Cost(platform)
	w.credits.TrackCall(ctx, platform, "refresh_profile", fetchErr == nil)
	m.AddCreditsUsed(string(platform), cost)

	if fetchErr != nil {
		outcome := obsmetrics.ProviderOutcomeError
		if errors.Is(fetchErr, provider.ErrNotFound) {
			outcome = obsmetrics.ProviderOutcomeNotFound
		}
		m.IncProviderCall(string(platform), outcome)
		log.Info("worker.refresh.failed", zap.String("outcome", outcome), zap.Error(fetchErr))
		return cost, false
	}

	m.IncProviderCall(string(platform), obsmetrics.ProviderOutcomeSuccess)

	merged, err := w.mergeProfile(ctx, platform, identity.Handle, profile, w.clock.Now())
	if err != nil {
		log.Error("worker.merge.failed", zap.Error(err))
		return cost, false
	}
	if merged.SyncTier != identity.SyncTier {
		m.IncTierTransition(string(identity.SyncTier), string(merged.SyncTier))
	}
	w.enqueueDiscovered(ctx, merged, profile)
	return cost, true
}
