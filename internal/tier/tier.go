// Package tier classifies identities into freshness tiers and decides sync
// eligibility. Pure functions only, no I/O.
package tier

import (
	"time"

	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
)

const (
	hotViewerThreshold      = 10_000
	activeFollowerThreshold = 1_000
	activeWindow            = 7 * 24 * time.Hour
	standardWindow          = 30 * 24 * time.Hour
)

var intervals = map[identitydomain.SyncTier]time.Duration{
	identitydomain.TierHot:      5 * time.Minute,
	identitydomain.TierActive:   30 * time.Minute,
	identitydomain.TierStandard: 120 * time.Minute,
	identitydomain.TierCold:     1440 * time.Minute,
}

// Classify maps current metrics to a tier. Rules apply in strict order,
// first match wins:
//  1. HOT      — live right now, or avg viewers at or above 10k
//  2. ACTIVE   — activity within 7 days, or 1k+ followers
//  3. STANDARD — activity within 30 days
//  4. COLD     — everything else, including never-active identities
func Classify(identity identitydomain.CreatorIdentity, now time.Time) identitydomain.SyncTier {
	if identity.IsLive || identity.AvgViewers >= hotViewerThreshold {
		return identitydomain.TierHot
	}
	if activityWithin(identity.LastActivityAt, now, activeWindow) || identity.Followers >= activeFollowerThreshold {
		return identitydomain.TierActive
	}
	if activityWithin(identity.LastActivityAt, now, standardWindow) {
		return identitydomain.TierStandard
	}
	return identitydomain.TierCold
}

// Interval returns the minimum re-sync interval for a tier. Unknown tiers
// fall back to the COLD interval.
func Interval(t identitydomain.SyncTier) time.Duration {
	if d, ok := intervals[t]; ok {
		return d
	}
	return intervals[identitydomain.TierCold]
}

// NeedsSync reports whether the identity is due for the given sync kind.
// The tier is always recomputed from current metrics, never read from the
// stored column, so an identity whose activity changed between sweeps is
// sampled at its true cadence.
func NeedsSync(identity identitydomain.CreatorIdentity, kind identitydomain.SyncKind, now time.Time) bool {
	watermark := identity.LastPlatformSyncAt
	if kind == identitydomain.SyncKindSocial {
		watermark = identity.LastSocialSyncAt
	}
	if watermark == nil {
		return true
	}
	return now.Sub(*watermark) >= Interval(Classify(identity, now))
}

func activityWithin(at *time.Time, now time.Time, window time.Duration) bool {
	if at == nil {
		return false
	}
	return now.Sub(*at) <= window
}
