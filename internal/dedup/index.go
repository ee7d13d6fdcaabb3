// Package dedup holds the in-memory existence index used to avoid enqueuing
// handles the store already knows.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRefreshInterval = time.Hour

// Index answers "does (platform, handle) already exist?" from memory.
// It is rebuilt from the identity store and may lag writes from other
// processes by at most the refresh interval; a false negative only costs a
// redundant provider call because the downstream create path is an
// idempotent upsert. Add keeps this process's own writes visible without
// waiting for a refresh.
type Index struct {
	db              *gorm.DB
	repo            identitydomain.Repository
	log             *zap.Logger
	clock           clock.Clock
	refreshInterval time.Duration

	mu          sync.RWMutex
	keys        map[string]struct{}
	refreshedAt time.Time
}

func New(db *gorm.DB, repo identitydomain.Repository, log *zap.Logger, clk clock.Clock, refreshInterval time.Duration) *Index {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	return &Index{
		db:              db,
		repo:            repo,
		log:             log.Named("dedup"),
		clock:           clk,
		refreshInterval: refreshInterval,
		keys:            map[string]struct{}{},
	}
}

func indexKey(platform identitydomain.Platform, handle string) string {
	return string(platform) + "|" + identitydomain.NormalizeHandle(handle)
}

func (i *Index) Exists(platform identitydomain.Platform, handle string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[indexKey(platform, handle)]
	return ok
}

// FilterNew returns the handles not already known, preserving input order.
// Duplicates within the input collapse to one entry.
func (i *Index) FilterNew(platform identitydomain.Platform, handles []string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	seen := make(map[string]struct{}, len(handles))
	out := make([]string, 0, len(handles))
	for _, handle := range handles {
		normalized := identitydomain.NormalizeHandle(handle)
		if normalized == "" {
			continue
		}
		key := indexKey(platform, normalized)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, known := i.keys[key]; known {
			continue
		}
		out = append(out, normalized)
	}
	return out
}

// Add records a locally-created identity ahead of the next refresh.
func (i *Index) Add(platform identitydomain.Platform, handle string) {
	if identitydomain.NormalizeHandle(handle) == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys[indexKey(platform, handle)] = struct{}{}
}

// Refresh rebuilds the whole index from the identity store.
func (i *Index) Refresh(ctx context.Context) error {
	keys, err := i.repo.ListKeys(ctx, i.db)
	if err != nil {
		return err
	}

	rebuilt := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		handle := identitydomain.NormalizeHandle(key.Handle)
		if handle == "" {
			continue
		}
		rebuilt[indexKey(key.Platform, handle)] = struct{}{}
	}

	now := i.clock.Now()
	i.mu.Lock()
	i.keys = rebuilt
	i.refreshedAt = now
	i.mu.Unlock()

	i.log.Debug("dedup.index.refreshed", zap.Int("keys", len(rebuilt)))
	return nil
}

// NeedsRefresh reports whether the index is older than the staleness bound.
// A never-refreshed index always needs one.
func (i *Index) NeedsRefresh() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.refreshedAt.IsZero() {
		return true
	}
	return i.clock.Now().Sub(i.refreshedAt) >= i.refreshInterval
}

// Size returns the number of known keys, for stats surfaces.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}
