// Package syncworker drives the discovery and refresh loop: it drains the
// sync queue per platform, refreshes identities whose tier interval elapsed,
// recomputes tiers and recovers stuck claims.
package syncworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/clock"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/credit"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/dedup"
	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	obsmetrics "github.com/envisionerapp/envisioner-discovery-sub000/internal/observability/metrics"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/provider"
	"github.com/envisionerapp/envisioner-discovery-sub000/internal/ratelimit"
	queuedomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/syncqueue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("syncworker: invalid configuration")

const tierSweepLockKey = "sync:tier_sweep:lock"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Identities identitydomain.Repository
	Queue      queuedomain.Repository
	Dedup      *dedup.Index
	Credits    *credit.Tracker
	Providers  *provider.Registry

	Pacer     *ratelimit.Pacer  `optional:"true"`
	SweepLock *ratelimit.Locker `optional:"true"`
	Config    Config            `optional:"true"`
}

type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	identities identitydomain.Repository
	queue      queuedomain.Repository
	dedup      *dedup.Index
	credits    *credit.Tracker
	providers  *provider.Registry
	pacer      *ratelimit.Pacer
	sweepLock  *ratelimit.Locker
}

func New(p Params) (*Worker, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.Identities == nil || p.Queue == nil || p.Dedup == nil ||
		p.Credits == nil || p.Providers == nil {
		return nil, ErrInvalidConfig
	}
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("syncworker").With(zap.String("component", "syncworker")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		identities: p.Identities,
		queue:      p.Queue,
		dedup:      p.Dedup,
		credits:    p.Credits,
		providers:  p.Providers,
		pacer:      p.Pacer,
		sweepLock:  p.SweepLock,
	}, nil
}

func (w *Worker) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := w.log.With(zap.String("job", name))
	syncMetrics := obsmetrics.Sync()
	syncMetrics.IncJobRun(name)
	log.Debug("worker.job.start")

	err := fn(ctx)
	syncMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		log.Debug("worker.job.done", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		syncMetrics.IncJobTimeout(name)
		syncMetrics.IncJobError(name, err)
		log.Warn("worker.job.timeout",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	syncMetrics.IncJobError(name, err)
	log.Error("worker.job.failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one full worker pass. Individual job failures never abort
// the pass; errors are joined for the caller's log line.
func (w *Worker) RunOnce(parent context.Context) error {
	var err error

	if w.isJobEnabled("dedup_refresh") && w.dedup.NeedsRefresh() {
		err = errors.Join(err, w.runJob(parent, "dedup_refresh", 2*time.Minute, w.dedup.Refresh))
	}

	if w.isJobEnabled("reset_stuck") {
		err = errors.Join(err, w.runJob(parent, "reset_stuck", 30*time.Second, func(ctx context.Context) error {
			_, resetErr := w.ResetStuck(ctx, w.cfg.StuckThreshold)
			return resetErr
		}))
	}

	if w.isJobEnabled("tier_recompute") {
		err = errors.Join(err, w.runJob(parent, "tier_recompute", 10*time.Minute, func(ctx context.Context) error {
			_, sweepErr := w.RecalculateAllTiers(ctx)
			return sweepErr
		}))
	}

	for _, platform := range w.cfg.Platforms {
		platform := platform
		jobName := "sync_" + strings.ToLower(string(platform))
		if !w.isJobEnabled(jobName) {
			continue
		}
		err = errors.Join(err, w.runJob(parent, jobName, 10*time.Minute, func(ctx context.Context) error {
			_, syncErr := w.SyncPlatform(ctx, platform, w.cfg.BatchSize)
			return syncErr
		}))
	}

	if w.isJobEnabled("refresh_due") {
		err = errors.Join(err, w.runJob(parent, "refresh_due", 10*time.Minute, func(ctx context.Context) error {
			_, refreshErr := w.RefreshDue(ctx, w.cfg.BatchSize)
			return refreshErr
		}))
	}

	return err
}

// RunForever runs worker passes on a fixed interval until ctx is canceled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("worker.run.failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// isJobEnabled defaults to all jobs when EnabledJobs is empty.
func (w *Worker) isJobEnabled(jobName string) bool {
	if len(w.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range w.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// pace spaces out provider calls: the shared token bucket when redis is
// configured, a local sleep otherwise.
func (w *Worker) pace(ctx context.Context, platform identitydomain.Platform) {
	if w.pacer.Enabled() {
		res, err := w.pacer.Allow(ctx, platform)
		if err != nil {
			w.log.Debug("worker.pace.fallback", zap.Error(err))
		} else if !res.Allowed && res.RetryAfter > 0 {
			w.sleep(ctx, res.RetryAfter)
			return
		} else {
			return
		}
	}
	w.sleep(ctx, w.cfg.CallDelay)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
