// Package metrics exposes prometheus instruments for the sync subsystem.
package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/envisionerapp/envisioner-discovery-sub000/pkg/db"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries the constant labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SyncErrorReasonDeadlineExceeded = "deadline_exceeded"
	SyncErrorReasonDB               = "db"
	SyncErrorReasonUnknown          = "unknown"
)

const (
	ProviderOutcomeSuccess  = "success"
	ProviderOutcomeNotFound = "not_found"
	ProviderOutcomeError    = "error"
)

// SyncMetrics captures worker health signals: job cadence, claim contention,
// provider spend and tier churn.
type SyncMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	claimAttempts   *prometheus.CounterVec
	claimConflicts  *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	creditsUsed     *prometheus.CounterVec
	budgetStops     *prometheus.CounterVec
	itemsProcessed  *prometheus.CounterVec
	itemsEnqueued   *prometheus.CounterVec
	tierTransitions *prometheus.CounterVec
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "envisioner-discovery"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_job_runs_total",
		Help:        "Sync worker job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "discovery_sync_job_duration_seconds",
		Help:        "Sync worker job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_job_timeouts_total",
		Help:        "Sync worker jobs cut off by their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_job_errors_total",
		Help:        "Sync worker job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	claimAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_claim_attempts_total",
		Help:        "Queue item claim attempts.",
		ConstLabels: constLabels,
	}, []string{"platform"})
	claimConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_claim_conflicts_total",
		Help:        "Claim attempts lost to another worker.",
		ConstLabels: constLabels,
	}, []string{"platform"})
	providerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_provider_calls_total",
		Help:        "Provider profile fetches by outcome.",
		ConstLabels: constLabels,
	}, []string{"platform", "outcome"})
	creditsUsed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_provider_credits_used_total",
		Help:        "Provider API credits consumed.",
		ConstLabels: constLabels,
	}, []string{"platform"})
	budgetStops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_budget_stops_total",
		Help:        "Sync passes halted early by the credit budget.",
		ConstLabels: constLabels,
	}, []string{"platform"})
	itemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_items_processed_total",
		Help:        "Queue items moved to a terminal status.",
		ConstLabels: constLabels,
	}, []string{"platform", "status"})
	itemsEnqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_sync_items_enqueued_total",
		Help:        "New queue items created by source.",
		ConstLabels: constLabels,
	}, []string{"platform", "source"})
	tierTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "discovery_tier_transitions_total",
		Help:        "Identity tier reclassifications.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		claimAttempts,
		claimConflicts,
		providerCalls,
		creditsUsed,
		budgetStops,
		itemsProcessed,
		itemsEnqueued,
		tierTransitions,
	)

	return &SyncMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobTimeouts:     jobTimeouts,
		jobErrors:       jobErrors,
		claimAttempts:   claimAttempts,
		claimConflicts:  claimConflicts,
		providerCalls:   providerCalls,
		creditsUsed:     creditsUsed,
		budgetStops:     budgetStops,
		itemsProcessed:  itemsProcessed,
		itemsEnqueued:   itemsEnqueued,
		tierTransitions: tierTransitions,
	}
}

// IncJobRun increments the run counter for a worker job.
func (m *SyncMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records worker job latency in seconds.
func (m *SyncMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for a worker job.
func (m *SyncMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *SyncMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySyncErrorReason(err)).Inc()
}

func (m *SyncMetrics) IncClaimAttempt(platform string) {
	if m == nil || m.claimAttempts == nil {
		return
	}
	m.claimAttempts.WithLabelValues(platform).Inc()
}

func (m *SyncMetrics) IncClaimConflict(platform string) {
	if m == nil || m.claimConflicts == nil {
		return
	}
	m.claimConflicts.WithLabelValues(platform).Inc()
}

func (m *SyncMetrics) IncProviderCall(platform, outcome string) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(platform, outcome).Inc()
}

func (m *SyncMetrics) AddCreditsUsed(platform string, credits int) {
	if m == nil || m.creditsUsed == nil || credits <= 0 {
		return
	}
	m.creditsUsed.WithLabelValues(platform).Add(float64(credits))
}

func (m *SyncMetrics) IncBudgetStop(platform string) {
	if m == nil || m.budgetStops == nil {
		return
	}
	m.budgetStops.WithLabelValues(platform).Inc()
}

func (m *SyncMetrics) IncItemProcessed(platform, status string) {
	if m == nil || m.itemsProcessed == nil {
		return
	}
	m.itemsProcessed.WithLabelValues(platform, status).Inc()
}

func (m *SyncMetrics) AddItemsEnqueued(platform, source string, count int64) {
	if m == nil || m.itemsEnqueued == nil || count <= 0 {
		return
	}
	m.itemsEnqueued.WithLabelValues(platform, source).Add(float64(count))
}

func (m *SyncMetrics) IncTierTransition(from, to string) {
	if m == nil || m.tierTransitions == nil {
		return
	}
	m.tierTransitions.WithLabelValues(from, to).Inc()
}

// ClassifySyncErrorReason maps worker errors to low-cardinality reasons.
func ClassifySyncErrorReason(err error) string {
	if err == nil {
		return SyncErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SyncErrorReasonDeadlineExceeded
	}
	if isDBError(err) {
		return SyncErrorReasonDB
	}
	return SyncErrorReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return db.IsDuplicateKeyErr(err) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause)
}
