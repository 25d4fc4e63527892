package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries the const labels stamped onto every sweep metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SweepJobReasonDeadlineExceeded     = "deadline_exceeded"
	SweepJobReasonDBLockTimeout        = "db_lock_timeout"
	SweepJobReasonSerializationFailure = "serialization_failure"
	SweepJobReasonUniqueViolation      = "unique_violation"
	SweepJobReasonGatewayUnavailable   = "gateway_unavailable"
	SweepJobReasonUnknown              = "unknown"
)

const (
	SweepResourceExpiredSubscriptions   = "expired_subscriptions"
	SweepResourceAbandonedSubscriptions = "abandoned_subscriptions"
)

// SweepMetrics captures recurring sweep health signals.
type SweepMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchSkipped   *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics registry using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest resets the sweep metrics singleton for tests.
func ResetSweepMetricsForTest() {
	if sweepMetrics != nil {
		for _, c := range []prometheus.Collector{
			sweepMetrics.jobRuns,
			sweepMetrics.jobDuration,
			sweepMetrics.jobTimeouts,
			sweepMetrics.jobErrors,
			sweepMetrics.batchProcessed,
			sweepMetrics.batchSkipped,
		} {
			prometheus.DefaultRegisterer.Unregister(c)
		}
		if c, ok := sweepMetrics.runLoopLag.(prometheus.Collector); ok {
			prometheus.DefaultRegisterer.Unregister(c)
		}
	}
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "commercestore"
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
		Name:        "commercestore_sweep_job_runs_total",
		Help:        "Sweep job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "commercestore_sweep_job_duration_seconds",
		Help:        "Sweep job latency to keep daily subscription maintenance on time.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commercestore_sweep_job_timeouts_total",
		Help:        "Sweep job timeouts that leave subscriptions unswept.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commercestore_sweep_job_errors_total",
		Help:        "Sweep job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commercestore_sweep_batch_processed_total",
		Help:        "Sweep batch items processed to gauge maintenance throughput.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	batchSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "commercestore_sweep_batch_skipped_total",
		Help:        "Sweep batch items skipped after per-record failures.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "commercestore_sweep_runloop_lag_seconds",
		Help:        "Sweep run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		batchSkipped,
		runLoopLag,
	)

	return &SweepMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		batchProcessed: batchProcessed,
		batchSkipped:   batchSkipped,
		runLoopLag:     runLoopLag,
	}
}

// IncJobRun increments the run counter for a sweep job.
func (m *SweepMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records sweep job latency in seconds.
func (m *SweepMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the sweep job.
func (m *SweepMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the sweep job error counter with classification.
func (m *SweepMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySweepJobReason(err)).Inc()
}

// AddBatchProcessed increments the batch processed counter for a resource by count.
func (m *SweepMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// IncBatchSkipped increments the skipped counter for a job and reason.
func (m *SweepMetrics) IncBatchSkipped(job, reason string) {
	if m == nil || m.batchSkipped == nil {
		return
	}
	m.batchSkipped.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SweepMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySweepJobReason maps sweep job errors to low-cardinality reasons.
func ClassifySweepJobReason(err error) string {
	if err == nil {
		return SweepJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SweepJobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return SweepJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return SweepJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return SweepJobReasonUniqueViolation
	}
	return SweepJobReasonUnknown
}

// IsSweepErrorRetryable reports whether the sweep error should be retried.
func IsSweepErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return hasPGCode(err, "55P03") || hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
