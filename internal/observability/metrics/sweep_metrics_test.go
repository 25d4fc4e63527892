package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestSweepMetrics(t *testing.T) *SweepMetrics {
	t.Helper()
	return newSweepMetrics(prometheus.NewRegistry(), Config{ServiceName: "test", Environment: "test"})
}

func TestSweepCountersAccumulate(t *testing.T) {
	m := newTestSweepMetrics(t)

	m.IncJobRun("expire_lapsed")
	m.IncJobRun("expire_lapsed")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("expire_lapsed")))

	m.AddBatchProcessed("expire_lapsed", SweepResourceExpiredSubscriptions, 3)
	m.AddBatchProcessed("expire_lapsed", SweepResourceExpiredSubscriptions, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(
		m.batchProcessed.WithLabelValues("expire_lapsed", SweepResourceExpiredSubscriptions)))

	m.IncBatchSkipped("expire_lapsed", SweepJobReasonUnknown)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.batchSkipped.WithLabelValues("expire_lapsed", SweepJobReasonUnknown)))

	m.IncJobTimeout("abandon_pending")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobTimeouts.WithLabelValues("abandon_pending")))
}

func TestIncJobErrorClassifiesReason(t *testing.T) {
	m := newTestSweepMetrics(t)

	m.IncJobError("expire_lapsed", context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.jobErrors.WithLabelValues("expire_lapsed", SweepJobReasonDeadlineExceeded)))

	m.IncJobError("expire_lapsed", gorm.ErrDuplicatedKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.jobErrors.WithLabelValues("expire_lapsed", SweepJobReasonUniqueViolation)))

	m.IncJobError("expire_lapsed", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.jobErrors.WithLabelValues("expire_lapsed", SweepJobReasonDeadlineExceeded)), "nil error counts nothing")
}

func TestClassifySweepJobReason(t *testing.T) {
	assert.Equal(t, SweepJobReasonDeadlineExceeded, ClassifySweepJobReason(context.DeadlineExceeded))
	assert.Equal(t, SweepJobReasonDeadlineExceeded, ClassifySweepJobReason(context.Canceled))
	assert.Equal(t, SweepJobReasonDBLockTimeout, ClassifySweepJobReason(&pgconn.PgError{Code: "55P03"}))
	assert.Equal(t, SweepJobReasonSerializationFailure, ClassifySweepJobReason(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, SweepJobReasonUniqueViolation, ClassifySweepJobReason(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, SweepJobReasonUniqueViolation, ClassifySweepJobReason(gorm.ErrDuplicatedKey))
	assert.Equal(t, SweepJobReasonUnknown, ClassifySweepJobReason(errors.New("boom")))
	assert.Equal(t, SweepJobReasonUnknown, ClassifySweepJobReason(nil))
}

func TestIsSweepErrorRetryable(t *testing.T) {
	assert.True(t, IsSweepErrorRetryable(context.DeadlineExceeded))
	assert.True(t, IsSweepErrorRetryable(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsSweepErrorRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsSweepErrorRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSweepErrorRetryable(errors.New("boom")))
	assert.False(t, IsSweepErrorRetryable(nil))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SweepMetrics
	m.IncJobRun("expire_lapsed")
	m.ObserveJobDuration("expire_lapsed", time.Second)
	m.IncJobTimeout("expire_lapsed")
	m.IncJobError("expire_lapsed", errors.New("boom"))
	m.AddBatchProcessed("expire_lapsed", SweepResourceExpiredSubscriptions, 1)
	m.IncBatchSkipped("expire_lapsed", SweepJobReasonUnknown)
	m.ObserveRunLoopLag(-time.Second)
}

func TestSingletonReset(t *testing.T) {
	ResetSweepMetricsForTest()
	t.Cleanup(ResetSweepMetricsForTest)

	reg := prometheus.NewRegistry()
	m := newSweepMetrics(reg, Config{})
	require.NotNil(t, m)

	m.IncJobRun("expire_lapsed")
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "commercestore_sweep_job_runs_total" {
			found = true
		}
	}
	assert.True(t, found)
}
