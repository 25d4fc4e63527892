// Package scheduler runs the daily sweep over subscriptions: lapsed
// active records are expired and stale pending records are abandoned.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/clock"
	obsmetrics "github.com/intellispire/commercestore/internal/observability/metrics"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	jobExpireLapsed   = "expire_lapsed"
	jobAbandonPending = "abandon_pending"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	Repo            subscriptiondomain.Repository
	Clock           clock.Clock
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	repo            subscriptiondomain.Repository
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.SubscriptionSvc == nil || p.Repo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "sweep")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		repo:            p.Repo,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
	}
	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		sweepMetrics.IncJobTimeout(name)
	}
	sweepMetrics.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("sweep job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobExpireLapsed, s.ExpireLapsedJob},
		{jobAbandonPending, s.AbandonPendingJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireLapsedJob expires active and trialling subscriptions whose
// expiration fell inside the previous calendar day. Each candidate is
// re-verified against its gateway before the transition so a profile
// renewed out of band is synced instead of expired.
func (s *Scheduler) ExpireLapsedJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobExpireLapsed, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	dayStart, dayEnd := previousDay(s.clock.Now())
	filter := subscriptiondomain.Filter{
		Statuses: []subscriptiondomain.Status{
			subscriptiondomain.StatusActive,
			subscriptiondomain.StatusTrialling,
		},
		ExpiringFrom: &dayStart,
		ExpiringTo:   &dayEnd,
	}

	return s.sweep(ctx, run, jobExpireLapsed, obsmetrics.SweepResourceExpiredSubscriptions, filter, func(ctx context.Context, sub *subscriptiondomain.Subscription) error {
		return s.subscriptionSvc.Expire(ctx, subscriptiondomain.ExpireRequest{
			SubscriptionID:    sub.ID.String(),
			VerifyWithGateway: true,
			Principal:         subscriptiondomain.PrincipalGateway,
		})
	})
}

// AbandonPendingJob deletes pending subscriptions whose parent payment
// never completed. The cutoff defaults to seven days.
func (s *Scheduler) AbandonPendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobAbandonPending, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	cutoff := s.clock.Now().Add(-s.cfg.AbandonThreshold)
	filter := subscriptiondomain.Filter{
		Statuses:      []subscriptiondomain.Status{subscriptiondomain.StatusPending},
		CreatedBefore: &cutoff,
	}

	return s.sweep(ctx, run, jobAbandonPending, obsmetrics.SweepResourceAbandonedSubscriptions, filter, func(ctx context.Context, sub *subscriptiondomain.Subscription) error {
		return s.subscriptionSvc.Delete(ctx, subscriptiondomain.DeleteRequest{
			SubscriptionID: sub.ID.String(),
			Principal:      subscriptiondomain.PrincipalGateway,
		})
	})
}

// sweep walks all matching subscriptions in id order, applying fn per
// record. A record that fails is skipped and counted; the pass keeps
// going so one bad row cannot wedge the sweep.
func (s *Scheduler) sweep(
	ctx context.Context,
	run *jobRun,
	jobName string,
	resource string,
	filter subscriptiondomain.Filter,
	fn func(ctx context.Context, sub *subscriptiondomain.Subscription) error,
) error {
	sweepMetrics := obsmetrics.Sweep()
	var jobErr error
	var lastID snowflake.ID

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		batch, err := s.repo.List(ctx, s.db, filter,
			option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: lastID}),
			option.WithSortBy(option.WithQuerySortBy("id", "asc", map[string]bool{"id": true})),
			option.WithLimit(s.cfg.BatchSize),
		)
		if err != nil {
			s.logSweepError(run, "sweep batch fetch failed", jobName, err)
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			return jobErr
		}

		for _, sub := range batch {
			lastID = sub.ID
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}

			if err := fn(ctx, sub); err != nil {
				jobErr = errors.Join(jobErr, err)
				run.AddSkipped(1)
				sweepMetrics.IncBatchSkipped(jobName, obsmetrics.ClassifySweepJobReason(err))
				s.logSweepError(run, "sweep record failed", jobName, err,
					zap.String("subscription_id", sub.ID.String()),
				)
				continue
			}
			run.AddProcessed(1)
			sweepMetrics.AddBatchProcessed(jobName, resource, 1)
		}

		if len(batch) < s.cfg.BatchSize {
			return jobErr
		}
	}
}

// previousDay returns the UTC bounds of the calendar day before now,
// half-open on the end.
func previousDay(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return dayEnd.AddDate(0, 0, -1), dayEnd
}
