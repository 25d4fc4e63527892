package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/clock"
	obsmetrics "github.com/intellispire/commercestore/internal/observability/metrics"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/option"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRepo struct {
	subscriptiondomain.Repository

	subs []*subscriptiondomain.Subscription

	// returned tracks ids already handed out so repeated batches
	// advance the way the id cursor would against a real table.
	returned map[snowflake.ID]bool
}

func (r *stubRepo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.Filter, opts ...option.QueryOption) ([]*subscriptiondomain.Subscription, error) {
	if r.returned == nil {
		r.returned = make(map[snowflake.ID]bool)
	}
	var out []*subscriptiondomain.Subscription
	for _, sub := range r.subs {
		if r.returned[sub.ID] {
			continue
		}
		if !matchesStatus(filter.Statuses, sub.Status) {
			continue
		}
		if filter.ExpiringFrom != nil && sub.Expiration.Before(*filter.ExpiringFrom) {
			continue
		}
		if filter.ExpiringTo != nil && !sub.Expiration.Before(*filter.ExpiringTo) {
			continue
		}
		if filter.CreatedBefore != nil && !sub.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		r.returned[sub.ID] = true
		out = append(out, sub)
	}
	return out, nil
}

func matchesStatus(statuses []subscriptiondomain.Status, status subscriptiondomain.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type stubLifecycle struct {
	subscriptiondomain.Service

	expired   []subscriptiondomain.ExpireRequest
	deleted   []subscriptiondomain.DeleteRequest
	expireErr map[string]error
}

func (s *stubLifecycle) Expire(ctx context.Context, req subscriptiondomain.ExpireRequest) error {
	if err := s.expireErr[req.SubscriptionID]; err != nil {
		return err
	}
	s.expired = append(s.expired, req)
	return nil
}

func (s *stubLifecycle) Delete(ctx context.Context, req subscriptiondomain.DeleteRequest) error {
	s.deleted = append(s.deleted, req)
	return nil
}

func newTestScheduler(t *testing.T, repo *stubRepo, svc *stubLifecycle, now time.Time) *Scheduler {
	t.Helper()
	obsmetrics.ResetSweepMetricsForTest()
	return &Scheduler{
		db:              &gorm.DB{},
		log:             zap.NewNop(),
		cfg:             DefaultConfig(),
		clock:           clock.NewFakeClock(now),
		subscriptionSvc: svc,
		repo:            repo,
	}
}

func TestExpireLapsedJobSweepsPriorDay(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

	inWindow := &subscriptiondomain.Subscription{
		ID:         1,
		Status:     subscriptiondomain.StatusActive,
		Expiration: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	today := &subscriptiondomain.Subscription{
		ID:         2,
		Status:     subscriptiondomain.StatusActive,
		Expiration: time.Date(2026, 2, 2, 1, 0, 0, 0, time.UTC),
	}
	older := &subscriptiondomain.Subscription{
		ID:         3,
		Status:     subscriptiondomain.StatusTrialling,
		Expiration: time.Date(2026, 1, 30, 23, 59, 59, 0, time.UTC),
	}

	repo := &stubRepo{subs: []*subscriptiondomain.Subscription{inWindow, today, older}}
	svc := &stubLifecycle{}
	sched := newTestScheduler(t, repo, svc, now)

	if err := sched.ExpireLapsedJob(context.Background()); err != nil {
		t.Fatalf("expire job: %v", err)
	}

	if len(svc.expired) != 1 {
		t.Fatalf("expected one expiration, got %d", len(svc.expired))
	}
	req := svc.expired[0]
	if req.SubscriptionID != "1" {
		t.Fatalf("expected subscription 1, got %s", req.SubscriptionID)
	}
	if !req.VerifyWithGateway {
		t.Fatalf("expected gateway verification to be requested")
	}
}

func TestAbandonPendingJobHonorsCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	stale := &subscriptiondomain.Subscription{
		ID:        1,
		Status:    subscriptiondomain.StatusPending,
		CreatedAt: now.AddDate(0, 0, -8),
	}
	fresh := &subscriptiondomain.Subscription{
		ID:        2,
		Status:    subscriptiondomain.StatusPending,
		CreatedAt: now.AddDate(0, 0, -6),
	}
	active := &subscriptiondomain.Subscription{
		ID:        3,
		Status:    subscriptiondomain.StatusActive,
		CreatedAt: now.AddDate(0, 0, -30),
	}

	repo := &stubRepo{subs: []*subscriptiondomain.Subscription{stale, fresh, active}}
	svc := &stubLifecycle{}
	sched := newTestScheduler(t, repo, svc, now)

	if err := sched.AbandonPendingJob(context.Background()); err != nil {
		t.Fatalf("abandon job: %v", err)
	}

	if len(svc.deleted) != 1 {
		t.Fatalf("expected one deletion, got %d", len(svc.deleted))
	}
	if svc.deleted[0].SubscriptionID != "1" {
		t.Fatalf("expected subscription 1, got %s", svc.deleted[0].SubscriptionID)
	}
}

func TestSweepContinuesPastRecordFailures(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	expiration := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	first := &subscriptiondomain.Subscription{ID: 1, Status: subscriptiondomain.StatusActive, Expiration: expiration}
	second := &subscriptiondomain.Subscription{ID: 2, Status: subscriptiondomain.StatusActive, Expiration: expiration}

	repo := &stubRepo{subs: []*subscriptiondomain.Subscription{first, second}}
	svc := &stubLifecycle{
		expireErr: map[string]error{"1": errors.New("gateway_error")},
	}
	sched := newTestScheduler(t, repo, svc, now)

	err := sched.ExpireLapsedJob(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error from failed record")
	}

	if len(svc.expired) != 1 {
		t.Fatalf("expected surviving record to be processed, got %d", len(svc.expired))
	}
	if svc.expired[0].SubscriptionID != "2" {
		t.Fatalf("expected subscription 2, got %s", svc.expired[0].SubscriptionID)
	}
}

func TestRunOnceAggregatesJobs(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

	lapsed := &subscriptiondomain.Subscription{
		ID:         1,
		Status:     subscriptiondomain.StatusActive,
		Expiration: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	stale := &subscriptiondomain.Subscription{
		ID:        2,
		Status:    subscriptiondomain.StatusPending,
		CreatedAt: now.AddDate(0, 0, -10),
	}

	repo := &stubRepo{subs: []*subscriptiondomain.Subscription{lapsed, stale}}
	svc := &stubLifecycle{}
	sched := newTestScheduler(t, repo, svc, now)

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(svc.expired) != 1 || len(svc.deleted) != 1 {
		t.Fatalf("expected both passes to run, expired=%d deleted=%d", len(svc.expired), len(svc.deleted))
	}
}

func TestPreviousDayBounds(t *testing.T) {
	start, end := previousDay(time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC))
	if !start.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
}
