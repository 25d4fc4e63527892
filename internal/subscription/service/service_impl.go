package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/billingclock"
	"github.com/intellispire/commercestore/internal/clock"
	"github.com/intellispire/commercestore/internal/config"
	"github.com/intellispire/commercestore/internal/event"
	"github.com/intellispire/commercestore/internal/gateway"
	"github.com/intellispire/commercestore/internal/locking"
	orderdomain "github.com/intellispire/commercestore/internal/order/domain"
	paymentdomain "github.com/intellispire/commercestore/internal/payment/domain"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/option"
	"github.com/intellispire/commercestore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const gatewayCallTimeout = 10 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	orders   orderdomain.Repository
	recorder paymentdomain.Recorder
	bus      *event.Bus
	registry *gateway.Registry
	storeCfg *config.StoreConfigHolder
	locker   *locking.Locker
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Orders   orderdomain.Repository
	Recorder paymentdomain.Recorder
	Bus      *event.Bus
	Registry *gateway.Registry
	StoreCfg *config.StoreConfigHolder
	Locker   *locking.Locker `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		orders:   p.Orders,
		recorder: p.Recorder,
		bus:      p.Bus,
		registry: p.Registry,
		storeCfg: p.StoreCfg,
		locker:   p.Locker,
	}
}

// Create implements domain.Service.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	customerID, err := s.parseID(req.CustomerID, subscriptiondomain.ErrInvalidCustomer)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	productID, err := s.parseID(req.ProductID, subscriptiondomain.ErrInvalidProduct)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	parentOrderID, err := s.parseID(req.ParentOrderID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var priceTierID *snowflake.ID
	if strings.TrimSpace(req.PriceTierID) != "" {
		id, err := s.parseID(req.PriceTierID, subscriptiondomain.ErrInvalidProduct)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
		priceTierID = &id
	}

	period, err := billingclock.ParsePeriod(req.Period)
	if err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPeriod
	}

	status := subscriptiondomain.StatusPending
	if strings.TrimSpace(req.Status) != "" {
		status = subscriptiondomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
		if !status.Valid() {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStatus
		}
	}

	now := s.clock.Now()
	expiration := s.initialExpiration(req, period, now)

	// A supplied past expiration cannot leave the record claiming
	// access it no longer has.
	if req.Expiration != nil && expiration.Before(now) &&
		(status == subscriptiondomain.StatusActive || status == subscriptiondomain.StatusTrialling) {
		status = subscriptiondomain.StatusExpired
	}

	sub := subscriptiondomain.Subscription{
		ID:               s.genID.Generate(),
		CustomerID:       customerID,
		ProductID:        productID,
		PriceTierID:      priceTierID,
		ParentOrderID:    parentOrderID,
		GatewayProfileID: strings.TrimSpace(req.GatewayProfileID),
		Gateway:          strings.ToLower(strings.TrimSpace(req.Gateway)),
		Period:           period,
		InitialAmount:    req.InitialAmount,
		InitialTax:       req.InitialTax,
		RecurringAmount:  req.RecurringAmount,
		RecurringTax:     req.RecurringTax,
		BillTimes:        req.BillTimes,
		TrialLength:      req.TrialLength,
		TrialUnit:        strings.ToLower(strings.TrimSpace(req.TrialUnit)),
		Status:           status,
		Expiration:       expiration,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	principal := s.principal(req.Principal)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			return err
		}
		return s.appendNote(ctx, tx, sub.ID,
			fmt.Sprintf("Subscription created with status %s by %s", sub.Status.Label(), principal))
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.bus.Publish(ctx, event.Created{ID: sub.ID.String(), Status: string(sub.Status), Principal: principal})
	return sub, nil
}

func (s *Service) initialExpiration(req subscriptiondomain.CreateSubscriptionRequest, period billingclock.Period, now time.Time) time.Time {
	if req.Expiration != nil {
		return *req.Expiration
	}
	if req.TrialLength > 0 {
		if unit, err := billingclock.ParsePeriod(req.TrialUnit); err == nil {
			return addPeriods(now, unit, req.TrialLength)
		}
	}
	expiration, err := billingclock.NextExpiration(period, now)
	if err != nil {
		return now
	}
	return expiration
}

// GetByID implements domain.Service. Reading a subscription whose
// expiration has passed reclassifies it as expired first.
func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subID, err := s.parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	if err := s.lazyExpire(ctx, sub); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return *sub, nil
}

// GetByGatewayProfileID implements domain.Service.
func (s *Service) GetByGatewayProfileID(ctx context.Context, profileID string) (subscriptiondomain.Subscription, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}

	sub, err := s.repo.FindByGatewayProfileID(ctx, s.db, profileID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	if err := s.lazyExpire(ctx, sub); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return *sub, nil
}

// GetView implements domain.Service.
func (s *Service) GetView(ctx context.Context, id string) (subscriptiondomain.View, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return subscriptiondomain.View{}, err
	}

	notes, err := s.repo.ListNotes(ctx, s.db, sub.ID)
	if err != nil {
		return subscriptiondomain.View{}, err
	}
	billed, err := s.recorder.TimesBilled(ctx, s.db, &sub)
	if err != nil {
		return subscriptiondomain.View{}, err
	}

	return subscriptiondomain.NewView(sub, notes, billed, s.storeCfg.Get().CompletedGrantsAccess), nil
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	filter := subscriptiondomain.Filter{}

	if strings.TrimSpace(req.Status) != "" {
		status := subscriptiondomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
		if !status.Valid() {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidStatus
		}
		filter.Statuses = []subscriptiondomain.Status{status}
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		id, err := s.parseID(req.CustomerID, subscriptiondomain.ErrInvalidCustomer)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, err
		}
		filter.CustomerID = id
	}
	if strings.TrimSpace(req.ProductID) != "" {
		id, err := s.parseID(req.ProductID, subscriptiondomain.ErrInvalidProduct)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, err
		}
		filter.ProductID = id
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	subs, err := s.repo.List(ctx, s.db, filter,
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}),
		option.WithSortBy(option.WithQuerySortBy("id", "desc", map[string]bool{"id": true})),
	)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	pageInfo, subs := pagination.BuildCursorPageInfo(subs, pageSize, func(sub *subscriptiondomain.Subscription) string {
		return sub.ID.String()
	})

	items := make([]subscriptiondomain.Subscription, 0, len(subs))
	for _, sub := range subs {
		items = append(items, *sub)
	}

	return subscriptiondomain.ListSubscriptionResponse{
		PageInfo:      *pageInfo,
		Subscriptions: items,
	}, nil
}

// Renew implements domain.Service.
func (s *Service) Renew(ctx context.Context, req subscriptiondomain.RenewRequest) (subscriptiondomain.RenewResponse, error) {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.RenewResponse{}, err
	}

	principal := s.principal(req.Principal)

	var resp subscriptiondomain.RenewResponse
	var events []event.Event
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			events = events[:0]

			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}

			gatewayName := strings.TrimSpace(req.Gateway)
			if gatewayName == "" {
				gatewayName = sub.Gateway
			}

			var orderID snowflake.ID
			if req.TransactionID != "" {
				// Idempotency gate runs before any state change: a
				// replayed transaction returns the prior order id and
				// leaves the record untouched.
				existing, err := s.recorder.FindRecorded(ctx, tx, gatewayName, req.TransactionID)
				if err != nil {
					return err
				}
				if existing != 0 {
					resp = subscriptiondomain.RenewResponse{
						Subscription:   *sub,
						RenewalOrderID: existing.String(),
					}
					return nil
				}

				result, err := s.recorder.RecordPayment(ctx, tx, sub, paymentdomain.Charge{
					Amount:        req.Amount,
					Tax:           req.Tax,
					TransactionID: req.TransactionID,
					Gateway:       gatewayName,
				})
				if err != nil {
					return err
				}
				orderID = result.OrderID
				if !result.Created {
					resp = subscriptiondomain.RenewResponse{
						Subscription:   *sub,
						RenewalOrderID: orderID.String(),
					}
					return nil
				}
			}

			now := s.clock.Now()
			base := now
			if s.grantsAccessAt(sub, now) {
				if sub.Expiration.After(now) {
					base = sub.Expiration
				}
			}

			newExpiration, err := billingclock.NextExpiration(sub.Period, base)
			if err != nil {
				return err
			}
			if req.ExpirationOverride != nil {
				newExpiration = *req.ExpirationOverride
			}

			oldStatus := sub.Status
			nextStatus := subscriptiondomain.StatusActive
			completed := false
			if sub.BillTimes > 0 {
				billed, err := s.recorder.TimesBilled(ctx, tx, sub)
				if err != nil {
					return err
				}
				if billed >= sub.BillTimes {
					nextStatus = subscriptiondomain.StatusCompleted
					completed = true
				}
			}

			sub.Status = nextStatus
			sub.Expiration = newExpiration
			sub.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}

			note := fmt.Sprintf("Subscription renewed until %s by %s",
				billingclock.Canonical(newExpiration), principal)
			if oldStatus != nextStatus {
				note = fmt.Sprintf("Status changed from %s to %s by %s; renewed until %s",
					oldStatus.Label(), nextStatus.Label(), principal, billingclock.Canonical(newExpiration))
			}
			if err := s.appendNote(ctx, tx, sub.ID, note); err != nil {
				return err
			}

			events = append(events, event.Renewed{
				ID:         sub.ID.String(),
				Expiration: newExpiration,
				OrderID:    orderIDString(orderID),
				Principal:  principal,
			})
			if completed {
				events = append(events, event.Completed{ID: sub.ID.String(), Principal: principal})
			}

			resp = subscriptiondomain.RenewResponse{
				Subscription:   *sub,
				RenewalOrderID: orderIDString(orderID),
				Completed:      completed,
			}
			return nil
		})
	})
	if err != nil {
		return subscriptiondomain.RenewResponse{}, err
	}

	for _, evt := range events {
		s.bus.Publish(ctx, evt)
	}
	return resp, nil
}

// Complete implements domain.Service.
func (s *Service) Complete(ctx context.Context, req subscriptiondomain.CompleteRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	principal := s.principal(req.Principal)
	var completed bool
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			if sub.Status == subscriptiondomain.StatusCompleted {
				return nil
			}
			// Cancellation blocks automatic completion.
			if sub.Status == subscriptiondomain.StatusCancelled && !req.AdminOverride {
				return subscriptiondomain.ErrInvalidTransition
			}

			oldStatus := sub.Status
			sub.Status = subscriptiondomain.StatusCompleted
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			completed = true
			return s.appendNote(ctx, tx, sub.ID,
				fmt.Sprintf("Status changed from %s to %s by %s",
					oldStatus.Label(), subscriptiondomain.StatusCompleted.Label(), principal))
		})
	})
	if err != nil {
		return err
	}

	if completed {
		s.bus.Publish(ctx, event.Completed{ID: subID.String(), Principal: principal})
	}
	return nil
}

// Expire implements domain.Service.
func (s *Service) Expire(ctx context.Context, req subscriptiondomain.ExpireRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	principal := s.principal(req.Principal)

	if req.VerifyWithGateway {
		aborted, err := s.verifyExpirationWithGateway(ctx, subID, principal)
		if err != nil || aborted {
			return err
		}
	}

	var expired bool
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			if sub.Status == subscriptiondomain.StatusExpired {
				return nil
			}

			oldStatus := sub.Status
			sub.Status = subscriptiondomain.StatusExpired
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			expired = true
			return s.appendNote(ctx, tx, sub.ID,
				fmt.Sprintf("Status changed from %s to %s by %s",
					oldStatus.Label(), subscriptiondomain.StatusExpired.Label(), principal))
		})
	})
	if err != nil {
		return err
	}

	if expired {
		s.bus.Publish(ctx, event.Expired{ID: subID.String(), Principal: principal})
	}
	return nil
}

// verifyExpirationWithGateway asks the gateway for its authoritative
// expiration. When the gateway's date is further out, the local record
// is synced forward and the expire is aborted. A gateway failure
// leaves local state unchanged and surfaces to the caller.
func (s *Service) verifyExpirationWithGateway(ctx context.Context, subID snowflake.ID, principal string) (aborted bool, err error) {
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, subscriptiondomain.ErrSubscriptionNotFound
	}

	g, err := s.registry.Resolve(sub.Gateway)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()

	remote, err := g.GetExpiration(callCtx, gateway.Profile{
		SubscriptionID: sub.ID.String(),
		ProfileID:      sub.GatewayProfileID,
		Gateway:        sub.Gateway,
		Expiration:     sub.Expiration,
	})
	if err != nil {
		s.noteBestEffort(ctx, sub.ID, fmt.Sprintf("Expiration check failed: gateway error (%v)", err))
		return false, fmt.Errorf("%w: %v", subscriptiondomain.ErrGatewayError, err)
	}

	if !remote.After(sub.Expiration) {
		return false, nil
	}

	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if locked == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			locked.Expiration = remote
			locked.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, locked); err != nil {
				return err
			}
			return s.appendNote(ctx, tx, locked.ID,
				fmt.Sprintf("Expiration synced to %s from gateway by %s",
					billingclock.Canonical(remote), principal))
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fail implements domain.Service.
func (s *Service) Fail(ctx context.Context, req subscriptiondomain.FailRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	principal := s.principal(req.Principal)
	var failed bool
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			if sub.Status == subscriptiondomain.StatusFailing {
				return nil
			}

			oldStatus := sub.Status
			sub.Status = subscriptiondomain.StatusFailing
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			failed = true
			return s.appendNote(ctx, tx, sub.ID,
				fmt.Sprintf("Status changed from %s to %s by %s",
					oldStatus.Label(), subscriptiondomain.StatusFailing.Label(), principal))
		})
	})
	if err != nil {
		return err
	}

	if failed {
		s.bus.Publish(ctx, event.Failing{ID: subID.String(), Principal: principal})
	}
	return nil
}

// Cancel implements domain.Service. Expiration is preserved: the
// remaining paid window stays accessible until it lapses.
func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	principal := s.principal(req.Principal)
	var cancelled *event.Cancelled
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}
			if sub.Status == subscriptiondomain.StatusCancelled {
				return nil
			}

			oldStatus := sub.Status
			sub.Status = subscriptiondomain.StatusCancelled
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			cancelled = &event.Cancelled{
				ID:               sub.ID.String(),
				Expiration:       sub.Expiration,
				GatewayProfileID: sub.GatewayProfileID,
				Gateway:          sub.Gateway,
				Principal:        principal,
			}
			return s.appendNote(ctx, tx, sub.ID,
				fmt.Sprintf("Status changed from %s to %s by %s",
					oldStatus.Label(), subscriptiondomain.StatusCancelled.Label(), principal))
		})
	})
	if err != nil {
		return err
	}

	if cancelled != nil {
		s.bus.Publish(ctx, *cancelled)
	}
	return nil
}

// Retry implements domain.Service. The gateway owns the outcome; its
// async callback drives the eventual renew, fail or cancel, so no
// local status changes here.
func (s *Service) Retry(ctx context.Context, req subscriptiondomain.RetryRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	g, err := s.registry.Resolve(sub.Gateway)
	if err != nil {
		return err
	}

	profile := gateway.Profile{
		SubscriptionID: sub.ID.String(),
		ProfileID:      sub.GatewayProfileID,
		Gateway:        sub.Gateway,
		Expiration:     sub.Expiration,
	}
	if sub.Status != subscriptiondomain.StatusFailing || !g.CanRetry(profile) {
		return subscriptiondomain.ErrInvalidTransition
	}

	principal := s.principal(req.Principal)
	callCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()

	if err := g.Retry(callCtx, profile); err != nil {
		s.noteBestEffort(ctx, sub.ID, fmt.Sprintf("Renewal retry failed: gateway error (%v)", err))
		return fmt.Errorf("%w: %v", subscriptiondomain.ErrGatewayError, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.appendNote(ctx, tx, sub.ID,
			fmt.Sprintf("Renewal retry requested at gateway by %s", principal))
	})
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, event.Retried{ID: sub.ID.String(), Gateway: sub.Gateway, Principal: principal})
	return nil
}

// Delete implements domain.Service. This is the administrative hard
// delete, distinct from cancellation: the record and its notes go
// away and ledger rows lose their subscription back-reference.
func (s *Service) Delete(ctx context.Context, req subscriptiondomain.DeleteRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	principal := s.principal(req.Principal)
	var deleted bool
	err = s.withLock(ctx, subID, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
			if err != nil {
				return err
			}
			if sub == nil {
				return subscriptiondomain.ErrSubscriptionNotFound
			}

			if err := s.orders.DetachSubscriptionMeta(ctx, tx, sub.ID); err != nil {
				return err
			}
			if err := s.repo.DeleteNotes(ctx, tx, sub.ID); err != nil {
				return err
			}
			deleted, err = s.repo.Delete(ctx, tx, sub.ID)
			return err
		})
	})
	if err != nil {
		return err
	}

	if deleted {
		s.log.Info("subscription deleted",
			zap.String("subscription_id", subID.String()),
			zap.String("principal", principal),
		)
		s.bus.Publish(ctx, event.Deleted{ID: subID.String(), Principal: principal})
	}
	return nil
}

// RefundRenewal implements domain.Service. The ledger row flips off
// the renewal status, which is what TimesBilled counts, so a refunded
// charge no longer moves the subscription toward completion.
func (s *Service) RefundRenewal(ctx context.Context, req subscriptiondomain.RefundRenewalRequest) error {
	gatewayName := strings.ToLower(strings.TrimSpace(req.Gateway))
	transactionID := strings.TrimSpace(req.TransactionID)
	if gatewayName == "" || transactionID == "" {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orders.FindRenewalByTransaction(ctx, tx, gatewayName, transactionID)
		if err != nil {
			return err
		}
		if order == nil {
			return nil
		}
		if err := s.orders.MarkRenewalRefunded(ctx, tx, order.ID); err != nil {
			return err
		}
		if order.SubscriptionID == nil {
			return nil
		}
		return s.appendNote(ctx, tx, *order.SubscriptionID,
			fmt.Sprintf("Renewal payment %s refunded by %s", transactionID, s.principal(req.Principal)))
	})
}

// AddNote implements domain.Service.
func (s *Service) AddNote(ctx context.Context, req subscriptiondomain.AddNoteRequest) error {
	subID, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		return s.appendNote(ctx, tx, subID, body)
	})
}

// ListNotes implements domain.Service.
func (s *Service) ListNotes(ctx context.Context, id string) ([]subscriptiondomain.Note, error) {
	subID, err := s.parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, s.db, subID)
}

// IsExpired implements domain.Service.
func (s *Service) IsExpired(ctx context.Context, id string) (bool, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	switch sub.Status {
	case subscriptiondomain.StatusExpired:
		return true, nil
	case subscriptiondomain.StatusCancelled:
		return !s.clock.Now().Before(sub.Expiration), nil
	default:
		return false, nil
	}
}

// IsActive implements domain.Service.
func (s *Service) IsActive(ctx context.Context, id string) (bool, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	if sub.Status == subscriptiondomain.StatusCompleted {
		return s.storeCfg.Get().CompletedGrantsAccess, nil
	}
	return s.grantsAccessAt(&sub, s.clock.Now()), nil
}

// lazyExpire reclassifies an active or trialling subscription whose
// expiration has passed. The guarded status update makes concurrent
// readers race to a single transition and a single audit note.
func (s *Service) lazyExpire(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	if sub.Status != subscriptiondomain.StatusActive && sub.Status != subscriptiondomain.StatusTrialling {
		return nil
	}
	if s.clock.Now().Before(sub.Expiration) {
		return nil
	}

	oldStatus := sub.Status
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = s.repo.UpdateStatusIf(ctx, tx, sub.ID, oldStatus, subscriptiondomain.StatusExpired)
		if err != nil || !changed {
			return err
		}
		return s.appendNote(ctx, tx, sub.ID,
			fmt.Sprintf("Status changed from %s to %s by %s",
				oldStatus.Label(), subscriptiondomain.StatusExpired.Label(), subscriptiondomain.PrincipalGateway))
	})
	if err != nil {
		return err
	}

	if !changed {
		// Lost the race to a concurrent transition; report whatever
		// state won instead of assuming expired.
		current, err := s.repo.FindByID(ctx, s.db, sub.ID)
		if err != nil {
			return err
		}
		if current != nil {
			*sub = *current
		}
		return nil
	}

	sub.Status = subscriptiondomain.StatusExpired
	s.bus.Publish(ctx, event.Expired{ID: sub.ID.String(), Principal: subscriptiondomain.PrincipalGateway})
	return nil
}

// grantsAccessAt reports whether the stored state grants access at
// now, without writes.
func (s *Service) grantsAccessAt(sub *subscriptiondomain.Subscription, now time.Time) bool {
	switch sub.Status {
	case subscriptiondomain.StatusActive, subscriptiondomain.StatusTrialling, subscriptiondomain.StatusCancelled:
		return now.Before(sub.Expiration)
	default:
		return false
	}
}

func (s *Service) appendNote(ctx context.Context, tx *gorm.DB, subID snowflake.ID, body string) error {
	return s.repo.InsertNote(ctx, tx, &subscriptiondomain.Note{
		ID:             s.genID.Generate(),
		SubscriptionID: subID,
		Body:           body,
		CreatedAt:      s.clock.Now(),
	})
}

// noteBestEffort records an operational note outside the failing
// operation's transaction. Losing the note must not mask the error it
// describes.
func (s *Service) noteBestEffort(ctx context.Context, subID snowflake.ID, body string) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.appendNote(ctx, tx, subID, body)
	})
	if err != nil {
		s.log.Warn("failed to append audit note",
			zap.String("subscription_id", subID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) withLock(ctx context.Context, subID snowflake.ID, fn func() error) error {
	token, err := s.locker.Acquire(ctx, subID.String())
	if err != nil {
		return err
	}
	defer func() {
		if relErr := s.locker.Release(ctx, subID.String(), token); relErr != nil {
			s.log.Warn("failed to release subscription lock",
				zap.String("subscription_id", subID.String()),
				zap.Error(relErr),
			)
		}
	}()
	return fn()
}

func (s *Service) parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func (s *Service) principal(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return subscriptiondomain.PrincipalGateway
	}
	return p
}

func addPeriods(base time.Time, unit billingclock.Period, count int) time.Time {
	switch unit {
	case billingclock.PeriodDay:
		return base.AddDate(0, 0, count)
	case billingclock.PeriodWeek:
		return base.AddDate(0, 0, 7*count)
	case billingclock.PeriodMonth:
		return base.AddDate(0, count, 0)
	case billingclock.PeriodQuarter:
		return base.AddDate(0, 3*count, 0)
	case billingclock.PeriodSemiYear:
		return base.AddDate(0, 6*count, 0)
	case billingclock.PeriodYear:
		return base.AddDate(count, 0, 0)
	default:
		return base
	}
}

func orderIDString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
