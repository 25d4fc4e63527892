package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/clock"
	"github.com/intellispire/commercestore/internal/config"
	orderdomain "github.com/intellispire/commercestore/internal/order/domain"
	paymentdomain "github.com/intellispire/commercestore/internal/payment/domain"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Recorder struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	orders   orderdomain.Repository
	storeCfg *config.StoreConfigHolder
}

type RecorderParam struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Orders   orderdomain.Repository
	StoreCfg *config.StoreConfigHolder
}

func NewRecorder(p RecorderParam) paymentdomain.Recorder {
	return &Recorder{
		log:      p.Log.Named("payment.recorder"),
		genID:    p.GenID,
		clock:    p.Clock,
		orders:   p.Orders,
		storeCfg: p.StoreCfg,
	}
}

// RecordPayment implements domain.Recorder.
func (r *Recorder) RecordPayment(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, charge paymentdomain.Charge) (paymentdomain.RecordResult, error) {
	gateway := strings.TrimSpace(charge.Gateway)
	if gateway == "" {
		gateway = sub.Gateway
	}
	if gateway == "" {
		return paymentdomain.RecordResult{}, paymentdomain.ErrMissingGateway
	}

	if existing, err := r.orders.FindRenewalByTransaction(ctx, tx, gateway, charge.TransactionID); err != nil {
		return paymentdomain.RecordResult{}, err
	} else if existing != nil {
		return paymentdomain.RecordResult{OrderID: existing.ID, Created: false}, nil
	}

	parent, err := r.orders.FindByID(ctx, tx, sub.ParentOrderID)
	if err != nil {
		return paymentdomain.RecordResult{}, err
	}
	if parent == nil || parent.CustomerID == 0 {
		return paymentdomain.RecordResult{}, paymentdomain.ErrMissingParentOrder
	}

	tax, taxSource := r.resolveTax(sub, charge)
	now := r.clock.Now()

	itemPrice := charge.Amount - tax
	if r.storeCfg.Get().PricesIncludeTax {
		itemPrice = charge.Amount
	}

	subID := sub.ID
	order := &orderdomain.Order{
		ID:             r.genID.Generate(),
		ParentID:       &parent.ID,
		SubscriptionID: &subID,
		CustomerID:     parent.CustomerID,
		ProductID:      sub.ProductID,
		PriceTierID:    sub.PriceTierID,
		Status:         orderdomain.OrderStatusRenewal,
		Gateway:        gateway,
		TransactionID:  charge.TransactionID,
		// Renewals are never re-discounted.
		Discount: 0,
		Subtotal: itemPrice,
		Tax:      tax,
		Total:    charge.Amount,
		Metadata: datatypes.JSONMap{
			"tax_source": taxSource,
			"period":     string(sub.Period),
		},
		CompletedDate: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	item := &orderdomain.OrderItem{
		ID:          r.genID.Generate(),
		OrderID:     order.ID,
		ProductID:   sub.ProductID,
		PriceTierID: sub.PriceTierID,
		ItemPrice:   itemPrice,
		Tax:         tax,
		CreatedAt:   now,
	}

	if err := r.orders.InsertRenewal(ctx, tx, order, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the insert race; the winner's order is the answer.
			existing, findErr := r.orders.FindRenewalByTransaction(ctx, tx, gateway, charge.TransactionID)
			if findErr != nil {
				return paymentdomain.RecordResult{}, findErr
			}
			if existing != nil {
				return paymentdomain.RecordResult{OrderID: existing.ID, Created: false}, nil
			}
		}
		return paymentdomain.RecordResult{}, err
	}

	if err := r.orders.IncreaseProductEarnings(ctx, tx, sub.ProductID, charge.Amount); err != nil {
		return paymentdomain.RecordResult{}, err
	}
	if err := r.orders.IncreaseCustomerValue(ctx, tx, parent.CustomerID, charge.Amount); err != nil {
		return paymentdomain.RecordResult{}, err
	}

	r.log.Info("renewal payment recorded",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("gateway", gateway),
		zap.String("transaction_id", charge.TransactionID),
		zap.Float64("amount", charge.Amount),
	)

	return paymentdomain.RecordResult{OrderID: order.ID, Created: true}, nil
}

// FindRecorded implements domain.Recorder.
func (r *Recorder) FindRecorded(ctx context.Context, tx *gorm.DB, gateway, transactionID string) (snowflake.ID, error) {
	existing, err := r.orders.FindRenewalByTransaction(ctx, tx, gateway, transactionID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, nil
	}
	return existing.ID, nil
}

// TimesBilled implements domain.Recorder. The parent order's charge
// counts as the first billing.
func (r *Recorder) TimesBilled(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (int, error) {
	renewals, err := r.orders.CountRenewalsBySubscription(ctx, tx, sub.ID)
	if err != nil {
		return 0, err
	}
	return renewals + 1, nil
}

// resolveTax picks, in order: the explicit tax on the charge, a
// back-computed tax from the configured rate assuming the amount is
// tax inclusive, then the subscription's recurring tax verbatim. The
// second return names which source won, for the order metadata.
func (r *Recorder) resolveTax(sub *subscriptiondomain.Subscription, charge paymentdomain.Charge) (float64, string) {
	if charge.Tax != nil {
		return *charge.Tax, "charge"
	}
	if rate := r.storeCfg.Get().RecurringTaxRate; rate > 0 {
		return charge.Amount - charge.Amount/(1+rate), "rate"
	}
	return sub.RecurringTax, "recurring"
}
