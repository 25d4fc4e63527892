package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order_not_found")

// Repository is the ledger storage gateway. Callers own the
// transaction and pass the handle in, so a renewal order, its line
// item and the counter updates commit or roll back together.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)

	// InsertRenewal persists a renewal order with its line item. The
	// unique index on (gateway, transaction_id) makes the insert an
	// atomic insert-if-absent; a duplicate surfaces as a database
	// duplicate key error, never as a second row.
	InsertRenewal(ctx context.Context, db *gorm.DB, order *Order, item *OrderItem) error

	FindRenewalByTransaction(ctx context.Context, db *gorm.DB, gateway, transactionID string) (*Order, error)

	// CountRenewalsBySubscription counts non-refunded renewal orders
	// recorded for the subscription.
	CountRenewalsBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int, error)

	// MarkRenewalRefunded flips a renewal order to refunded so it no
	// longer counts toward the subscription's billed charges.
	MarkRenewalRefunded(ctx context.Context, db *gorm.DB, orderID snowflake.ID) error

	IncreaseProductEarnings(ctx context.Context, db *gorm.DB, productID snowflake.ID, amount float64) error
	IncreaseCustomerValue(ctx context.Context, db *gorm.DB, customerID snowflake.ID, amount float64) error

	// DetachSubscriptionMeta clears subscription back-references from
	// ledger rows before the subscription record is hard deleted.
	DetachSubscriptionMeta(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error
}
