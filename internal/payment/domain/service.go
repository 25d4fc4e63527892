// Package domain defines the payment recorder contract.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"gorm.io/gorm"
)

var (
	ErrMissingParentOrder = errors.New("missing_parent_order")
	ErrMissingGateway     = errors.New("missing_gateway")
)

// Charge is a gateway-reported successful recurring payment.
type Charge struct {
	Amount        float64
	// Tax overrides tax resolution when set.
	Tax           *float64
	TransactionID string
	Gateway       string
}

// RecordResult reports the renewal order a charge resolved to.
type RecordResult struct {
	OrderID snowflake.ID
	// Created is false when the transaction id was already recorded
	// and the existing order id is being returned.
	Created bool
}

// Recorder idempotently turns gateway charges into renewal orders and
// counter updates. The caller owns the transaction handle; all writes
// commit or roll back with it.
type Recorder interface {
	// RecordPayment creates the renewal order for the charge, or
	// returns the existing one for a previously seen
	// (gateway, transaction id) pair without any further writes.
	RecordPayment(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription, charge Charge) (RecordResult, error)

	// FindRecorded returns the renewal order id for the pair, or zero
	// when the charge has not been recorded.
	FindRecorded(ctx context.Context, db *gorm.DB, gateway, transactionID string) (snowflake.ID, error)

	// TimesBilled counts the subscription's non-refunded recurring
	// charges, including the parent order's initial charge.
	TimesBilled(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) (int, error)
}
