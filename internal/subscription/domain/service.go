package domain

import (
	"context"
	"errors"
	"time"

	"github.com/intellispire/commercestore/pkg/db/pagination"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidProduct       = errors.New("invalid_product")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrGatewayError         = errors.New("gateway_error")
)

// PrincipalGateway marks transitions driven by automation rather than
// a named operator.
const PrincipalGateway = "gateway"

type CreateSubscriptionRequest struct {
	CustomerID       string  `json:"customer_id"`
	ProductID        string  `json:"product_id"`
	PriceTierID      string  `json:"price_tier_id,omitempty"`
	ParentOrderID    string  `json:"parent_order_id"`
	GatewayProfileID string  `json:"gateway_profile_id,omitempty"`
	Gateway          string  `json:"gateway,omitempty"`
	Period           string  `json:"period"`
	InitialAmount    float64 `json:"initial_amount"`
	InitialTax       float64 `json:"initial_tax"`
	RecurringAmount  float64 `json:"recurring_amount"`
	RecurringTax     float64 `json:"recurring_tax"`
	BillTimes        int     `json:"bill_times"`
	TrialLength      int     `json:"trial_length,omitempty"`
	TrialUnit        string  `json:"trial_unit,omitempty"`
	// Status requests an initial status other than pending. A past
	// Expiration downgrades active or trialling to expired.
	Status     string     `json:"status,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Principal  string     `json:"-"`
}

type RenewRequest struct {
	SubscriptionID string
	// TransactionID is the gateway charge reference; empty for manual
	// renewals that carry no payment.
	TransactionID string
	Gateway       string
	Amount        float64
	Tax           *float64
	// ExpirationOverride replaces the computed expiration when a
	// webhook supplies an authoritative date.
	ExpirationOverride *time.Time
	Principal          string
}

type RenewResponse struct {
	Subscription Subscription
	// RenewalOrderID is zero for manual renewals without a charge.
	RenewalOrderID string
	Completed      bool
}

type ExpireRequest struct {
	SubscriptionID    string
	VerifyWithGateway bool
	Principal         string
}

type CompleteRequest struct {
	SubscriptionID string
	// AdminOverride allows completing a cancelled subscription.
	AdminOverride bool
	Principal     string
}

type CancelRequest struct {
	SubscriptionID string
	Principal      string
}

type FailRequest struct {
	SubscriptionID string
	Principal      string
}

type RetryRequest struct {
	SubscriptionID string
	Principal      string
}

type DeleteRequest struct {
	SubscriptionID string
	Principal      string
}

type AddNoteRequest struct {
	SubscriptionID string
	Body           string
	Principal      string
}

// RefundRenewalRequest identifies a refunded charge by its idempotency
// pair; the subscription is found through the recorded renewal order.
type RefundRenewalRequest struct {
	Gateway       string
	TransactionID string
	Principal     string
}

type ListSubscriptionRequest struct {
	Status     string
	CustomerID string
	ProductID  string
	PageToken  string
	PageSize   int
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

// Service is the lifecycle engine. Every mutating operation appends
// one audit note recording the transition and acting principal, and
// publishes the matching lifecycle event.
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	GetByGatewayProfileID(ctx context.Context, profileID string) (Subscription, error)
	GetView(ctx context.Context, id string) (View, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)

	Renew(ctx context.Context, req RenewRequest) (RenewResponse, error)
	Complete(ctx context.Context, req CompleteRequest) error
	Expire(ctx context.Context, req ExpireRequest) error
	Fail(ctx context.Context, req FailRequest) error
	Cancel(ctx context.Context, req CancelRequest) error
	Retry(ctx context.Context, req RetryRequest) error
	Delete(ctx context.Context, req DeleteRequest) error

	// RefundRenewal marks the recorded renewal order refunded so the
	// charge stops counting toward bill_times, and leaves an audit
	// note. The subscription status is not changed. Unrecorded
	// transactions are acknowledged without effect.
	RefundRenewal(ctx context.Context, req RefundRenewalRequest) error

	AddNote(ctx context.Context, req AddNoteRequest) error
	ListNotes(ctx context.Context, id string) ([]Note, error)

	// IsActive and IsExpired evaluate the derived predicates. Both
	// lazily reclassify a past-expiration subscription as expired,
	// which is an observable write.
	IsActive(ctx context.Context, id string) (bool, error)
	IsExpired(ctx context.Context, id string) (bool, error)
}
