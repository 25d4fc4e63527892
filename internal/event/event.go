// Package event carries subscription lifecycle notifications to
// in-process collaborators such as the gateway profile canceller.
package event

import "time"

type Kind string

const (
	KindCreated   Kind = "subscription.created"
	KindRenewed   Kind = "subscription.renewed"
	KindCompleted Kind = "subscription.completed"
	KindExpired   Kind = "subscription.expired"
	KindFailing   Kind = "subscription.failing"
	KindCancelled Kind = "subscription.cancelled"
	KindRetried   Kind = "subscription.retried"
	KindDeleted   Kind = "subscription.deleted"
)

// Event is implemented by every lifecycle notification.
type Event interface {
	Kind() Kind
	SubscriptionID() string
}

// Created is published after a subscription record is first persisted.
type Created struct {
	ID        string
	Status    string
	Principal string
}

func (e Created) Kind() Kind             { return KindCreated }
func (e Created) SubscriptionID() string { return e.ID }

// Renewed is published after a successful renewal charge extends the
// paid period.
type Renewed struct {
	ID         string
	Expiration time.Time
	// OrderID is the renewal order created for the charge, empty when
	// the renewal was manual and carried no payment.
	OrderID   string
	Principal string
}

func (e Renewed) Kind() Kind             { return KindRenewed }
func (e Renewed) SubscriptionID() string { return e.ID }

// Completed is published when the billed-times limit is reached.
type Completed struct {
	ID        string
	Principal string
}

func (e Completed) Kind() Kind             { return KindCompleted }
func (e Completed) SubscriptionID() string { return e.ID }

// Expired is published when a subscription's access window lapses.
type Expired struct {
	ID        string
	Principal string
}

func (e Expired) Kind() Kind             { return KindExpired }
func (e Expired) SubscriptionID() string { return e.ID }

// Failing is published when a recurring charge attempt fails.
type Failing struct {
	ID        string
	Principal string
}

func (e Failing) Kind() Kind             { return KindFailing }
func (e Failing) SubscriptionID() string { return e.ID }

// Cancelled is published when renewals are stopped. The remaining
// paid-through window stays accessible until Expiration passes.
type Cancelled struct {
	ID               string
	Expiration       time.Time
	GatewayProfileID string
	Gateway          string
	Principal        string
}

func (e Cancelled) Kind() Kind             { return KindCancelled }
func (e Cancelled) SubscriptionID() string { return e.ID }

// Retried is published when a failing subscription's charge is retried
// at the gateway.
type Retried struct {
	ID        string
	Gateway   string
	Principal string
}

func (e Retried) Kind() Kind             { return KindRetried }
func (e Retried) SubscriptionID() string { return e.ID }

// Deleted is published after an administrative hard delete.
type Deleted struct {
	ID        string
	Principal string
}

func (e Deleted) Kind() Kind             { return KindDeleted }
func (e Deleted) SubscriptionID() string { return e.ID }
