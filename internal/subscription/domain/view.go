package domain

import (
	"fmt"
	"time"
)

// View is a read-only projection of a subscription with its derived
// values materialized, for API responses and operator screens. It
// never mutates the underlying record; lazy expiration happens in the
// service before a View is built.
type View struct {
	sub                    Subscription
	notes                  []Note
	billed                 int
	treatCompletedAsActive bool
}

func NewView(sub Subscription, notes []Note, billedTimes int, treatCompletedAsActive bool) View {
	return View{
		sub:                    sub,
		notes:                  notes,
		billed:                 billedTimes,
		treatCompletedAsActive: treatCompletedAsActive,
	}
}

func (v View) ID() string             { return v.sub.ID.String() }
func (v View) Status() Status         { return v.sub.Status }
func (v View) StatusLabel() string    { return v.sub.Status.Label() }
func (v View) Expiration() time.Time  { return v.sub.Expiration }
func (v View) Gateway() string        { return v.sub.Gateway }
func (v View) Record() Subscription   { return v.sub }
func (v View) Notes() []Note          { return v.notes }
func (v View) NotesBlob() string      { return JoinNotes(v.notes) }
func (v View) TimesBilled() int       { return v.billed }

// BillTimesRemaining returns the charges left before completion, -1
// when unlimited.
func (v View) BillTimesRemaining() int {
	if v.sub.BillTimes == 0 {
		return -1
	}
	remaining := v.sub.BillTimes - v.billed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// GrantsAccess reports whether the subscription grants access at now,
// without triggering the lazy expire write.
func (v View) GrantsAccess(now time.Time) bool {
	switch v.sub.Status {
	case StatusActive, StatusTrialling, StatusCancelled:
		return now.Before(v.sub.Expiration)
	case StatusCompleted:
		return v.treatCompletedAsActive
	default:
		return false
	}
}

// CancelPath is the operator API path that cancels this subscription.
func (v View) CancelPath() string {
	return fmt.Sprintf("/v1/subscriptions/%s/cancel", v.sub.ID.String())
}

// CanCancel reports whether a cancel request is meaningful.
func (v View) CanCancel() bool {
	switch v.sub.Status {
	case StatusActive, StatusTrialling, StatusFailing, StatusPending:
		return true
	default:
		return false
	}
}
