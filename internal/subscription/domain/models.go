// Package domain contains the subscription record, its lifecycle
// states and the audit note model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/billingclock"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTrialling Status = "trialling"
	StatusActive    Status = "active"
	StatusFailing   Status = "failing"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a defined lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusTrialling, StatusActive, StatusFailing,
		StatusCancelled, StatusExpired, StatusCompleted:
		return true
	default:
		return false
	}
}

// Label returns the operator-facing form of the status.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// TrialPeriod is a length plus a calendar unit, e.g. 14 days.
type TrialPeriod struct {
	Length int                `json:"length"`
	Unit   billingclock.Period `json:"unit"`
}

// Subscription is one recurring billing commitment.
type Subscription struct {
	ID               snowflake.ID        `gorm:"primaryKey"`
	CustomerID       snowflake.ID        `gorm:"not null;index"`
	ProductID        snowflake.ID        `gorm:"not null;index"`
	PriceTierID      *snowflake.ID       `gorm:""`
	ParentOrderID    snowflake.ID        `gorm:"not null;index"`
	GatewayProfileID string              `gorm:"type:text;index"`
	Gateway          string              `gorm:"type:text;not null"`
	Period           billingclock.Period `gorm:"type:text;not null"`
	InitialAmount    float64             `gorm:"not null;default:0"`
	InitialTax       float64             `gorm:"not null;default:0"`
	RecurringAmount  float64             `gorm:"not null;default:0"`
	RecurringTax     float64             `gorm:"not null;default:0"`
	// BillTimes caps recurring charges; zero means unlimited.
	BillTimes       int        `gorm:"not null;default:0"`
	TrialLength     int        `gorm:"not null;default:0"`
	TrialUnit       string     `gorm:"type:text"`
	Status          Status     `gorm:"type:text;not null;index"`
	Expiration      time.Time  `gorm:"not null;index"`
	CreatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Trial returns the configured trial terms, nil when there are none.
func (s *Subscription) Trial() *TrialPeriod {
	if s.TrialLength <= 0 || s.TrialUnit == "" {
		return nil
	}
	unit, err := billingclock.ParsePeriod(s.TrialUnit)
	if err != nil {
		return nil
	}
	return &TrialPeriod{Length: s.TrialLength, Unit: unit}
}

// Note is one append-only audit entry. Entries are never rewritten or
// deleted individually.
type Note struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	Body           string       `gorm:"type:text;not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Note) TableName() string { return "subscription_notes" }

// NoteDelimiter separates entries when notes are rendered as a single
// blob for legacy consumers.
const NoteDelimiter = "\n\n"

// JoinNotes renders notes as a delimiter-separated blob, oldest first.
func JoinNotes(notes []Note) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		if strings.TrimSpace(n.Body) == "" {
			continue
		}
		parts = append(parts, n.Body)
	}
	return strings.Join(parts, NoteDelimiter)
}

// SplitNotes parses a legacy blob back into entries, dropping empties.
func SplitNotes(blob string) []string {
	parts := strings.Split(blob, NoteDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
