// Package billingclock computes recurring period rollovers. All
// arithmetic is calendar aware and independent of wall-clock now, so
// the lifecycle engine can replay and test rollovers deterministically.
package billingclock

import (
	"errors"
	"strings"
	"time"
)

// Period is the recurring billing interval of a subscription.
type Period string

const (
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodQuarter  Period = "quarter"
	PeriodSemiYear Period = "semi-year"
	PeriodYear     Period = "year"
)

var ErrInvalidPeriod = errors.New("invalid_billing_period")

// CanonicalLayout is the wall-clock form expirations are persisted in.
const CanonicalLayout = "2006-01-02 15:04:05"

// ParsePeriod normalizes a period string, accepting the legacy
// "semiyear" and "semi_year" spellings.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	case PeriodQuarter:
		return PeriodQuarter, nil
	case PeriodSemiYear, "semiyear", "semi_year":
		return PeriodSemiYear, nil
	case PeriodYear:
		return PeriodYear, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// Valid reports whether p is a defined period.
func (p Period) Valid() bool {
	_, err := ParsePeriod(string(p))
	return err == nil
}

// NextExpiration returns the expiration for the period that begins at
// base. The resulting date keeps the anchor day-of-month where the
// target month allows it and clamps to the month's last day otherwise;
// the time of day is normalized to 23:59:59.
//
// When base falls on the last day of its month and the period is not
// daily, two extra days are added. Without the guard a subscription
// anchored on the 31st drifts to the 28th and never recovers the
// original anchor day across later cycles.
func NextExpiration(p Period, base time.Time) (time.Time, error) {
	var next time.Time
	switch p {
	case PeriodDay:
		next = base.AddDate(0, 0, 1)
	case PeriodWeek:
		next = base.AddDate(0, 0, 7)
	case PeriodMonth:
		next = addMonthsClamped(base, 1)
	case PeriodQuarter:
		next = addMonthsClamped(base, 3)
	case PeriodSemiYear:
		next = addMonthsClamped(base, 6)
	case PeriodYear:
		next = addMonthsClamped(base, 12)
	default:
		return time.Time{}, ErrInvalidPeriod
	}

	if p != PeriodDay && isLastDayOfMonth(base) {
		next = next.AddDate(0, 0, 2)
	}

	return endOfDay(next), nil
}

// Canonical renders t in the persisted wall-clock form.
func Canonical(t time.Time) string {
	return t.Format(CanonicalLayout)
}

// ParseCanonical parses a canonical wall-clock value in loc. Numeric
// overrides arriving from gateway webhooks go through here before
// being persisted.
func ParseCanonical(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(CanonicalLayout, strings.TrimSpace(s), loc)
}

// addMonthsClamped adds months without day normalization: Jan 31 plus
// one month is Feb 29, not Mar 2.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func isLastDayOfMonth(t time.Time) bool {
	return t.Day() == daysInMonth(t.Year(), t.Month())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
