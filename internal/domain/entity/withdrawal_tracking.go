package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalTracking holds per-currency totals withdrawn in the current UTC
// day and month.
type WithdrawalTracking struct {
	Daily          map[string]decimal.Decimal `json:"daily"`
	Monthly        map[string]decimal.Decimal `json:"monthly"`
	DailyResetAt   time.Time                  `json:"daily_reset_at"`
	MonthlyResetAt time.Time                  `json:"monthly_reset_at"`
}

type WithdrawalLimits struct {
	Min     decimal.Decimal
	Daily   decimal.Decimal
	Monthly decimal.Decimal
}

// Roll zeroes the daily counters once the calendar day has changed since the
// last reset, and the monthly ones once the month has.
func (t *WithdrawalTracking) Roll(now time.Time) {
	if day := startOfDay(now); day.After(t.DailyResetAt) {
		t.Daily = map[string]decimal.Decimal{}
		t.DailyResetAt = day
	}
	if month := startOfMonth(now); month.After(t.MonthlyResetAt) {
		t.Monthly = map[string]decimal.Decimal{}
		t.MonthlyResetAt = month
	}
}

func (t *WithdrawalTracking) Add(currency string, amount decimal.Decimal, now time.Time) {
	t.Roll(now)
	if t.Daily == nil {
		t.Daily = map[string]decimal.Decimal{}
	}
	if t.Monthly == nil {
		t.Monthly = map[string]decimal.Decimal{}
	}
	t.Daily[currency] = t.Daily[currency].Add(amount)
	t.Monthly[currency] = t.Monthly[currency].Add(amount)
}

// Subtract rolls back a withdrawal made at the given time. Windows that have
// been reset since then no longer contain it and are left alone.
func (t *WithdrawalTracking) Subtract(currency string, amount decimal.Decimal, at time.Time) {
	if t.Daily != nil && !at.Before(t.DailyResetAt) {
		t.Daily[currency] = floorZero(t.Daily[currency].Sub(amount))
	}
	if t.Monthly != nil && !at.Before(t.MonthlyResetAt) {
		t.Monthly[currency] = floorZero(t.Monthly[currency].Sub(amount))
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
