// Package fees holds the overdue fee policy for borrowed books.
package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// LoanPeriodDays is the number of days a patron may keep a book before it is overdue.
	LoanPeriodDays = 14

	// FirstTierDays is the number of overdue days charged at FirstTierRate.
	FirstTierDays = 7
)

var (
	// FirstTierRate is charged per day for the first FirstTierDays overdue days.
	FirstTierRate = decimal.RequireFromString("0.50")

	// SecondTierRate is charged per day for every overdue day after FirstTierDays.
	SecondTierRate = decimal.RequireFromString("1.00")

	// MaxFee is the ceiling for the fee of a single overdue loan.
	MaxFee = decimal.RequireFromString("15.00")
)

// DueDate returns the due date of a loan that starts at borrowedAt.
func DueDate(borrowedAt time.Time) time.Time {
	return borrowedAt.AddDate(0, 0, LoanPeriodDays)
}

// Compute returns the whole days a loan is overdue at now and the fee owed for it.
//
// A loan is overdue only when now is strictly after due. Partial days are
// truncated, so a book 36 hours late is one day overdue.
func Compute(due, now time.Time) (int, decimal.Decimal) {
	if !now.After(due) {
		return 0, decimal.Zero
	}
	days := int(now.Sub(due) / (24 * time.Hour))
	return days, Amount(days)
}

// Amount returns the fee for a loan that is daysOverdue days late.
func Amount(daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	first := daysOverdue
	if first > FirstTierDays {
		first = FirstTierDays
	}
	fee := FirstTierRate.Mul(decimal.NewFromInt(int64(first)))
	if extra := daysOverdue - FirstTierDays; extra > 0 {
		fee = fee.Add(SecondTierRate.Mul(decimal.NewFromInt(int64(extra))))
	}
	if fee.GreaterThan(MaxFee) {
		fee = MaxFee
	}
	return fee.Round(2)
}
