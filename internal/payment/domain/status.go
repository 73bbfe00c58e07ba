package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	// StatusExpense marks synthetic cash outflow rows.
	StatusExpense Status = "expense"
)

// transitions lists every allowed status move. Staying pending or partial is
// allowed because a zero allocation leaves the row untouched.
var transitions = map[Status][]Status{
	StatusPending: {StatusPending, StatusPartial, StatusPaid},
	StatusPartial: {StatusPartial, StatusPaid},
	StatusPaid:    nil,
	StatusExpense: nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsOutstanding reports whether the row can still receive money.
func (s Status) IsOutstanding() bool {
	return s == StatusPending || s == StatusPartial
}

// DeriveStatus maps a paid amount against the amount owed.
func DeriveStatus(amount, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// ApplyPaid returns p with newPaid applied: the status moves through the
// transition table and paid_at is stamped only when the row becomes fully paid.
func ApplyPaid(p Payment, newPaid decimal.Decimal, at time.Time) (Payment, error) {
	next := DeriveStatus(p.Amount, newPaid)
	if !p.Status.CanTransition(next) {
		return p, ErrInvalidTransition
	}
	p.PaidAmount = newPaid
	p.Status = next
	if next == StatusPaid {
		paidAt := at
		p.PaidAt = &paidAt
	} else {
		p.PaidAt = nil
	}
	p.UpdatedAt = at
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
