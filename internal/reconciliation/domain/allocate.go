package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
)

// Allocate splits amount across rows proportionally to their outstanding
// balances. Every allocation but the last is rounded to cents; the last takes
// the remainder so the allocations always sum to amount exactly. The order of
// outstanding is the allocation order and is never changed.
func Allocate(amount decimal.Decimal, outstanding []decimal.Decimal, tolerance decimal.Decimal) ([]decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidProofAmount
	}
	if len(outstanding) == 0 {
		return nil, ErrNothingOutstanding
	}

	total := decimal.Zero
	for _, o := range outstanding {
		if o.IsNegative() {
			return nil, ErrNegativeOutstanding
		}
		total = total.Add(o)
	}
	if !total.IsPositive() {
		return nil, ErrNothingOutstanding
	}
	if amount.GreaterThan(total) {
		return nil, ErrOverpayment
	}

	last := len(outstanding) - 1
	allocations := make([]decimal.Decimal, len(outstanding))
	assigned := decimal.Zero
	for i := 0; i < last; i++ {
		share := money.Round2(outstanding[i].Mul(amount).Div(total))
		if share.IsNegative() {
			share = decimal.Zero
		}
		allocations[i] = share
		assigned = assigned.Add(share)
	}

	remainder := amount.Sub(assigned)
	if remainder.LessThan(tolerance.Neg()) || remainder.GreaterThan(outstanding[last].Add(tolerance)) {
		return nil, paymentdomain.NewPrecision(fmt.Sprintf(
			"allocation remainder %s falls outside [0, %s]",
			remainder.StringFixed(money.Places+1),
			outstanding[last].StringFixed(money.Places),
		))
	}
	allocations[last] = remainder
	return allocations, nil
}
