package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

// Source says where the money of a settled expense came from.
type Source string

const (
	SourceCash     Source = "cash"
	SourceExternal Source = "external"
)

func (s Source) Valid() bool {
	return s == SourceCash || s == SourceExternal
}

type Summary struct {
	Inflow    decimal.Decimal `json:"inflow"`
	Outflow   decimal.Decimal `json:"outflow"`
	Available decimal.Decimal `json:"available"`
}

type SettleExpenseRequest struct {
	PaymentID snowflake.ID `json:"payment_id"`
	Source    Source       `json:"source"`
	// Amount defaults to the outstanding balance of the expense.
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	ActorID string           `json:"actor_id"`
}

type SettleExpenseResult struct {
	Expense *paymentdomain.Payment `json:"expense"`
	// Outflow is the synthetic cash row, nil for external settlements.
	Outflow   *paymentdomain.Payment `json:"outflow,omitempty"`
	Available decimal.Decimal        `json:"available"`
}

type Service interface {
	CashAvailable(ctx context.Context) (decimal.Decimal, error)
	Summary(ctx context.Context) (Summary, error)
	SettleExpense(ctx context.Context, req SettleExpenseRequest) (*SettleExpenseResult, error)
}

var (
	ErrInsufficientCash = &paymentdomain.Error{
		Class:   paymentdomain.ErrValidation,
		Code:    "insufficient_cash",
		Message: "amount exceeds the cash available",
	}
	ErrInvalidSource     = paymentdomain.NewValidation("invalid_source", "source must be cash or external")
	ErrNotAnExpense      = paymentdomain.NewValidation("not_an_expense", "only general expenses are settled by the treasury")
	ErrExpenseSettled    = paymentdomain.NewConflict("expense_settled", "expense is already settled")
	ErrInvalidSettlement = paymentdomain.NewValidation("invalid_settlement_amount", "settlement amount must be positive and within the outstanding balance")
)
