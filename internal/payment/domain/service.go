package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateChargeRequest struct {
	MemberID    string          `json:"member_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`
	Observation string          `json:"observation"`
}

type CreateGroupChargeRequest struct {
	GroupID     string          `json:"group_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`
	Observation string          `json:"observation"`
}

type CreateExpenseRequest struct {
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`
	Observation string          `json:"observation"`
}

type Service interface {
	CreateCharge(ctx context.Context, req CreateChargeRequest) (*Payment, error)
	CreateGroupCharge(ctx context.Context, req CreateGroupChargeRequest) ([]*Payment, error)
	CreateExpense(ctx context.Context, req CreateExpenseRequest) (*Payment, error)
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	ListByMember(ctx context.Context, memberID string) ([]*Payment, error)
}
