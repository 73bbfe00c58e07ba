package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

// GroupStatus is the aggregate status of a group charge. It is never partial.
type GroupStatus string

const (
	GroupStatusPaid    GroupStatus = "paid"
	GroupStatusPending GroupStatus = "pending"
)

// GroupCharge is the virtual aggregate of the rows sharing a group and charge key.
type GroupCharge struct {
	GroupID        string                  `json:"group_id"`
	Key            paymentdomain.ChargeKey `json:"charge"`
	MemberCount    int                     `json:"member_count"`
	Total          decimal.Decimal         `json:"total"`
	Paid           decimal.Decimal         `json:"paid"`
	Pending        decimal.Decimal         `json:"pending"`
	Status         GroupStatus             `json:"status"`
	Representative snowflake.ID            `json:"representative_id"`
	// Members are the underlying rows sorted by member id.
	Members []*paymentdomain.Payment `json:"members"`
}

// OutstandingRows returns the member rows that still owe something, in member order.
func (g GroupCharge) OutstandingRows() []*paymentdomain.Payment {
	var out []*paymentdomain.Payment
	for _, row := range g.Members {
		if row.Outstanding().IsPositive() {
			out = append(out, row)
		}
	}
	return out
}

type Filter struct {
	GroupID  string      `form:"group_id"`
	Category string      `form:"category"`
	Status   GroupStatus `form:"status"`
}

type Service interface {
	ListGroupCharges(ctx context.Context, filter Filter) ([]GroupCharge, error)
	GetGroupCharge(ctx context.Context, groupID string, key paymentdomain.ChargeKey) (*GroupCharge, error)
	// Outstanding returns the outstanding balance of each row, in input order.
	Outstanding(ctx context.Context, ids []snowflake.ID) ([]decimal.Decimal, error)
	// Allocate splits amount over outstanding using the configured tolerance.
	Allocate(amount decimal.Decimal, outstanding []decimal.Decimal) ([]decimal.Decimal, error)
}

var (
	ErrGroupChargeNotFound = paymentdomain.NewNotFound("group_charge_not_found", "group charge not found")
	ErrInvalidProofAmount  = paymentdomain.NewValidation("invalid_proof_amount", "proof amount must be positive")
	ErrNothingOutstanding  = paymentdomain.NewValidation("nothing_outstanding", "nothing is outstanding on the selected charges")
	ErrNegativeOutstanding = paymentdomain.NewValidation("negative_outstanding", "outstanding balances cannot be negative")
	ErrOverpayment         = paymentdomain.NewValidation("overpayment", "proof amount exceeds the outstanding balance")
	ErrInvalidGroupStatus  = paymentdomain.NewValidation("invalid_group_status", "group status must be paid or pending")
)
