package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

type SyncRequest struct {
	GroupID string                  `json:"group_id"`
	Charge  paymentdomain.ChargeKey `json:"charge"`
	ActorID string                  `json:"actor_id"`
	// ConfirmSettledDetach acknowledges that paid rows will leave the group.
	ConfirmSettledDetach bool `json:"confirm_settled_detach"`
}

// Removal is one row leaving the charge.
type Removal struct {
	PaymentID snowflake.ID         `json:"payment_id"`
	MemberID  string               `json:"member_id"`
	Status    paymentdomain.Status `json:"status"`
	// Detach keeps the row (it has tickets); otherwise it is deleted.
	Detach bool `json:"detach"`
}

// Reintegration reattaches an orphaned row of a returning member.
type Reintegration struct {
	PaymentID snowflake.ID `json:"payment_id"`
	MemberID  string       `json:"member_id"`
}

// SyncPlan is the diff between membership and the charge's rows.
type SyncPlan struct {
	GroupID              string          `json:"group_id"`
	Add                  []string        `json:"add"`
	Reintegrate          []Reintegration `json:"reintegrate"`
	Remove               []Removal       `json:"remove"`
	Preserved            int             `json:"preserved"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

// PaymentIDs lists the existing rows the plan rewrites or deletes.
func (p SyncPlan) PaymentIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(p.Reintegrate)+len(p.Remove))
	for _, r := range p.Reintegrate {
		ids = append(ids, r.PaymentID)
	}
	for _, r := range p.Remove {
		ids = append(ids, r.PaymentID)
	}
	return ids
}

// Empty reports whether applying the plan changes nothing.
func (p SyncPlan) Empty() bool {
	return len(p.Add) == 0 && len(p.Reintegrate) == 0 && len(p.Remove) == 0
}

type SyncResult struct {
	Added        int `json:"added"`
	Reintegrated int `json:"reintegrated"`
	Removed      int `json:"removed"`
	Detached     int `json:"detached"`
	Deleted      int `json:"deleted"`
	Preserved    int `json:"preserved"`
}

type Service interface {
	Plan(ctx context.Context, req SyncRequest) (SyncPlan, error)
	Sync(ctx context.Context, req SyncRequest) (SyncResult, error)
}
