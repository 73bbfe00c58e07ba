package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: nil,
	StatusRejected: nil,
}

func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type RejectReason string

const (
	ReasonAmountMismatch RejectReason = "valor_divergente"
	ReasonWrongDate      RejectReason = "data_errada"
	ReasonOther          RejectReason = "outros"
)

var reasonLabels = map[RejectReason]string{
	ReasonAmountMismatch: "Valor divergente",
	ReasonWrongDate:      "Data errada",
	ReasonOther:          "Outros",
}

func (r RejectReason) Valid() bool {
	_, ok := reasonLabels[r]
	return ok
}

func (r RejectReason) Label() string {
	return reasonLabels[r]
}

// Proof is a member's claim of payment awaiting review.
type Proof struct {
	ID              snowflake.ID    `gorm:"column:id;primaryKey" json:"id"`
	PaymentID       snowflake.ID    `gorm:"column:payment_id" json:"payment_id"`
	UserID          string          `gorm:"column:user_id" json:"user_id"`
	ProofAmount     decimal.Decimal `gorm:"column:proof_amount;type:numeric(12,2)" json:"proof_amount"`
	PaymentMethod   string          `gorm:"column:payment_method" json:"payment_method"`
	Observation     string          `gorm:"column:observation" json:"observation"`
	Status          Status          `gorm:"column:status" json:"status"`
	RejectionReason *RejectReason   `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	RejectionNote   *string         `gorm:"column:rejection_note" json:"rejection_note,omitempty"`
	ProofImage      *string         `gorm:"column:proof_image" json:"proof_image,omitempty"`
	SubmittedAt     time.Time       `gorm:"column:submitted_at" json:"submitted_at"`
	ReviewedAt      *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy      *string         `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
}

func (Proof) TableName() string { return "payment_proofs" }

// Target is one payment row covered by a proof, in allocation order.
type Target struct {
	ProofID   snowflake.ID `gorm:"column:proof_id"`
	PaymentID snowflake.ID `gorm:"column:payment_id"`
	Seq       int          `gorm:"column:seq"`
}

func (Target) TableName() string { return "payment_proof_targets" }

type ListFilter struct {
	Status Status
	Cursor *pagination.Position
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Proof) error
	InsertTargets(ctx context.Context, db *gorm.DB, targets []Target) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Proof, error)
	// Targets returns the payment ids of a proof in allocation order. Proofs
	// without target rows cover their primary payment only.
	Targets(ctx context.Context, db *gorm.DB, p *Proof) ([]snowflake.ID, error)
	// MarkReviewed writes the review only if the proof is still pending.
	MarkReviewed(ctx context.Context, db *gorm.DB, p *Proof) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Proof, error)
	// DeleteUnapproved removes pending and rejected proofs that touch paymentID, with their targets.
	DeleteUnapproved(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error)
}

// SubmitRequest targets either explicit payment rows (in order) or a group charge.
type SubmitRequest struct {
	PaymentIDs    []snowflake.ID           `json:"payment_ids"`
	GroupID       string                   `json:"group_id"`
	Charge        *paymentdomain.ChargeKey `json:"charge,omitempty"`
	UserID        string                   `json:"user_id"`
	Amount        decimal.Decimal          `json:"amount"`
	PaymentMethod string                   `json:"payment_method"`
	Observation   string                   `json:"observation"`
	ProofImage    string                   `json:"proof_image"`
}

type ApproveRequest struct {
	ProofID    snowflake.ID `json:"proof_id"`
	ReviewerID string       `json:"reviewer_id"`
}

type RejectRequest struct {
	ProofID    snowflake.ID `json:"proof_id"`
	ReviewerID string       `json:"reviewer_id"`
	Reason     RejectReason `json:"reason"`
	Note       string       `json:"note"`
}

// Allocation is the outcome of an approval on one payment row.
type Allocation struct {
	PaymentID  snowflake.ID         `json:"payment_id"`
	MemberID   string               `json:"member_id"`
	Amount     decimal.Decimal      `json:"amount"`
	PaidAmount decimal.Decimal      `json:"paid_amount"`
	Status     paymentdomain.Status `json:"status"`
	FullyPaid  bool                 `json:"fully_paid"`
	TicketID   snowflake.ID         `json:"ticket_id,omitempty"`
	TicketCode string               `json:"ticket_code,omitempty"`
}

type ApproveResult struct {
	Proof       *Proof       `json:"proof"`
	Allocations []Allocation `json:"allocations"`
}

type ListPendingRequest struct {
	pagination.Pagination
}

type ListPendingResponse struct {
	pagination.PageInfo
	Proofs []Proof `json:"proofs"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Proof, error)
	Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error)
	Reject(ctx context.Context, req RejectRequest) (*Proof, error)
	Get(ctx context.Context, id snowflake.ID) (*Proof, error)
	ListPending(ctx context.Context, req ListPendingRequest) (ListPendingResponse, error)
}

var (
	ErrProofNotFound     = paymentdomain.NewNotFound("proof_not_found", "proof not found")
	ErrInvalidTransition = paymentdomain.NewConflict("invalid_proof_transition", "proof was already reviewed")
	ErrInvalidReason     = paymentdomain.NewValidation("invalid_rejection_reason", "rejection reason must be valor_divergente, data_errada or outros")
	ErrInvalidReviewer   = paymentdomain.NewValidation("invalid_reviewer", "reviewer is required")
	ErrInvalidSubmitter  = paymentdomain.NewValidation("invalid_submitter", "submitter is required")
	ErrNoTargets         = paymentdomain.NewValidation("no_targets", "a proof must target at least one payment")
	ErrAmbiguousTargets  = paymentdomain.NewValidation("ambiguous_targets", "target either payment ids or a group charge, not both")
	ErrTargetNotPayable  = paymentdomain.NewValidation("target_not_payable", "only member charges can receive proofs")
	ErrInvalidPageToken  = paymentdomain.NewValidation("invalid_page_token", "page token is malformed")
)
