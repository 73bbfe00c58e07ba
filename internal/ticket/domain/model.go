package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"gorm.io/gorm"
)

// Snapshot is the payment state frozen on a ticket at approval time.
type Snapshot string

const (
	SnapshotComplete Snapshot = "Completo"
	SnapshotPartial  Snapshot = "Parcial"
)

func SnapshotFor(fullyPaid bool) Snapshot {
	if fullyPaid {
		return SnapshotComplete
	}
	return SnapshotPartial
}

// Ticket is the immutable receipt of one approval event on one payment row.
type Ticket struct {
	ID            snowflake.ID    `gorm:"column:id;primaryKey" json:"id"`
	Code          string          `gorm:"column:code" json:"code"`
	PaymentID     snowflake.ID    `gorm:"column:payment_id" json:"payment_id"`
	ProofID       snowflake.ID    `gorm:"column:proof_id" json:"proof_id"`
	UserID        string          `gorm:"column:user_id" json:"user_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2)" json:"amount"`
	PaymentStatus Snapshot        `gorm:"column:payment_status" json:"payment_status"`
	ApprovedBy    string          `gorm:"column:approved_by" json:"approved_by"`
	ApprovedAt    time.Time       `gorm:"column:approved_at" json:"approved_at"`
	ExpiresAt     time.Time       `gorm:"column:expires_at" json:"expires_at"`
	ProofImage    *string         `gorm:"column:proof_image" json:"proof_image,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Ticket) TableName() string { return "payment_tickets" }

// BeforeUpdate keeps tickets append-only for every gorm model write.
func (t *Ticket) BeforeUpdate(*gorm.DB) error {
	return ErrTicketImmutable
}

func (t *Ticket) BeforeDelete(*gorm.DB) error {
	return ErrTicketImmutable
}

// NewCode returns a sortable human-facing ticket code.
func NewCode(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, t *Ticket) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Ticket, error)
	ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*Ticket, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]*Ticket, error)
	// CountByPayments returns the ticket count of each payment id that has any.
	CountByPayments(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID]int64, error)
	// Purge is the only path that removes a ticket.
	Purge(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type PurgeRequest struct {
	TicketID snowflake.ID `json:"ticket_id"`
	ActorID  string       `json:"actor_id"`
	Reason   string       `json:"reason"`
}

type Receipt struct {
	Filename string
	Body     io.Reader
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Ticket, error)
	ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]*Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]*Ticket, error)
	RenderReceipt(ctx context.Context, id snowflake.ID) (*Receipt, error)
	Purge(ctx context.Context, req PurgeRequest) error
}

var (
	ErrTicketNotFound      = paymentdomain.NewNotFound("ticket_not_found", "ticket not found")
	ErrTicketImmutable     = paymentdomain.NewConflict("ticket_immutable", "tickets cannot be changed once issued")
	ErrDuplicateTicket     = paymentdomain.NewConflict("duplicate_ticket", "a ticket for this approval already exists")
	ErrPurgeReasonRequired = paymentdomain.NewValidation("purge_reason_required", "a reason is required to purge a ticket")
	ErrInvalidUser         = paymentdomain.NewValidation("invalid_user", "user is required")
)
