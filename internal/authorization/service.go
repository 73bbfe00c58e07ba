package authorization

import (
	"context"

	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

const (
	ObjectCharge   = "charge"
	ObjectGroup    = "group"
	ObjectProof    = "proof"
	ObjectTicket   = "ticket"
	ObjectTreasury = "treasury"
	ObjectExpense  = "expense"
	ObjectAuditLog = "audit_log"
)

const (
	ActionChargeView    = "charge.view"
	ActionChargeViewAll = "charge.view_all"
	ActionChargeCreate  = "charge.create"

	ActionGroupSync = "group.sync"

	ActionProofSubmit  = "proof.submit"
	ActionProofView    = "proof.view"
	ActionProofViewAll = "proof.view_all"
	ActionProofReview  = "proof.review"

	ActionTicketView    = "ticket.view"
	ActionTicketViewAll = "ticket.view_all"
	ActionTicketPurge   = "ticket.purge"

	ActionTreasuryView  = "treasury.view"
	ActionExpenseSettle = "expense.settle"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor  = paymentdomain.NewValidation("invalid_actor", "actor is required")
	ErrInvalidObject = paymentdomain.NewValidation("invalid_object", "object is required")
	ErrInvalidAction = paymentdomain.NewValidation("invalid_action", "action is required")
	ErrForbidden     = paymentdomain.NewForbidden("forbidden", "not allowed")
)

type Service interface {
	// Authorize checks whether actor may perform action on object. The actor's
	// role is read from the membership source, never from the caller.
	Authorize(ctx context.Context, actor, object, action string) error
}
