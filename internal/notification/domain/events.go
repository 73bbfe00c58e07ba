package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/pkg/money"
)

func NewChargeEvent(userID, category string, amount decimal.Decimal, dueDate string) Event {
	return Event{
		UserID:  userID,
		Title:   "Nova cobrança",
		Message: fmt.Sprintf("Você tem uma nova cobrança de %s (%s) com vencimento em %s.", category, money.Format(amount), dueDate),
		Type:    TypeNewCharge,
		Metadata: map[string]any{
			"category": category,
			"amount":   amount.StringFixed(2),
			"due_date": dueDate,
		},
	}
}

func ApprovedEvent(userID, category string, allocated, remaining decimal.Decimal, fullyPaid bool) Event {
	if fullyPaid {
		return Event{
			UserID:   userID,
			Title:    "Pagamento aprovado",
			Message:  fmt.Sprintf("Seu pagamento de %s referente a %s foi aprovado. Cobrança quitada.", money.Format(allocated), category),
			Type:     TypePaymentApproved,
			Metadata: map[string]any{"category": category, "amount": allocated.StringFixed(2)},
		}
	}
	return Event{
		UserID:  userID,
		Title:   "Pagamento parcial aprovado",
		Message: fmt.Sprintf("Seu pagamento de %s referente a %s foi aprovado. Restam %s.", money.Format(allocated), category, money.Format(remaining)),
		Type:    TypePaymentPartial,
		Metadata: map[string]any{
			"category":  category,
			"amount":    allocated.StringFixed(2),
			"remaining": remaining.StringFixed(2),
		},
	}
}

func RejectedEvent(userID, reasonLabel, note string) Event {
	message := fmt.Sprintf("Seu comprovante foi recusado: %s.", reasonLabel)
	if note != "" {
		message += " " + note
	}
	return Event{
		UserID:   userID,
		Title:    "Comprovante recusado",
		Message:  message,
		Type:     TypePaymentRejected,
		Metadata: map[string]any{"reason": reasonLabel},
	}
}
