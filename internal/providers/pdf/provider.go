package pdf

import (
	"bytes"
	"context"
	"io"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// TicketReceipt is the printable view of one ticket.
type TicketReceipt struct {
	Code        string
	MemberName  string
	MemberID    string
	Category    string
	DueDate     string
	Amount      string
	ChargeTotal string
	Status      string
	ApprovedBy  string
	ApprovedAt  string
	ExpiresAt   string
	Observation string
}

type Provider interface {
	GenerateTicketReceipt(ctx context.Context, data TicketReceipt) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateTicketReceipt(ctx context.Context, data TicketReceipt) (io.Reader, error) {
	return bytes.NewReader(nil), nil
}
