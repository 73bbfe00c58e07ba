package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingTicketCode = errors.New("ticket receipt requires a code")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateTicketReceipt(ctx context.Context, receipt TicketReceipt) (io.Reader, error) {
	if receipt.Code == "" {
		return nil, ErrMissingTicketCode
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, "Comprovante de pagamento", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.Status, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(10,
		text.NewCol(12, "Ticket "+receipt.Code, props.Text{Size: 11, Align: align.Left}),
	)
	m.AddRow(2, line.NewCol(12))

	m.AddRow(22,
		col.New(6).Add(
			text.New("Membro", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(receipt.MemberName, props.Text{Top: 5, Size: 10}),
			text.New(receipt.MemberID, props.Text{Top: 10, Size: 8}),
		),
		col.New(6).Add(
			text.New("Cobrança", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(receipt.Category, props.Text{Top: 5, Size: 10}),
			text.New("Vencimento: "+receipt.DueDate, props.Text{Top: 10, Size: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Valor deste pagamento", props.Text{Size: 10}),
		text.NewCol(6, receipt.Amount, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)
	if receipt.ChargeTotal != "" {
		m.AddRow(10,
			text.NewCol(6, "Valor da cobrança", props.Text{Size: 10}),
			text.NewCol(6, receipt.ChargeTotal, props.Text{Size: 10, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(18,
		col.New(6).Add(
			text.New("Aprovado por: "+receipt.ApprovedBy, props.Text{Size: 9}),
			text.New("Aprovado em: "+receipt.ApprovedAt, props.Text{Top: 5, Size: 9}),
		),
		col.New(6).Add(
			text.New("Válido até: "+receipt.ExpiresAt, props.Text{Size: 9, Align: align.Right}),
		),
	)

	if receipt.Observation != "" {
		m.AddRow(12,
			text.NewCol(12, receipt.Observation, props.Text{Size: 9}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
