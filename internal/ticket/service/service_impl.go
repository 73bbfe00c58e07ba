package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/providers/pdf"
	"github.com/smallbiznis/duesledger/internal/ticket/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const displayLayout = "02/01/2006 15:04"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Payments paymentdomain.Repository
	Members  membershipdomain.Source
	Audit    auditdomain.Service
	PDF      pdf.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	payments paymentdomain.Repository
	members  membershipdomain.Source
	audit    auditdomain.Service
	pdf      pdf.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ticket.service"),
		repo:     p.Repo,
		payments: p.Payments,
		members:  p.Members,
		audit:    p.Audit,
		pdf:      p.PDF,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Ticket, error) {
	if id == 0 {
		return nil, domain.ErrTicketNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, paymentdomain.External("find ticket", err)
	}
	if item == nil {
		return nil, domain.ErrTicketNotFound
	}
	return item, nil
}

func (s *Service) ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]*domain.Ticket, error) {
	items, err := s.repo.ListByPayment(ctx, s.db, paymentID)
	if err != nil {
		return nil, paymentdomain.External("list payment tickets", err)
	}
	return items, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Ticket, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, paymentdomain.External("list user tickets", err)
	}
	return items, nil
}

// RenderReceipt renders the printable receipt of a ticket. The payment row may
// be gone; the ticket alone is enough to print.
func (s *Service) RenderReceipt(ctx context.Context, id snowflake.ID) (*domain.Receipt, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := pdf.TicketReceipt{
		Code:       item.Code,
		MemberID:   item.UserID,
		MemberName: item.UserID,
		Amount:     money.Format(item.Amount),
		Status:     string(item.PaymentStatus),
		ApprovedBy: item.ApprovedBy,
		ApprovedAt: item.ApprovedAt.Format(displayLayout),
		ExpiresAt:  item.ExpiresAt.Format("02/01/2006"),
	}
	if name, err := s.members.DisplayName(ctx, item.UserID); err == nil {
		data.MemberName = name
	}
	if name, err := s.members.DisplayName(ctx, item.ApprovedBy); err == nil {
		data.ApprovedBy = name
	}

	payment, err := s.payments.FindByID(ctx, s.db, item.PaymentID)
	if err != nil {
		return nil, paymentdomain.External("find ticket payment", err)
	}
	if payment != nil {
		data.Category = payment.Category
		data.DueDate = payment.DueDate.Time().Format("02/01/2006")
		data.ChargeTotal = money.Format(payment.Amount)
		data.Observation = payment.Observation
	}

	body, err := s.pdf.GenerateTicketReceipt(ctx, data)
	if err != nil {
		return nil, paymentdomain.External("render ticket receipt", err)
	}
	if body == nil {
		body = strings.NewReader("")
	}
	return &domain.Receipt{
		Filename: receiptFilename(data.Category, item.Code),
		Body:     body,
	}, nil
}

// Purge removes a ticket outside the normal flow. It is audited in the same transaction.
func (s *Service) Purge(ctx context.Context, req domain.PurgeRequest) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.ErrPurgeReasonRequired
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, req.TicketID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrTicketNotFound
		}
		if err := s.repo.Purge(ctx, tx, item.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:    req.ActorID,
			Action:     auditdomain.ActionTicketPurged,
			TargetType: auditdomain.TargetTicket,
			TargetID:   item.ID.String(),
			Metadata: map[string]any{
				"code":       item.Code,
				"payment_id": item.PaymentID.String(),
				"amount":     item.Amount.StringFixed(money.Places),
				"reason":     reason,
			},
		})
	})
	if err != nil {
		return paymentdomain.External("purge ticket", err)
	}

	s.log.Info("ticket purged", zap.String("ticket_id", req.TicketID.String()), zap.String("actor_id", req.ActorID))
	return nil
}

func receiptFilename(category, code string) string {
	name := slug.Make(strings.TrimSpace("comprovante " + category + " " + code))
	return name + ".pdf"
}
