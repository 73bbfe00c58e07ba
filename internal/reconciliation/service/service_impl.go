package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/config"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Payments paymentdomain.Repository
	Policy   *config.PolicyHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	payments paymentdomain.Repository
	policy   *config.PolicyHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reconciliation.service"),
		payments: p.Payments,
		policy:   p.Policy,
	}
}

func (s *Service) ListGroupCharges(ctx context.Context, filter domain.Filter) ([]domain.GroupCharge, error) {
	switch filter.Status {
	case "", domain.GroupStatusPaid, domain.GroupStatusPending:
	default:
		return nil, domain.ErrInvalidGroupStatus
	}

	rows, err := s.payments.List(ctx, s.db, paymentdomain.ListFilter{
		GroupID:     strings.TrimSpace(filter.GroupID),
		GroupedOnly: true,
		Category:    strings.TrimSpace(filter.Category),
	})
	if err != nil {
		return nil, paymentdomain.External("list group rows", err)
	}

	charges := domain.Consolidate(rows)
	if filter.Status == "" {
		return charges, nil
	}
	out := charges[:0]
	for _, c := range charges {
		if c.Status == filter.Status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) GetGroupCharge(ctx context.Context, groupID string, key paymentdomain.ChargeKey) (*domain.GroupCharge, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, paymentdomain.ErrInvalidGroup
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.payments.ListByCharge(ctx, s.db, groupID, key)
	if err != nil {
		return nil, paymentdomain.External("list charge rows", err)
	}
	charges := domain.Consolidate(rows)
	if len(charges) == 0 {
		return nil, domain.ErrGroupChargeNotFound
	}
	return &charges[0], nil
}

func (s *Service) Outstanding(ctx context.Context, ids []snowflake.ID) ([]decimal.Decimal, error) {
	rows, err := s.payments.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, paymentdomain.External("load payments", err)
	}
	if len(rows) != len(ids) {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	out := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		out[i] = row.Outstanding()
	}
	return out, nil
}

func (s *Service) Allocate(amount decimal.Decimal, outstanding []decimal.Decimal) ([]decimal.Decimal, error) {
	allocations, err := domain.Allocate(amount, outstanding, s.policy.Get().Tolerance())
	if err != nil {
		s.log.Debug("allocation refused", zap.String("amount", amount.String()), zap.Error(err))
		return nil, err
	}
	return allocations, nil
}
