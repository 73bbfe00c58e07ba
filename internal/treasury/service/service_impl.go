package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/lock"
	"github.com/smallbiznis/duesledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/treasury/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Payments paymentdomain.Repository
	Locker   lock.Locker
	Audit    auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PolicyHolder
	payments paymentdomain.Repository
	locker   lock.Locker
	audit    auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("treasury.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		payments: p.Payments,
		locker:   p.Locker,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

func (s *Service) CashAvailable(ctx context.Context) (decimal.Decimal, error) {
	summary, err := s.summary(ctx, s.db)
	if err != nil {
		return decimal.Zero, paymentdomain.External("compute cash available", err)
	}
	return summary.Available, nil
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	summary, err := s.summary(ctx, s.db)
	if err != nil {
		return domain.Summary{}, paymentdomain.External("compute treasury summary", err)
	}
	return summary, nil
}

// summary: inflow is every fully paid member row, outflow every synthetic
// cash-outflow row. Partial payments do not count as cash yet.
func (s *Service) summary(ctx context.Context, db *gorm.DB) (domain.Summary, error) {
	inflow, err := s.payments.SumAmount(ctx, db, paymentdomain.SumFilter{
		Status:     paymentdomain.StatusPaid,
		WithMember: true,
	})
	if err != nil {
		return domain.Summary{}, err
	}
	outflow, err := s.payments.SumAmount(ctx, db, paymentdomain.SumFilter{
		Category: s.policy.Get().OutflowCategory,
	})
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{
		Inflow:    inflow,
		Outflow:   outflow,
		Available: inflow.Sub(outflow),
	}, nil
}

// SettleExpense pays a general expense. Cash settlements are checked against
// the cash available and recorded as an outflow row; all settlements are
// serialized on the treasury lock.
func (s *Service) SettleExpense(ctx context.Context, req domain.SettleExpenseRequest) (*domain.SettleExpenseResult, error) {
	if !req.Source.Valid() {
		return nil, domain.ErrInvalidSource
	}

	release, err := s.locker.Acquire(ctx, lock.TreasuryKey, lock.PaymentKey(req.PaymentID))
	if err != nil {
		return nil, err
	}
	defer release()

	policy := s.policy.Get()
	now := s.clock.Now()
	result := &domain.SettleExpenseResult{}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.payments.FindByIDsForUpdate(ctx, tx, []snowflake.ID{req.PaymentID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return paymentdomain.ErrPaymentNotFound
		}
		expense := rows[0]
		if expense.Kind().Tag != paymentdomain.KindGeneralExpense || expense.Status == paymentdomain.StatusExpense {
			return domain.ErrNotAnExpense
		}
		outstanding := expense.Outstanding()
		if !outstanding.IsPositive() {
			return domain.ErrExpenseSettled
		}

		amount := outstanding
		if req.Amount != nil {
			amount = money.Round2(*req.Amount)
		}
		if !amount.IsPositive() || amount.GreaterThan(outstanding) {
			return domain.ErrInvalidSettlement
		}

		summary, err := s.summary(ctx, tx)
		if err != nil {
			return err
		}
		if req.Source == domain.SourceCash && amount.GreaterThan(summary.Available) {
			return domain.ErrInsufficientCash
		}

		updated, err := paymentdomain.ApplyPaid(*expense, expense.PaidAmount.Add(amount), now)
		if err != nil {
			return err
		}
		if err := s.payments.UpdateSettlement(ctx, tx, &updated); err != nil {
			return err
		}
		result.Expense = &updated
		result.Available = summary.Available

		if req.Source == domain.SourceCash {
			paidAt := now
			outflow := &paymentdomain.Payment{
				ID:          s.genID.Generate(),
				Category:    policy.OutflowCategory,
				Amount:      amount,
				PaidAmount:  amount,
				Status:      paymentdomain.StatusExpense,
				DueDate:     paymentdomain.NewDate(now),
				PaidAt:      &paidAt,
				Observation: strings.TrimSpace(expense.Category + " " + expense.Observation),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := outflow.Validate(); err != nil {
				return err
			}
			if err := s.payments.Insert(ctx, tx, outflow); err != nil {
				return err
			}
			result.Outflow = outflow
			result.Available = summary.Available.Sub(amount)
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:    req.ActorID,
			Action:     auditdomain.ActionExpenseSettled,
			TargetType: auditdomain.TargetPayment,
			TargetID:   expense.ID.String(),
			Metadata: map[string]any{
				"source": string(req.Source),
				"amount": amount.StringFixed(money.Places),
			},
		})
	})
	if err != nil {
		return nil, paymentdomain.External("settle expense", err)
	}

	s.log.Info("expense settled",
		zap.String("payment_id", req.PaymentID.String()),
		zap.String("source", string(req.Source)),
		zap.String("available", result.Available.StringFixed(money.Places)),
	)
	s.metrics.RecordTreasurySettlement(ctx, string(req.Source))
	return result, nil
}
