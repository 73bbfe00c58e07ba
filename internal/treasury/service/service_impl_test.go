package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/duesledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/duesledger/internal/audit/service"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/lock"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duesledger/internal/payment/repository"
	"github.com/smallbiznis/duesledger/internal/testutil"
	"github.com/smallbiznis/duesledger/internal/treasury/domain"
	"github.com/smallbiznis/duesledger/internal/treasury/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db   *gorm.DB
	node *snowflake.Node
	repo paymentdomain.Repository
	svc  domain.Service
}

func setup(t *testing.T) harness {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := testutil.Clock()
	repo := paymentrepo.Provide()
	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Policy:   testutil.Policy(),
		Payments: repo,
		Locker:   lock.NewLocalLocker(func() time.Duration { return time.Second }),
		Audit: auditservice.NewService(auditservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
		}),
	})
	return harness{db: db, node: node, repo: repo, svc: svc}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (h harness) insert(t *testing.T, member string, value, paid string, status paymentdomain.Status, category string) *paymentdomain.Payment {
	t.Helper()
	row := &paymentdomain.Payment{
		ID:         h.node.Generate(),
		Category:   category,
		Amount:     dec(value),
		PaidAmount: dec(paid),
		Status:     status,
		DueDate:    "2024-05-10",
		CreatedAt:  testutil.Epoch,
		UpdatedAt:  testutil.Epoch,
	}
	if member != "" {
		row.MemberID = &member
	}
	require.NoError(t, h.repo.Insert(context.Background(), h.db, row))
	return row
}

func TestCashAvailable(t *testing.T) {
	h := setup(t)
	h.insert(t, "u1", "50", "50", paymentdomain.StatusPaid, "Mensalidade")
	h.insert(t, "u2", "50", "20", paymentdomain.StatusPartial, "Mensalidade")
	h.insert(t, "", "300", "300", paymentdomain.StatusPaid, "Aluguel")
	h.insert(t, "", "12.5", "12.5", paymentdomain.StatusExpense, config.OutflowCategory)

	summary, err := h.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Inflow.Equal(dec("50")))
	assert.True(t, summary.Outflow.Equal(dec("12.5")))
	assert.True(t, summary.Available.Equal(dec("37.5")))

	available, err := h.svc.CashAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("37.5")))
}

func TestCashSettlementBeyondAvailableIsRejected(t *testing.T) {
	h := setup(t)
	h.insert(t, "u1", "30", "30", paymentdomain.StatusPaid, "Mensalidade")
	expense := h.insert(t, "", "50", "0", paymentdomain.StatusPending, "Aluguel")

	_, err := h.svc.SettleExpense(context.Background(), domain.SettleExpenseRequest{
		PaymentID: expense.ID, Source: domain.SourceCash, ActorID: "admin",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCash)

	got, err := h.repo.FindByID(context.Background(), h.db, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, got.Status)
	assert.Equal(t, int64(0), testutil.Count(t, h.db, "payments", "category = ?", config.OutflowCategory))

	available, err := h.svc.CashAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("30")))
}

func TestCashSettlementEmitsOutflow(t *testing.T) {
	h := setup(t)
	h.insert(t, "u1", "100", "100", paymentdomain.StatusPaid, "Mensalidade")
	expense := h.insert(t, "", "80", "0", paymentdomain.StatusPending, "Aluguel")

	partial := dec("30")
	res, err := h.svc.SettleExpense(context.Background(), domain.SettleExpenseRequest{
		PaymentID: expense.ID, Source: domain.SourceCash, Amount: &partial, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPartial, res.Expense.Status)
	require.NotNil(t, res.Outflow)
	assert.Equal(t, paymentdomain.StatusExpense, res.Outflow.Status)
	assert.Nil(t, res.Outflow.MemberID)
	assert.True(t, res.Available.Equal(dec("70")))

	res, err = h.svc.SettleExpense(context.Background(), domain.SettleExpenseRequest{
		PaymentID: expense.ID, Source: domain.SourceCash, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPaid, res.Expense.Status)
	assert.True(t, res.Outflow.Amount.Equal(dec("50")))
	assert.True(t, res.Available.Equal(dec("20")))

	_, err = h.svc.SettleExpense(context.Background(), domain.SettleExpenseRequest{
		PaymentID: expense.ID, Source: domain.SourceCash, ActorID: "admin",
	})
	assert.ErrorIs(t, err, domain.ErrExpenseSettled)
	assert.Equal(t, int64(2), testutil.Count(t, h.db, "audit_logs", "action = ?", "expense.settled"))
}

func TestExternalSettlementLeavesCashAlone(t *testing.T) {
	h := setup(t)
	expense := h.insert(t, "", "500", "0", paymentdomain.StatusPending, "Reforma")

	res, err := h.svc.SettleExpense(context.Background(), domain.SettleExpenseRequest{
		PaymentID: expense.ID, Source: domain.SourceExternal, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Outflow)
	assert.Equal(t, paymentdomain.StatusPaid, res.Expense.Status)

	available, err := h.svc.CashAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, available.IsZero())
}

func TestSettleExpenseValidation(t *testing.T) {
	h := setup(t)
	charge := h.insert(t, "u1", "50", "0", paymentdomain.StatusPending, "Mensalidade")
	expense := h.insert(t, "", "50", "0", paymentdomain.StatusPending, "Aluguel")
	ctx := context.Background()

	_, err := h.svc.SettleExpense(ctx, domain.SettleExpenseRequest{PaymentID: expense.ID, Source: "pix"})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)

	_, err = h.svc.SettleExpense(ctx, domain.SettleExpenseRequest{PaymentID: charge.ID, Source: domain.SourceExternal})
	assert.ErrorIs(t, err, domain.ErrNotAnExpense)

	_, err = h.svc.SettleExpense(ctx, domain.SettleExpenseRequest{PaymentID: 1, Source: domain.SourceExternal})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	tooMuch := dec("60")
	_, err = h.svc.SettleExpense(ctx, domain.SettleExpenseRequest{PaymentID: expense.ID, Source: domain.SourceExternal, Amount: &tooMuch})
	assert.ErrorIs(t, err, domain.ErrInvalidSettlement)
}
