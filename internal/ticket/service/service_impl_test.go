package service_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/duesledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/duesledger/internal/audit/service"
	membershiprepo "github.com/smallbiznis/duesledger/internal/membership/repository"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duesledger/internal/payment/repository"
	"github.com/smallbiznis/duesledger/internal/providers/pdf"
	"github.com/smallbiznis/duesledger/internal/testutil"
	"github.com/smallbiznis/duesledger/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/duesledger/internal/ticket/repository"
	"github.com/smallbiznis/duesledger/internal/ticket/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	repo domain.Repository
	svc  domain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: testutil.Clock(), Repo: auditrepo.Provide(),
	})
	repo := ticketrepo.Provide()
	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Repo:     repo,
		Payments: paymentrepo.Provide(),
		Members:  membershiprepo.NewSource(db),
		Audit:    audit,
		PDF:      pdf.New(),
	})
	return fixture{db: db, node: node, repo: repo, svc: svc}
}

func (f fixture) issue(t *testing.T, paymentID, proofID snowflake.ID, userID string) *domain.Ticket {
	t.Helper()
	at := testutil.Epoch
	item := &domain.Ticket{
		ID:            f.node.Generate(),
		Code:          domain.NewCode(at),
		PaymentID:     paymentID,
		ProofID:       proofID,
		UserID:        userID,
		Amount:        decimal.RequireFromString("25"),
		PaymentStatus: domain.SnapshotPartial,
		ApprovedBy:    "admin",
		ApprovedAt:    at,
		ExpiresAt:     at.Add(365 * 24 * time.Hour),
		CreatedAt:     at,
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, item))
	return item
}

func TestTicketsAreImmutable(t *testing.T) {
	f := setup(t)
	item := f.issue(t, 10, 20, "u1")

	err := f.db.Model(item).Update("amount", decimal.NewFromInt(99)).Error
	assert.ErrorIs(t, err, domain.ErrTicketImmutable)

	err = f.db.Delete(item).Error
	assert.ErrorIs(t, err, domain.ErrTicketImmutable)

	got, err := f.svc.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(25)))

	// one ticket per approval event per row
	dup := *item
	dup.ID = f.node.Generate()
	dup.Code = domain.NewCode(testutil.Epoch)
	assert.ErrorIs(t, f.repo.Insert(context.Background(), f.db, &dup), domain.ErrDuplicateTicket)
}

func TestListAndCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.issue(t, 10, 20, "u1")
	f.issue(t, 10, 21, "u1")
	f.issue(t, 11, 21, "u2")

	byPayment, err := f.svc.ListByPayment(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, byPayment, 2)

	byUser, err := f.svc.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	_, err = f.svc.ListByUser(ctx, " ")
	assert.ErrorIs(t, err, paymentdomain.ErrValidation)

	counts, err := f.repo.CountByPayments(ctx, f.db, []snowflake.ID{10, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[10])
	assert.Equal(t, int64(1), counts[11])
	assert.Zero(t, counts[12])
}

func TestRenderReceipt(t *testing.T) {
	f := setup(t)
	testutil.SeedProfile(t, f.db, "u1", "Ana Souza", "member")
	item := f.issue(t, 10, 20, "u1")

	receipt, err := f.svc.RenderReceipt(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Contains(t, receipt.Filename, "comprovante-")
	assert.Contains(t, receipt.Filename, ".pdf")

	body, err := io.ReadAll(receipt.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))

	_, err = f.svc.RenderReceipt(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestPurge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.issue(t, 10, 20, "u1")

	err := f.svc.Purge(ctx, domain.PurgeRequest{TicketID: item.ID, ActorID: "admin"})
	assert.ErrorIs(t, err, domain.ErrPurgeReasonRequired)

	require.NoError(t, f.svc.Purge(ctx, domain.PurgeRequest{TicketID: item.ID, ActorID: "admin", Reason: "emitido em duplicidade"}))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "payment_tickets", ""))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "audit_logs", "action = ?", "ticket.purged"))

	err = f.svc.Purge(ctx, domain.PurgeRequest{TicketID: item.ID, ActorID: "admin", Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}
