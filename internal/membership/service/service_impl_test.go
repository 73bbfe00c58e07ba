package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/duesledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/duesledger/internal/audit/service"
	"github.com/smallbiznis/duesledger/internal/lock"
	"github.com/smallbiznis/duesledger/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/duesledger/internal/membership/repository"
	"github.com/smallbiznis/duesledger/internal/membership/service"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duesledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/duesledger/internal/payment/service"
	proofdomain "github.com/smallbiznis/duesledger/internal/proof/domain"
	proofrepo "github.com/smallbiznis/duesledger/internal/proof/repository"
	proofservice "github.com/smallbiznis/duesledger/internal/proof/service"
	reconciliationservice "github.com/smallbiznis/duesledger/internal/reconciliation/service"
	"github.com/smallbiznis/duesledger/internal/testutil"
	ticketrepo "github.com/smallbiznis/duesledger/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	pub      *testutil.Publisher
	payments paymentdomain.Service
	proofs   proofdomain.Service
	svc      domain.Service
	locker   lock.Locker
	key      paymentdomain.ChargeKey
}

func setup(t *testing.T, members ...string) harness {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := testutil.Clock()
	policy := testutil.Policy()
	pub := &testutil.Publisher{}
	source := membershiprepo.NewSource(db)
	payRepo := paymentrepo.Provide()
	proofRepo := proofrepo.Provide()
	tickets := ticketrepo.Provide()
	locker := lock.NewLocalLocker(func() time.Duration { return time.Second })
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})

	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: payRepo,
		Members: source, Locker: locker, Publisher: &testutil.Publisher{},
	})
	proofs := proofservice.NewService(proofservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Policy: policy,
		Repo: proofRepo, Payments: payRepo, Tickets: tickets,
		Reconciliation: reconciliationservice.NewService(reconciliationservice.Params{
			DB: db, Log: zap.NewNop(), Payments: payRepo, Policy: policy,
		}),
		Locker: locker, Audit: audit, Publisher: &testutil.Publisher{},
	})
	svc := service.NewService(service.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Source: source,
		Payments: payRepo, Proofs: proofRepo, Tickets: tickets,
		Locker: locker, Audit: audit, Publisher: pub,
	})

	testutil.SeedGroup(t, db, "g1", members...)
	rows, err := payments.CreateGroupCharge(context.Background(), paymentdomain.CreateGroupChargeRequest{
		GroupID: "g1", Category: "Mensalidade", Amount: decimal.NewFromInt(50), DueDate: "2024-05-10",
		Observation: "Mensalidade maio",
	})
	require.NoError(t, err)

	return harness{db: db, pub: pub, payments: payments, proofs: proofs, svc: svc, locker: locker, key: paymentdomain.KeyOf(*rows[0])}
}

func (h harness) req() domain.SyncRequest {
	return domain.SyncRequest{GroupID: "g1", Charge: h.key, ActorID: "admin"}
}

func (h harness) rowOf(t *testing.T, member string) *paymentdomain.Payment {
	t.Helper()
	rows, err := h.payments.ListByMember(context.Background(), member)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func (h harness) pay(t *testing.T, member string, value string) {
	t.Helper()
	ctx := context.Background()
	row := h.rowOf(t, member)
	proof, err := h.proofs.Submit(ctx, proofdomain.SubmitRequest{
		PaymentIDs: []snowflake.ID{row.ID}, UserID: member, Amount: decimal.RequireFromString(value),
	})
	require.NoError(t, err)
	_, err = h.proofs.Approve(ctx, proofdomain.ApproveRequest{ProofID: proof.ID, ReviewerID: "admin"})
	require.NoError(t, err)
}

func TestSyncAddsNewMembers(t *testing.T) {
	h := setup(t, "u1", "u2")
	testutil.AddMember(t, h.db, "g1", "u3")

	plan, err := h.svc.Plan(context.Background(), h.req())
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, plan.Add)
	assert.Equal(t, 2, plan.Preserved)
	assert.Equal(t, int64(2), testutil.Count(t, h.db, "payments", "group_id = ?", "g1"))

	res, err := h.svc.Sync(context.Background(), h.req())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Added: 1, Preserved: 2}, res)

	row := h.rowOf(t, "u3")
	assert.Equal(t, paymentdomain.StatusPending, row.Status)
	assert.True(t, row.PaidAmount.IsZero())
	assert.Equal(t, "Mensalidade maio", row.Observation)
	assert.Equal(t, []string{"u3"}, h.pub.Recipients(notificationdomain.TypeNewCharge))
}

func TestSyncIsIdempotent(t *testing.T) {
	h := setup(t, "u1", "u2")
	testutil.AddMember(t, h.db, "g1", "u3")
	testutil.RemoveMember(t, h.db, "g1", "u1")

	first, err := h.svc.Sync(context.Background(), h.req())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)
	assert.Equal(t, 1, first.Deleted)

	second, err := h.svc.Sync(context.Background(), h.req())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Preserved: 2}, second)
}

func TestSyncDeletesUnticketedRowsWithTheirProofs(t *testing.T) {
	h := setup(t, "u1", "u2")
	ctx := context.Background()
	row := h.rowOf(t, "u1")

	pending, err := h.proofs.Submit(ctx, proofdomain.SubmitRequest{
		PaymentIDs: []snowflake.ID{row.ID}, UserID: "u1", Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	rejected, err := h.proofs.Submit(ctx, proofdomain.SubmitRequest{
		PaymentIDs: []snowflake.ID{row.ID}, UserID: "u1", Amount: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	_, err = h.proofs.Reject(ctx, proofdomain.RejectRequest{ProofID: rejected.ID, ReviewerID: "admin", Reason: proofdomain.ReasonWrongDate})
	require.NoError(t, err)

	testutil.RemoveMember(t, h.db, "g1", "u1")
	res, err := h.svc.Sync(ctx, h.req())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Removed)

	assert.Equal(t, int64(0), testutil.Count(t, h.db, "payments", "member_id = ?", "u1"))
	assert.Equal(t, int64(0), testutil.Count(t, h.db, "payment_proofs", "id IN (?, ?)", pending.ID, rejected.ID))
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "audit_logs", "action = ?", "payment.deleted"))
}

func TestSyncWaitsForRowLockHeldByApproval(t *testing.T) {
	h := setup(t, "u1", "u2")
	ctx := context.Background()
	row := h.rowOf(t, "u1")

	proof, err := h.proofs.Submit(ctx, proofdomain.SubmitRequest{
		PaymentIDs: []snowflake.ID{row.ID}, UserID: "u1", Amount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	testutil.RemoveMember(t, h.db, "g1", "u1")

	release, err := h.locker.Acquire(ctx, lock.PaymentKey(row.ID))
	require.NoError(t, err)
	_, err = h.svc.Sync(ctx, h.req())
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "payments", "id = ?", row.ID))
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "payment_proofs", "id = ?", proof.ID))
	release()

	// The approval wins the row, so the sync now sees a ticket and detaches instead of deleting.
	_, err = h.proofs.Approve(ctx, proofdomain.ApproveRequest{ProofID: proof.ID, ReviewerID: "admin"})
	require.NoError(t, err)

	req := h.req()
	req.ConfirmSettledDetach = true
	res, err := h.svc.Sync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Detached)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "payment_proofs", "id = ?", proof.ID))
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "payment_tickets", "payment_id = ?", row.ID))
}

func TestSyncReadsMembershipUnderChargeLock(t *testing.T) {
	h := setup(t, "u1", "u2")
	ctx := context.Background()

	release, err := h.locker.Acquire(ctx, lock.ChargeKey("g1", h.key))
	require.NoError(t, err)
	done := make(chan domain.SyncResult, 1)
	go func() {
		res, err := h.svc.Sync(ctx, h.req())
		assert.NoError(t, err)
		done <- res
	}()

	// Membership changes while the sync waits; it must apply the newer view.
	time.Sleep(50 * time.Millisecond)
	testutil.AddMember(t, h.db, "g1", "u3")
	release()

	res := <-done
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, int64(3), testutil.Count(t, h.db, "payments", "group_id = ?", "g1"))
}

func TestSyncDetachesTicketedRows(t *testing.T) {
	h := setup(t, "u1", "u2")
	ctx := context.Background()
	h.pay(t, "u1", "50")
	paid := h.rowOf(t, "u1")

	testutil.RemoveMember(t, h.db, "g1", "u1")

	plan, err := h.svc.Plan(ctx, h.req())
	require.NoError(t, err)
	assert.True(t, plan.RequiresConfirmation)
	require.Len(t, plan.Remove, 1)
	assert.True(t, plan.Remove[0].Detach)

	_, err = h.svc.Sync(ctx, h.req())
	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	assert.NotNil(t, h.rowOf(t, "u1").GroupID)

	req := h.req()
	req.ConfirmSettledDetach = true
	res, err := h.svc.Sync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Detached)
	assert.Equal(t, 0, res.Deleted)

	row := h.rowOf(t, "u1")
	assert.Equal(t, paid.ID, row.ID)
	assert.Nil(t, row.GroupID)
	assert.Equal(t, paymentdomain.KindIndividual, row.Kind().Tag)
	assert.Equal(t, paymentdomain.StatusPaid, row.Status)
	assert.True(t, domain.HasProvenance(row.Observation, "g1"))
	assert.Equal(t, int64(1), testutil.Count(t, h.db, "payment_tickets", "payment_id = ?", row.ID))
}

func TestSyncDetachesPartialRowsWithoutConfirmation(t *testing.T) {
	h := setup(t, "u1", "u2")
	h.pay(t, "u1", "20")
	testutil.RemoveMember(t, h.db, "g1", "u1")

	res, err := h.svc.Sync(context.Background(), h.req())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Detached)
	assert.Equal(t, paymentdomain.StatusPartial, h.rowOf(t, "u1").Status)
}

func TestSyncReintegratesReturningMember(t *testing.T) {
	h := setup(t, "u1", "u2")
	ctx := context.Background()
	h.pay(t, "u1", "20")
	original := h.rowOf(t, "u1")

	testutil.RemoveMember(t, h.db, "g1", "u1")
	_, err := h.svc.Sync(ctx, h.req())
	require.NoError(t, err)

	testutil.AddMember(t, h.db, "g1", "u1")
	plan, err := h.svc.Plan(ctx, h.req())
	require.NoError(t, err)
	assert.Empty(t, plan.Add)
	require.Len(t, plan.Reintegrate, 1)

	res, err := h.svc.Sync(ctx, h.req())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Reintegrated: 1, Preserved: 1}, res)

	row := h.rowOf(t, "u1")
	assert.Equal(t, original.ID, row.ID)
	require.NotNil(t, row.GroupID)
	assert.Equal(t, "g1", *row.GroupID)
	assert.False(t, domain.HasProvenance(row.Observation, "g1"))
	assert.True(t, row.PaidAmount.Equal(decimal.NewFromInt(20)))
}

func TestSyncIgnoresOrphansOfOtherGroups(t *testing.T) {
	h := setup(t, "u1")
	ctx := context.Background()
	testutil.SeedGroup(t, h.db, "g2")

	// an orphan tagged for another group is not a reintegration candidate
	orphan := h.rowOf(t, "u1")
	require.NoError(t, h.db.Exec(`UPDATE payments SET group_id = NULL, observation = ? WHERE id = ?`,
		domain.TagObservation("", "g2"), orphan.ID).Error)

	res, err := h.svc.Sync(ctx, h.req())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, int64(2), testutil.Count(t, h.db, "payments", "member_id = ?", "u1"))
}

func TestSyncUnknownGroup(t *testing.T) {
	h := setup(t, "u1")
	req := h.req()
	req.GroupID = "nope"

	_, err := h.svc.Sync(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}
