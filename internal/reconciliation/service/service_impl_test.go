package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/lock"
	membershiprepo "github.com/smallbiznis/duesledger/internal/membership/repository"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duesledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/duesledger/internal/payment/service"
	"github.com/smallbiznis/duesledger/internal/reconciliation/domain"
	"github.com/smallbiznis/duesledger/internal/reconciliation/service"
	"github.com/smallbiznis/duesledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGroupChargeReads(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	repo := paymentrepo.Provide()
	testutil.SeedGroup(t, db, "g1", "u1", "u2")

	payments := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     testutil.Node(t),
		Clock:     testutil.Clock(),
		Repo:      repo,
		Members:   membershiprepo.NewSource(db),
		Locker:    lock.NewLocalLocker(func() time.Duration { return time.Second }),
		Publisher: &testutil.Publisher{},
	})
	rows, err := payments.CreateGroupCharge(ctx, paymentdomain.CreateGroupChargeRequest{
		GroupID: "g1", Category: "Mensalidade", Amount: decimal.NewFromInt(50), DueDate: "2024-05-10",
	})
	require.NoError(t, err)

	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Payments: repo,
		Policy:   testutil.Policy(),
	})

	charges, err := svc.ListGroupCharges(ctx, domain.Filter{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[0].Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, domain.GroupStatusPending, charges[0].Status)

	paid, err := svc.ListGroupCharges(ctx, domain.Filter{Status: domain.GroupStatusPaid})
	require.NoError(t, err)
	assert.Empty(t, paid)

	_, err = svc.ListGroupCharges(ctx, domain.Filter{Status: "partial"})
	assert.ErrorIs(t, err, paymentdomain.ErrValidation)

	key := paymentdomain.KeyOf(*rows[0])
	charge, err := svc.GetGroupCharge(ctx, "g1", key)
	require.NoError(t, err)
	assert.Equal(t, rows[0].ID, charge.Representative)

	key.Amount = decimal.NewFromInt(51)
	_, err = svc.GetGroupCharge(ctx, "g1", key)
	assert.ErrorIs(t, err, domain.ErrGroupChargeNotFound)

	outstanding, err := svc.Outstanding(ctx, []snowflake.ID{rows[1].ID, rows[0].ID})
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.True(t, outstanding[0].Equal(decimal.NewFromInt(50)))

	_, err = svc.Outstanding(ctx, []snowflake.ID{rows[0].ID, 99})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}
