package authorization

import (
	"context"
	"testing"

	auditrepo "github.com/smallbiznis/duesledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/duesledger/internal/audit/service"
	membershiprepo "github.com/smallbiznis/duesledger/internal/membership/repository"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: testutil.Node(t), Clock: testutil.Clock(), Repo: auditrepo.Provide(),
	})
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Members:  membershiprepo.NewSource(db),
		AuditSvc: audit,
	})
	return svc, db
}

func TestAuthorizeByRole(t *testing.T) {
	svc, db := newTestService(t)
	testutil.SeedProfile(t, db, "admin-1", "Ana", "admin")
	testutil.SeedProfile(t, db, "member-1", "Bruno", "member")
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   string
		object  string
		action  string
		allowed bool
	}{
		{"admin reviews proofs", "admin-1", ObjectProof, ActionProofReview, true},
		{"admin settles expenses", "admin-1", ObjectExpense, ActionExpenseSettle, true},
		{"member submits proofs", "member-1", ObjectProof, ActionProofSubmit, true},
		{"member cannot review", "member-1", ObjectProof, ActionProofReview, false},
		{"member cannot view treasury", "member-1", ObjectTreasury, ActionTreasuryView, false},
		{"unknown user is a member", "ghost", ObjectTicket, ActionTicketView, true},
		{"unknown user cannot purge", "ghost", ObjectTicket, ActionTicketPurge, false},
		{"system syncs groups", "system", ObjectGroup, ActionGroupSync, true},
		{"system cannot review", "system", ObjectProof, ActionProofReview, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tt.actor, tt.object, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
			assert.ErrorIs(t, err, paymentdomain.ErrForbidden)
		})
	}

	assert.Equal(t, int64(4), testutil.Count(t, db, "audit_logs", "action = ?", "authorization.denied"))
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, db := newTestService(t)
	testutil.SeedProfile(t, db, "u1", "Carla", "member")
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "u1", ObjectTreasury, ActionTreasuryView), ErrForbidden)

	require.NoError(t, db.Exec(`UPDATE profiles SET role = 'admin' WHERE id = ?`, "u1").Error)
	assert.NoError(t, svc.Authorize(ctx, "u1", ObjectTreasury, ActionTreasuryView))

	require.NoError(t, db.Exec(`UPDATE profiles SET role = 'member' WHERE id = ?`, "u1").Error)
	assert.ErrorIs(t, svc.Authorize(ctx, "u1", ObjectTreasury, ActionTreasuryView), ErrForbidden)
}

func TestAuthorizeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", ObjectProof, ActionProofView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "u1", "", ActionProofView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "u1", ObjectProof, ""), ErrInvalidAction)
}
