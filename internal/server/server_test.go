package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/lock"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	proofdomain "github.com/smallbiznis/duesledger/internal/proof/domain"
	treasurydomain "github.com/smallbiznis/duesledger/internal/treasury/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuthz struct {
	admins map[string]bool
}

func (f *fakeAuthz) Authorize(_ context.Context, actor, object, action string) error {
	if f.admins[actor] {
		return nil
	}
	switch action {
	case authorization.ActionProofSubmit, authorization.ActionProofView,
		authorization.ActionChargeView, authorization.ActionTicketView:
		return nil
	}
	return authorization.ErrForbidden
}

type fakeProofs struct {
	proofdomain.Service
	approveErr error
	approved   []proofdomain.ApproveRequest
	submitted  []proofdomain.SubmitRequest
}

func (f *fakeProofs) Approve(_ context.Context, req proofdomain.ApproveRequest) (*proofdomain.ApproveResult, error) {
	f.approved = append(f.approved, req)
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &proofdomain.ApproveResult{
		Proof: &proofdomain.Proof{ID: req.ProofID, Status: proofdomain.StatusApproved},
	}, nil
}

func (f *fakeProofs) Submit(_ context.Context, req proofdomain.SubmitRequest) (*proofdomain.Proof, error) {
	f.submitted = append(f.submitted, req)
	return &proofdomain.Proof{ID: 7, UserID: req.UserID, ProofAmount: req.Amount, Status: proofdomain.StatusPending}, nil
}

func (f *fakeProofs) Get(_ context.Context, id snowflake.ID) (*proofdomain.Proof, error) {
	return &proofdomain.Proof{ID: id, UserID: "owner"}, nil
}

type fakeTreasury struct {
	treasurydomain.Service
	settleErr error
}

func (f *fakeTreasury) SettleExpense(_ context.Context, req treasurydomain.SettleExpenseRequest) (*treasurydomain.SettleExpenseResult, error) {
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return &treasurydomain.SettleExpenseResult{Available: decimal.NewFromInt(10)}, nil
}

type fakeMembership struct {
	membershipdomain.Service
	syncErr error
}

func (f *fakeMembership) Sync(_ context.Context, req membershipdomain.SyncRequest) (membershipdomain.SyncResult, error) {
	return membershipdomain.SyncResult{}, f.syncErr
}

type testServer struct {
	engine     *gin.Engine
	proofs     *fakeProofs
	treasury   *fakeTreasury
	membership *fakeMembership
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	proofs := &fakeProofs{}
	treasury := &fakeTreasury{}
	membership := &fakeMembership{}
	srv := NewServer(ServerParams{
		Gin:           NewEngine(),
		Log:           zap.NewNop(),
		AuthzSvc:      &fakeAuthz{admins: map[string]bool{"admin": true}},
		ProofSvc:      proofs,
		TreasurySvc:   treasury,
		MembershipSvc: membership,
	})
	return testServer{engine: srv.Engine(), proofs: proofs, treasury: treasury, membership: membership}
}

func (ts testServer) do(t *testing.T, method, path, actor string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(HeaderActorID, actor)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	}
	return rec, payload
}

func errorCode(payload map[string]any) string {
	errPayload, _ := payload["error"].(map[string]any)
	code, _ := errPayload["code"].(string)
	return code
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/v1/proofs/1/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.proofs.approved)
}

func TestMemberCannotApprove(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodPost, "/v1/proofs/1/approve", "member", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(payload))
	assert.Empty(t, ts.proofs.approved)
}

func TestAdminApprovesWithActorAsReviewer(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/v1/proofs/42/approve", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.proofs.approved, 1)
	assert.Equal(t, snowflake.ID(42), ts.proofs.approved[0].ProofID)
	assert.Equal(t, "admin", ts.proofs.approved[0].ReviewerID)
}

func TestSubmitProofUsesActorAsSubmitter(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/v1/proofs", "member", map[string]any{
		"payment_ids": []string{"11", "12"},
		"amount":      "60,50",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.proofs.submitted, 1)
	got := ts.proofs.submitted[0]
	assert.Equal(t, "member", got.UserID)
	assert.Equal(t, []snowflake.ID{11, 12}, got.PaymentIDs)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("60.50")))
}

func TestSubmitProofRejectsMalformedAmount(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/v1/proofs", "member", map[string]any{
		"payment_ids": []string{"11"},
		"amount":      "abc",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.proofs.submitted)
}

func TestGetProofOfAnotherMemberIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/v1/proofs/5", "member", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/v1/proofs/5", "owner", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient cash", treasurydomain.ErrInsufficientCash, http.StatusUnprocessableEntity, "insufficient_cash"},
		{"validation", paymentdomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"precision", paymentdomain.NewPrecision("drift"), http.StatusBadRequest, "precision_drift"},
		{"not found", paymentdomain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
		{"confirmation", membershipdomain.ErrConfirmationRequired, http.StatusConflict, "confirmation_required"},
		{"transition", proofdomain.ErrInvalidTransition, http.StatusConflict, "invalid_proof_transition"},
		{"lock timeout", lock.ErrLockTimeout, http.StatusConflict, "lock_timeout"},
		{"store failure", paymentdomain.External("load", errors.New("conn refused")), http.StatusServiceUnavailable, ""},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, payload.Code)
		})
	}
}

func TestSettleExpenseInsufficientCash(t *testing.T) {
	ts := newTestServer(t)
	ts.treasury.settleErr = treasurydomain.ErrInsufficientCash

	rec, payload := ts.do(t, http.MethodPost, "/v1/expenses/9/settle", "admin", map[string]any{"source": "cash"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_cash", errorCode(payload))
}

func TestSyncRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t)
	ts.membership.syncErr = membershipdomain.ErrConfirmationRequired

	rec, payload := ts.do(t, http.MethodPost, "/v1/groups/g1/sync", "admin", map[string]any{
		"category": "Mensalidade",
		"amount":   "40",
		"due_date": "2024-05-10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "confirmation_required", errorCode(payload))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, payload := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])
}
