package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/lock"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	"github.com/smallbiznis/duesledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/proof/domain"
	reconciliationdomain "github.com/smallbiznis/duesledger/internal/reconciliation/domain"
	ticketdomain "github.com/smallbiznis/duesledger/internal/ticket/domain"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"github.com/smallbiznis/duesledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Policy         *config.PolicyHolder
	Repo           domain.Repository
	Payments       paymentdomain.Repository
	Tickets        ticketdomain.Repository
	Reconciliation reconciliationdomain.Service
	Locker         lock.Locker
	Audit          auditdomain.Service
	Publisher      notificationdomain.Publisher
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	policy         *config.PolicyHolder
	repo           domain.Repository
	payments       paymentdomain.Repository
	tickets        ticketdomain.Repository
	reconciliation reconciliationdomain.Service
	locker         lock.Locker
	audit          auditdomain.Service
	publisher      notificationdomain.Publisher
	metrics        *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("proof.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		policy:         p.Policy,
		repo:           p.Repo,
		payments:       p.Payments,
		tickets:        p.Tickets,
		reconciliation: p.Reconciliation,
		locker:         p.Locker,
		audit:          p.Audit,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
	}
}

// Submit records a pending proof against one or more payment rows.
func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Proof, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidSubmitter
	}
	amount := money.Round2(req.Amount)
	if !amount.IsPositive() {
		return nil, reconciliationdomain.ErrInvalidProofAmount
	}

	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	rows, err := s.payments.FindByIDs(ctx, s.db, targets)
	if err != nil {
		return nil, paymentdomain.External("load proof targets", err)
	}
	if len(rows) != len(targets) {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	outstanding := decimal.Zero
	for _, row := range rows {
		if row.Kind().Tag == paymentdomain.KindGeneralExpense || row.Status == paymentdomain.StatusExpense {
			return nil, domain.ErrTargetNotPayable
		}
		outstanding = outstanding.Add(row.Outstanding())
	}
	if !outstanding.IsPositive() {
		return nil, reconciliationdomain.ErrNothingOutstanding
	}
	if amount.GreaterThan(outstanding) {
		return nil, reconciliationdomain.ErrOverpayment
	}

	proof := &domain.Proof{
		ID:            s.genID.Generate(),
		PaymentID:     targets[0],
		UserID:        userID,
		ProofAmount:   amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Observation:   strings.TrimSpace(req.Observation),
		Status:        domain.StatusPending,
		SubmittedAt:   s.clock.Now(),
	}
	if image := strings.TrimSpace(req.ProofImage); image != "" {
		proof.ProofImage = &image
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, proof); err != nil {
			return err
		}
		if len(targets) == 1 {
			return nil
		}
		links := make([]domain.Target, len(targets))
		for i, id := range targets {
			links[i] = domain.Target{ProofID: proof.ID, PaymentID: id, Seq: i}
		}
		return s.repo.InsertTargets(ctx, tx, links)
	})
	if err != nil {
		return nil, paymentdomain.External("insert proof", err)
	}

	s.log.Info("proof submitted",
		zap.String("proof_id", proof.ID.String()),
		zap.String("user_id", userID),
		zap.Int("targets", len(targets)),
	)
	return proof, nil
}

func (s *Service) resolveTargets(ctx context.Context, req domain.SubmitRequest) ([]snowflake.ID, error) {
	groupID := strings.TrimSpace(req.GroupID)
	byCharge := groupID != "" || req.Charge != nil

	if len(req.PaymentIDs) > 0 && byCharge {
		return nil, domain.ErrAmbiguousTargets
	}
	if !byCharge {
		return dedupe(req.PaymentIDs)
	}
	if groupID == "" || req.Charge == nil {
		return nil, domain.ErrNoTargets
	}

	charge, err := s.reconciliation.GetGroupCharge(ctx, groupID, *req.Charge)
	if err != nil {
		return nil, err
	}
	rows := charge.OutstandingRows()
	if len(rows) == 0 {
		return nil, reconciliationdomain.ErrNothingOutstanding
	}
	ids := make([]snowflake.ID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// Approve settles a pending proof. The proof, every targeted row and the
// tickets change in one transaction; the payer is notified after commit.
func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (*domain.ApproveResult, error) {
	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		return nil, domain.ErrInvalidReviewer
	}

	proof, err := s.Get(ctx, req.ProofID)
	if err != nil {
		return nil, err
	}
	if !proof.Status.CanTransition(domain.StatusApproved) {
		return nil, domain.ErrInvalidTransition
	}
	targets, err := s.repo.Targets(ctx, s.db, proof)
	if err != nil {
		return nil, paymentdomain.External("load proof targets", err)
	}

	keys := make([]string, len(targets))
	for i, id := range targets {
		keys[i] = lock.PaymentKey(id)
	}
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer release()

	policy := s.policy.Get()
	now := s.clock.Now()
	result := &domain.ApproveResult{}
	var rows []*paymentdomain.Payment

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err = s.payments.FindByIDsForUpdate(ctx, tx, targets)
		if err != nil {
			return err
		}
		if len(rows) != len(targets) {
			return paymentdomain.ErrPaymentNotFound
		}

		outstanding := make([]decimal.Decimal, len(rows))
		for i, row := range rows {
			outstanding[i] = row.Outstanding()
		}
		allocations, err := s.reconciliation.Allocate(proof.ProofAmount, outstanding)
		if err != nil {
			return err
		}

		proof.Status = domain.StatusApproved
		proof.ReviewedAt = &now
		proof.ReviewedBy = &reviewer
		ok, err := s.repo.MarkReviewed(ctx, tx, proof)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		for i, row := range rows {
			alloc := allocations[i]
			entry := domain.Allocation{
				PaymentID:  row.ID,
				MemberID:   row.Member(),
				Amount:     alloc,
				PaidAmount: row.PaidAmount,
				Status:     row.Status,
			}
			if !alloc.IsPositive() {
				result.Allocations = append(result.Allocations, entry)
				continue
			}

			newPaid := money.Min(row.Amount, row.PaidAmount.Add(alloc))
			updated, err := paymentdomain.ApplyPaid(*row, newPaid, now)
			if err != nil {
				return err
			}
			if err := s.payments.UpdateSettlement(ctx, tx, &updated); err != nil {
				return err
			}
			*row = updated

			fullyPaid := updated.Status == paymentdomain.StatusPaid
			ticket := &ticketdomain.Ticket{
				ID:            s.genID.Generate(),
				Code:          ticketdomain.NewCode(now),
				PaymentID:     row.ID,
				ProofID:       proof.ID,
				UserID:        proof.UserID,
				Amount:        alloc,
				PaymentStatus: ticketdomain.SnapshotFor(fullyPaid),
				ApprovedBy:    reviewer,
				ApprovedAt:    now,
				ExpiresAt:     now.Add(policy.TicketValidity()),
				ProofImage:    proof.ProofImage,
				CreatedAt:     now,
			}
			if err := s.tickets.Insert(ctx, tx, ticket); err != nil {
				return err
			}

			entry.PaidAmount = updated.PaidAmount
			entry.Status = updated.Status
			entry.FullyPaid = fullyPaid
			entry.TicketID = ticket.ID
			entry.TicketCode = ticket.Code
			result.Allocations = append(result.Allocations, entry)
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:    reviewer,
			Action:     auditdomain.ActionProofApproved,
			TargetType: auditdomain.TargetProof,
			TargetID:   proof.ID.String(),
			Metadata: map[string]any{
				"amount":  proof.ProofAmount.StringFixed(money.Places),
				"targets": len(targets),
			},
		})
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrPrecision) {
			s.log.Warn("approval refused by precision check", zap.String("proof_id", proof.ID.String()), zap.Error(err))
		}
		return nil, paymentdomain.External("approve proof", err)
	}

	result.Proof = proof
	s.afterApprove(ctx, proof, rows, result)
	return result, nil
}

func (s *Service) afterApprove(ctx context.Context, proof *domain.Proof, rows []*paymentdomain.Payment, result *domain.ApproveResult) {
	s.metrics.RecordProofReview(ctx, string(domain.StatusApproved))

	fullyPaid := true
	remaining := decimal.Zero
	for _, a := range result.Allocations {
		if a.TicketID != 0 {
			s.metrics.RecordTicketIssued(ctx, string(a.Status))
		}
	}
	for _, row := range rows {
		remaining = remaining.Add(row.Outstanding())
		if row.Status != paymentdomain.StatusPaid {
			fullyPaid = false
		}
	}

	s.log.Info("proof approved",
		zap.String("proof_id", proof.ID.String()),
		zap.String("amount", proof.ProofAmount.StringFixed(money.Places)),
		zap.Int("rows", len(rows)),
		zap.Bool("fully_paid", fullyPaid),
	)

	category := ""
	if len(rows) > 0 {
		category = rows[0].Category
	}
	s.publisher.Publish(ctx, notificationdomain.ApprovedEvent(proof.UserID, category, proof.ProofAmount, remaining, fullyPaid))
}

// Reject closes a pending proof without touching the ledger.
func (s *Service) Reject(ctx context.Context, req domain.RejectRequest) (*domain.Proof, error) {
	reviewer := strings.TrimSpace(req.ReviewerID)
	if reviewer == "" {
		return nil, domain.ErrInvalidReviewer
	}
	if !req.Reason.Valid() {
		return nil, domain.ErrInvalidReason
	}

	proof, err := s.Get(ctx, req.ProofID)
	if err != nil {
		return nil, err
	}
	if !proof.Status.CanTransition(domain.StatusRejected) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	reason := req.Reason
	proof.Status = domain.StatusRejected
	proof.RejectionReason = &reason
	proof.ReviewedAt = &now
	proof.ReviewedBy = &reviewer
	if note := strings.TrimSpace(req.Note); note != "" {
		proof.RejectionNote = &note
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkReviewed(ctx, tx, proof)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:    reviewer,
			Action:     auditdomain.ActionProofRejected,
			TargetType: auditdomain.TargetProof,
			TargetID:   proof.ID.String(),
			Metadata:   map[string]any{"reason": string(reason)},
		})
	})
	if err != nil {
		return nil, paymentdomain.External("reject proof", err)
	}

	s.metrics.RecordProofReview(ctx, string(domain.StatusRejected))
	note := ""
	if proof.RejectionNote != nil {
		note = *proof.RejectionNote
	}
	s.publisher.Publish(ctx, notificationdomain.RejectedEvent(proof.UserID, reason.Label(), note))
	return proof, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Proof, error) {
	if id == 0 {
		return nil, domain.ErrProofNotFound
	}
	proof, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, paymentdomain.External("find proof", err)
	}
	if proof == nil {
		return nil, domain.ErrProofNotFound
	}
	return proof, nil
}

func (s *Service) ListPending(ctx context.Context, req domain.ListPendingRequest) (domain.ListPendingResponse, error) {
	cursor, err := pagination.ParseToken(req.PageToken)
	if err != nil {
		return domain.ListPendingResponse{}, domain.ErrInvalidPageToken
	}
	limit := req.Limit()

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status: domain.StatusPending,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return domain.ListPendingResponse{}, paymentdomain.External("list pending proofs", err)
	}

	items, pageInfo := pagination.Page(items, limit, func(p *domain.Proof) (snowflake.ID, time.Time) {
		return p.ID, p.SubmittedAt
	})
	proofs := make([]domain.Proof, 0, len(items))
	for _, item := range items {
		proofs = append(proofs, *item)
	}
	return domain.ListPendingResponse{PageInfo: pageInfo, Proofs: proofs}, nil
}

func dedupe(ids []snowflake.ID) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, domain.ErrNoTargets
	}
	return out, nil
}
