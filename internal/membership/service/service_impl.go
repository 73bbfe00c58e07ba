package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/lock"
	"github.com/smallbiznis/duesledger/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	"github.com/smallbiznis/duesledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	proofdomain "github.com/smallbiznis/duesledger/internal/proof/domain"
	ticketdomain "github.com/smallbiznis/duesledger/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Source    domain.Source
	Payments  paymentdomain.Repository
	Proofs    proofdomain.Repository
	Tickets   ticketdomain.Repository
	Locker    lock.Locker
	Audit     auditdomain.Service
	Publisher notificationdomain.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	source    domain.Source
	payments  paymentdomain.Repository
	proofs    proofdomain.Repository
	tickets   ticketdomain.Repository
	locker    lock.Locker
	audit     auditdomain.Service
	publisher notificationdomain.Publisher
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("membership.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		source:    p.Source,
		payments:  p.Payments,
		proofs:    p.Proofs,
		tickets:   p.Tickets,
		locker:    p.Locker,
		audit:     p.Audit,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// Plan computes the sync diff without changing anything.
func (s *Service) Plan(ctx context.Context, req domain.SyncRequest) (domain.SyncPlan, error) {
	if err := s.validate(ctx, &req); err != nil {
		return domain.SyncPlan{}, err
	}
	members, err := s.members(ctx, req.GroupID)
	if err != nil {
		return domain.SyncPlan{}, err
	}
	plan, err := s.plan(ctx, s.db, req, members)
	if err != nil {
		return domain.SyncPlan{}, paymentdomain.External("plan sync", err)
	}
	return plan, nil
}

// Sync reconciles the rows of one group charge with the group's current
// membership. It holds the charge lock plus the payment lock of every row it
// rewrites, so it and approvals on those rows run one at a time. The diff
// is recomputed inside the transaction over rows read FOR UPDATE.
func (s *Service) Sync(ctx context.Context, req domain.SyncRequest) (domain.SyncResult, error) {
	if err := s.validate(ctx, &req); err != nil {
		return domain.SyncResult{}, err
	}

	release, err := s.locker.Acquire(ctx, lock.ChargeKey(req.GroupID, req.Charge))
	if err != nil {
		return domain.SyncResult{}, err
	}
	defer release()

	members, err := s.members(ctx, req.GroupID)
	if err != nil {
		return domain.SyncResult{}, err
	}

	draft, err := s.plan(ctx, s.db, req, members)
	if err != nil {
		return domain.SyncResult{}, paymentdomain.External("plan sync", err)
	}
	locked := draft.PaymentIDs()
	if len(locked) > 0 {
		keys := make([]string, len(locked))
		for i, id := range locked {
			keys[i] = lock.PaymentKey(id)
		}
		releaseRows, err := s.locker.Acquire(ctx, keys...)
		if err != nil {
			return domain.SyncResult{}, err
		}
		defer releaseRows()
	}

	var (
		result domain.SyncResult
		plan   domain.SyncPlan
		events []notificationdomain.Event
	)
	now := s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.payments.FindByIDsForUpdate(ctx, tx, locked); err != nil {
			return err
		}
		plan, err = s.plan(ctx, tx, req, members)
		if err != nil {
			return err
		}
		if !covered(plan.PaymentIDs(), locked) {
			return domain.ErrPlanChanged
		}
		if plan.RequiresConfirmation && !req.ConfirmSettledDetach {
			return domain.ErrConfirmationRequired
		}
		result.Preserved = plan.Preserved

		observation, err := s.observation(ctx, tx, req)
		if err != nil {
			return err
		}

		for _, r := range plan.Reintegrate {
			row, err := s.payments.FindByID(ctx, tx, r.PaymentID)
			if err != nil {
				return err
			}
			if row == nil {
				return paymentdomain.ErrPaymentNotFound
			}
			groupID := req.GroupID
			row.GroupID = &groupID
			row.Observation = domain.UntagObservation(row.Observation, req.GroupID)
			row.UpdatedAt = now
			if err := s.payments.UpdateGrouping(ctx, tx, row); err != nil {
				return err
			}
			result.Reintegrated++
			events = append(events, s.chargeEvent(r.MemberID, req.Charge))
		}

		rows := make([]*paymentdomain.Payment, 0, len(plan.Add))
		for _, member := range plan.Add {
			memberID, groupID := member, req.GroupID
			rows = append(rows, &paymentdomain.Payment{
				ID:          s.genID.Generate(),
				MemberID:    &memberID,
				GroupID:     &groupID,
				Category:    req.Charge.Category,
				Amount:      req.Charge.Amount,
				PaidAmount:  decimal.Zero,
				Status:      paymentdomain.StatusPending,
				DueDate:     req.Charge.DueDate,
				Observation: observation,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			events = append(events, s.chargeEvent(member, req.Charge))
		}
		if err := s.payments.BatchInsert(ctx, tx, rows); err != nil {
			return err
		}
		result.Added = len(rows)

		for _, r := range plan.Remove {
			if err := s.remove(ctx, tx, req, r, now); err != nil {
				return err
			}
			if r.Detach {
				result.Detached++
			} else {
				result.Deleted++
			}
		}
		result.Removed = result.Detached + result.Deleted
		return nil
	})
	if err != nil {
		return domain.SyncResult{}, paymentdomain.External("sync group charge", err)
	}

	s.log.Info("group charge synchronized",
		zap.String("group_id", req.GroupID),
		zap.String("charge", req.Charge.String()),
		zap.Int("added", result.Added),
		zap.Int("reintegrated", result.Reintegrated),
		zap.Int("detached", result.Detached),
		zap.Int("deleted", result.Deleted),
		zap.Int("preserved", result.Preserved),
	)
	s.metrics.RecordSyncChanges(ctx, "added", result.Added)
	s.metrics.RecordSyncChanges(ctx, "reintegrated", result.Reintegrated)
	s.metrics.RecordSyncChanges(ctx, "detached", result.Detached)
	s.metrics.RecordSyncChanges(ctx, "deleted", result.Deleted)

	s.publisher.Publish(ctx, events...)
	return result, nil
}

func (s *Service) validate(ctx context.Context, req *domain.SyncRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.GroupID == "" {
		return paymentdomain.ErrInvalidGroup
	}
	if err := req.Charge.Validate(); err != nil {
		return err
	}

	group, err := s.source.FindGroup(ctx, req.GroupID)
	if err != nil {
		return paymentdomain.External("find group", err)
	}
	if group == nil {
		return domain.ErrGroupNotFound
	}
	return nil
}

func (s *Service) members(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.source.Members(ctx, groupID)
	if err != nil {
		return nil, paymentdomain.External("list group members", err)
	}
	return members, nil
}

func covered(ids, locked []snowflake.ID) bool {
	held := make(map[snowflake.ID]struct{}, len(locked))
	for _, id := range locked {
		held[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := held[id]; !ok {
			return false
		}
	}
	return true
}

func (s *Service) plan(ctx context.Context, tx *gorm.DB, req domain.SyncRequest, members []string) (domain.SyncPlan, error) {
	plan := domain.SyncPlan{GroupID: req.GroupID}

	rows, err := s.payments.ListByCharge(ctx, tx, req.GroupID, req.Charge)
	if err != nil {
		return plan, err
	}
	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		existing[row.Member()] = struct{}{}
	}
	current := make(map[string]struct{}, len(members))
	for _, m := range members {
		current[m] = struct{}{}
	}

	for _, m := range members {
		if _, ok := existing[m]; ok {
			plan.Preserved++
			continue
		}
		orphan, err := s.findOrphan(ctx, tx, m, req)
		if err != nil {
			return plan, err
		}
		if orphan != nil {
			plan.Reintegrate = append(plan.Reintegrate, domain.Reintegration{PaymentID: orphan.ID, MemberID: m})
			continue
		}
		plan.Add = append(plan.Add, m)
	}

	var leaving []*paymentdomain.Payment
	for _, row := range rows {
		if _, ok := current[row.Member()]; !ok {
			leaving = append(leaving, row)
		}
	}
	if len(leaving) == 0 {
		return plan, nil
	}

	ids := make([]snowflake.ID, len(leaving))
	for i, row := range leaving {
		ids[i] = row.ID
	}
	counts, err := s.tickets.CountByPayments(ctx, tx, ids)
	if err != nil {
		return plan, err
	}
	for _, row := range leaving {
		plan.Remove = append(plan.Remove, domain.Removal{
			PaymentID: row.ID,
			MemberID:  row.Member(),
			Status:    row.Status,
			Detach:    counts[row.ID] > 0,
		})
		if row.Status == paymentdomain.StatusPaid {
			plan.RequiresConfirmation = true
		}
	}
	return plan, nil
}

// findOrphan returns the oldest detached row of member that left this group's charge.
func (s *Service) findOrphan(ctx context.Context, tx *gorm.DB, member string, req domain.SyncRequest) (*paymentdomain.Payment, error) {
	candidates, err := s.payments.ListDetached(ctx, tx, member, req.Charge)
	if err != nil {
		return nil, err
	}
	for _, row := range candidates {
		if domain.HasProvenance(row.Observation, req.GroupID) {
			return row, nil
		}
	}
	return nil, nil
}

func (s *Service) remove(ctx context.Context, tx *gorm.DB, req domain.SyncRequest, r domain.Removal, now time.Time) error {
	if r.Detach {
		row, err := s.payments.FindByID(ctx, tx, r.PaymentID)
		if err != nil {
			return err
		}
		if row == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		row.GroupID = nil
		row.Observation = domain.TagObservation(row.Observation, req.GroupID)
		row.UpdatedAt = now
		if err := s.payments.UpdateGrouping(ctx, tx, row); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			ActorID:    req.ActorID,
			Action:     auditdomain.ActionPaymentDetached,
			TargetType: auditdomain.TargetPayment,
			TargetID:   r.PaymentID.String(),
			Metadata: map[string]any{
				"group_id":  req.GroupID,
				"member_id": r.MemberID,
				"status":    string(r.Status),
			},
		})
	}

	proofs, err := s.proofs.DeleteUnapproved(ctx, tx, r.PaymentID)
	if err != nil {
		return err
	}
	if err := s.payments.Delete(ctx, tx, r.PaymentID); err != nil {
		return err
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		ActorID:    req.ActorID,
		Action:     auditdomain.ActionPaymentDeleted,
		TargetType: auditdomain.TargetPayment,
		TargetID:   r.PaymentID.String(),
		Metadata: map[string]any{
			"group_id":       req.GroupID,
			"member_id":      r.MemberID,
			"status":         string(r.Status),
			"proofs_deleted": proofs,
		},
	})
}

// observation copies the note of the charge's existing rows onto new ones.
func (s *Service) observation(ctx context.Context, tx *gorm.DB, req domain.SyncRequest) (string, error) {
	rows, err := s.payments.ListByCharge(ctx, tx, req.GroupID, req.Charge)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if note := domain.UntagObservation(row.Observation, req.GroupID); note != "" {
			return note, nil
		}
	}
	return "", nil
}

func (s *Service) chargeEvent(member string, key paymentdomain.ChargeKey) notificationdomain.Event {
	return notificationdomain.NewChargeEvent(member, key.Category, key.Amount, key.DueDate.String())
}
