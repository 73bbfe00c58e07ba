package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/lock"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/pkg/money"
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
	Repo      paymentdomain.Repository
	Members   membershipdomain.Source
	Locker    lock.Locker
	Publisher notificationdomain.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      paymentdomain.Repository
	members   membershipdomain.Source
	locker    lock.Locker
	publisher notificationdomain.Publisher
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		members:   p.Members,
		locker:    p.Locker,
		publisher: p.Publisher,
	}
}

func (s *Service) CreateCharge(ctx context.Context, req paymentdomain.CreateChargeRequest) (*paymentdomain.Payment, error) {
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		return nil, paymentdomain.ErrInvalidMember
	}
	key, err := chargeKey(req.Category, req.Amount, req.DueDate)
	if err != nil {
		return nil, err
	}

	row := s.newRow(key, &memberID, nil, req.Observation)
	if err := row.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		return nil, paymentdomain.External("insert charge", err)
	}

	s.publisher.Publish(ctx, notificationdomain.NewChargeEvent(memberID, key.Category, key.Amount, key.DueDate.String()))
	return row, nil
}

// CreateGroupCharge fans a charge out to every current member of the group.
func (s *Service) CreateGroupCharge(ctx context.Context, req paymentdomain.CreateGroupChargeRequest) ([]*paymentdomain.Payment, error) {
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		return nil, paymentdomain.ErrInvalidGroup
	}
	key, err := chargeKey(req.Category, req.Amount, req.DueDate)
	if err != nil {
		return nil, err
	}

	group, err := s.members.FindGroup(ctx, groupID)
	if err != nil {
		return nil, paymentdomain.External("find group", err)
	}
	if group == nil {
		return nil, membershipdomain.ErrGroupNotFound
	}

	// Same key as group sync, so the existence check and the insert see a stable charge.
	release, err := s.locker.Acquire(ctx, lock.ChargeKey(groupID, key))
	if err != nil {
		return nil, err
	}
	defer release()

	members, err := s.members.Members(ctx, groupID)
	if err != nil {
		return nil, paymentdomain.External("list group members", err)
	}
	if len(members) == 0 {
		return nil, paymentdomain.ErrEmptyGroup
	}

	rows := make([]*paymentdomain.Payment, 0, len(members))
	for _, member := range members {
		memberID := member
		rows = append(rows, s.newRow(key, &memberID, &groupID, req.Observation))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListByCharge(ctx, tx, groupID, key)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return paymentdomain.ErrChargeExists
		}
		return s.repo.BatchInsert(ctx, tx, rows)
	})
	if err != nil {
		return nil, paymentdomain.External("create group charge", err)
	}

	s.log.Info("group charge created",
		zap.String("group_id", groupID),
		zap.String("charge", key.String()),
		zap.Int("members", len(rows)),
	)

	events := make([]notificationdomain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, notificationdomain.NewChargeEvent(row.Member(), key.Category, key.Amount, key.DueDate.String()))
	}
	s.publisher.Publish(ctx, events...)
	return rows, nil
}

// CreateExpense records a general expense awaiting settlement by the treasury.
func (s *Service) CreateExpense(ctx context.Context, req paymentdomain.CreateExpenseRequest) (*paymentdomain.Payment, error) {
	key, err := chargeKey(req.Category, req.Amount, req.DueDate)
	if err != nil {
		return nil, err
	}
	row := s.newRow(key, nil, nil, req.Observation)
	if err := row.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		return nil, paymentdomain.External("insert expense", err)
	}
	return row, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	if id == 0 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	row, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, paymentdomain.External("find payment", err)
	}
	if row == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return row, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID string) ([]*paymentdomain.Payment, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, paymentdomain.ErrInvalidMember
	}
	rows, err := s.repo.List(ctx, s.db, paymentdomain.ListFilter{MemberID: memberID})
	if err != nil {
		return nil, paymentdomain.External("list member payments", err)
	}
	return rows, nil
}

func (s *Service) newRow(key paymentdomain.ChargeKey, memberID, groupID *string, observation string) *paymentdomain.Payment {
	now := s.clock.Now()
	return &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		MemberID:    memberID,
		GroupID:     groupID,
		Category:    key.Category,
		Amount:      key.Amount,
		PaidAmount:  decimal.Zero,
		Status:      paymentdomain.StatusPending,
		DueDate:     key.DueDate,
		Observation: strings.TrimSpace(observation),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func chargeKey(category string, amount decimal.Decimal, dueDate string) (paymentdomain.ChargeKey, error) {
	date, err := paymentdomain.ParseDate(dueDate)
	if err != nil {
		return paymentdomain.ChargeKey{}, err
	}
	key := paymentdomain.ChargeKey{
		Category: strings.TrimSpace(category),
		Amount:   money.Round2(amount),
		DueDate:  date,
	}
	if err := key.Validate(); err != nil {
		return paymentdomain.ChargeKey{}, err
	}
	return key, nil
}
