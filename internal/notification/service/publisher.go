package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/notification/domain"
	"github.com/smallbiznis/duesledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Sink    domain.Sink
	Roles   domain.RoleResolver
	Policy  *config.PolicyHolder `optional:"true"`
	Metrics *metrics.Metrics     `optional:"true"`
}

type Publisher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	sink    domain.Sink
	roles   domain.RoleResolver
	policy  *config.PolicyHolder
	metrics *metrics.Metrics
}

func NewPublisher(p Params) domain.Publisher {
	return &Publisher{
		db:      p.DB,
		log:     p.Log.Named("notification.publisher"),
		genID:   p.GenID,
		clock:   p.Clock,
		sink:    p.Sink,
		roles:   p.Roles,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// Publish inserts one notification per event outside any ledger transaction.
// Admin recipients are skipped unless the policy says otherwise.
func (s *Publisher) Publish(ctx context.Context, events ...domain.Event) {
	for _, event := range events {
		userID := strings.TrimSpace(event.UserID)
		if userID == "" {
			continue
		}
		if s.skipRecipient(ctx, userID) {
			continue
		}

		n := domain.Notification{
			ID:        s.genID.Generate(),
			UserID:    userID,
			Title:     event.Title,
			Message:   event.Message,
			Type:      event.Type,
			Metadata:  datatypes.JSONMap(event.Metadata),
			CreatedAt: s.clock.Now(),
		}
		if err := s.sink.Insert(ctx, s.db, &n); err != nil {
			s.log.Warn("failed to insert notification",
				zap.String("user_id", userID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
			s.metrics.RecordNotificationFailed(ctx, event.Type)
		}
	}
}

func (s *Publisher) skipRecipient(ctx context.Context, userID string) bool {
	if s.policy != nil && s.policy.Get().NotifyAdmins {
		return false
	}
	admin, err := s.roles.IsAdmin(ctx, userID)
	if err != nil {
		// unknown role: deliver rather than drop
		s.log.Warn("failed to resolve recipient role", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return admin
}
