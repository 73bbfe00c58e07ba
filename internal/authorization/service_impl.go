package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	membershipdomain "github.com/smallbiznis/duesledger/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Members  membershipdomain.Source
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	members  membershipdomain.Source
	auditSvc auditdomain.Service
}

// NewEnforcer persists policies in casbin_rule through the gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer keeps policies in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.SyncedEnforcer
	if adapter == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		members:  p.Members,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	role, err := s.members.Role(ctx, actor)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("user:%s", actor), fmt.Sprintf("role:%s", strings.ToLower(string(role))), nil
}

// ensureGrouping keeps exactly one role link per subject so that a role
// change in profiles takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		ActorID:    actor,
		Action:     auditdomain.ActionAccessDenied,
		TargetType: auditdomain.TargetCapability,
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
	if err != nil {
		s.log.Warn("failed to audit denied access", zap.String("actor", actor), zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions
		{"role:member", ObjectCharge, ActionChargeView},
		{"role:member", ObjectProof, ActionProofSubmit},
		{"role:member", ObjectProof, ActionProofView},
		{"role:member", ObjectTicket, ActionTicketView},

		// Admin permissions
		{"role:admin", ObjectCharge, ActionChargeView},
		{"role:admin", ObjectCharge, ActionChargeViewAll},
		{"role:admin", ObjectCharge, ActionChargeCreate},
		{"role:admin", ObjectGroup, ActionGroupSync},
		{"role:admin", ObjectProof, ActionProofSubmit},
		{"role:admin", ObjectProof, ActionProofView},
		{"role:admin", ObjectProof, ActionProofViewAll},
		{"role:admin", ObjectProof, ActionProofReview},
		{"role:admin", ObjectTicket, ActionTicketView},
		{"role:admin", ObjectTicket, ActionTicketViewAll},
		{"role:admin", ObjectTicket, ActionTicketPurge},
		{"role:admin", ObjectTreasury, ActionTreasuryView},
		{"role:admin", ObjectExpense, ActionExpenseSettle},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (automation calling the core directly)
		{"role:system", ObjectCharge, ActionChargeView},
		{"role:system", ObjectCharge, ActionChargeViewAll},
		{"role:system", ObjectCharge, ActionChargeCreate},
		{"role:system", ObjectGroup, ActionGroupSync},
		{"role:system", ObjectTreasury, ActionTreasuryView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
