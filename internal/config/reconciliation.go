package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// OutflowCategory is the category of the synthetic rows emitted by cash settlements.
const OutflowCategory = "Saída de Caixa"

// ReconciliationPolicy carries the tunables of the reconciliation core.
type ReconciliationPolicy struct {
	OutflowCategory    string        `mapstructure:"outflowCategory"`
	PrecisionTolerance float64       `mapstructure:"precisionTolerance"`
	TicketValidityDays int           `mapstructure:"ticketValidityDays"`
	LockTimeout        time.Duration `mapstructure:"lockTimeout"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
	NotifyAdmins       bool          `mapstructure:"notifyAdmins"`
}

func DefaultReconciliationPolicy() ReconciliationPolicy {
	return ReconciliationPolicy{
		OutflowCategory:    OutflowCategory,
		PrecisionTolerance: 0.005,
		TicketValidityDays: 365,
		LockTimeout:        5 * time.Second,
		LockTTL:            30 * time.Second,
		NotifyAdmins:       false,
	}
}

// Tolerance returns the precision tolerance as a decimal.
func (p ReconciliationPolicy) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(p.PrecisionTolerance)
}

// TicketValidity is how long an issued ticket stays valid.
func (p ReconciliationPolicy) TicketValidity() time.Duration {
	return time.Duration(p.TicketValidityDays) * 24 * time.Hour
}

type PolicyHolder struct {
	current atomic.Value // holds ReconciliationPolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy ReconciliationPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	paths := []string{"/etc/duesledger", "."}
	if cfg.PolicyDir != "" {
		paths = append([]string{cfg.PolicyDir}, paths...)
	}
	return NewPolicyHolderFromPaths(log, paths...)
}

func NewPolicyHolderFromPaths(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.reconciliation")

	v := viper.New()
	v.SetConfigName("reconciliation")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("DUESLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconciliationPolicy()
	v.SetDefault("reconciliation.outflowCategory", defaults.OutflowCategory)
	v.SetDefault("reconciliation.precisionTolerance", defaults.PrecisionTolerance)
	v.SetDefault("reconciliation.ticketValidityDays", defaults.TicketValidityDays)
	v.SetDefault("reconciliation.lockTimeout", defaults.LockTimeout)
	v.SetDefault("reconciliation.lockTTL", defaults.LockTTL)
	v.SetDefault("reconciliation.notifyAdmins", defaults.NotifyAdmins)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodePolicy goes through AllSettings so defaults fill keys missing from the file.
func decodePolicy(v *viper.Viper) (ReconciliationPolicy, error) {
	var wrapper struct {
		Reconciliation ReconciliationPolicy `mapstructure:"reconciliation"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ReconciliationPolicy{}, err
	}
	return wrapper.Reconciliation, nil
}

func (h *PolicyHolder) Get() ReconciliationPolicy {
	return h.current.Load().(ReconciliationPolicy)
}

func validatePolicy(p ReconciliationPolicy) error {
	if strings.TrimSpace(p.OutflowCategory) == "" {
		return errors.New("reconciliation.outflowCategory cannot be empty")
	}
	if p.PrecisionTolerance < 0 || p.PrecisionTolerance >= 0.01 {
		return errors.New("reconciliation.precisionTolerance must be within [0, 0.01)")
	}
	if p.TicketValidityDays <= 0 {
		return errors.New("reconciliation.ticketValidityDays must be positive")
	}
	if p.LockTimeout <= 0 || p.LockTTL <= 0 {
		return errors.New("reconciliation lock durations must be positive")
	}
	return nil
}
