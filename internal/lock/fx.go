package lock

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/duesledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

func NewLocker(lc fx.Lifecycle, cfg config.Config, policy *config.PolicyHolder, log *zap.Logger) Locker {
	timeout := func() time.Duration { return policy.Get().LockTimeout }
	ttl := func() time.Duration { return policy.Get().LockTTL }

	if cfg.RedisAddr == "" {
		log.Info("using in-process ledger locks")
		return NewLocalLocker(timeout)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis ledger locks", zap.String("addr", cfg.RedisAddr))
	return NewRedisLocker(client, ttl, timeout)
}
