package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const retryInterval = 50 * time.Millisecond

// RedisLocker holds each key with SET NX PX and a per-holder token, so a
// holder whose TTL lapsed cannot release somebody else's lock.
type RedisLocker struct {
	client  *redis.Client
	script  *redis.Script
	ttl     func() time.Duration
	timeout func() time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, timeout func() time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  client,
		script:  redis.NewScript(lockReleaseScript),
		ttl:     ttl,
		timeout: timeout,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	ttl := l.ttl()
	deadline := time.Now().Add(l.timeout())

	tokens := make(map[string]string, len(keys))
	releaseAll := func() {
		bg, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for key, token := range tokens {
			_ = l.Release(bg, key, token)
		}
	}

	for _, key := range keys {
		for {
			token, ok, err := l.TryLock(ctx, key, ttl)
			if err != nil {
				releaseAll()
				return nil, err
			}
			if ok {
				tokens[key] = token
				break
			}
			if time.Now().After(deadline) {
				releaseAll()
				return nil, ErrLockTimeout
			}
			select {
			case <-ctx.Done():
				releaseAll()
				return nil, ErrLockTimeout
			case <-time.After(retryInterval):
			}
		}
	}
	return releaseAll, nil
}
