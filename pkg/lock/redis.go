package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"companion-chat/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica pointing at the same Redis.
// A lock expires after ttl if its holder dies without releasing it.
type RedisLocker struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	log           *logger.Logger
}

type RedisOptions struct {
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, opts RedisOptions, log *logger.Logger) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "companion-chat:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &RedisLocker{
		client:        client,
		prefix:        opts.Prefix,
		ttl:           opts.TTL,
		retryInterval: opts.RetryInterval,
		log:           log,
	}
}

// Lock polls SET NX until it wins or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				l.log.LogError(err, "Failed to release lock", "key", key)
			}
		})
	}, nil
}

// Ping checks the Redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
