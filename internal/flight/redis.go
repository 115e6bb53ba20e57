package flight

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Only the holder may delete the key.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisGuard shares in-flight state between replicas. The TTL bounds how long
// a crashed holder can block a record.
type RedisGuard struct {
	client redisClient
	ttl    time.Duration
	logger logger.ZapLogger
}

func NewRedisGuard(client redisClient, ttl time.Duration, log logger.ZapLogger) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl, logger: log}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}

	releaseCtx := context.WithoutCancel(ctx)
	return func() {
		if err := g.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			g.logger.Warn("failed to release in-flight key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
