package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const sweepLockKey = "grievance:escalation:sweep:lock"

// SweepLocker makes sure only one worker replica sweeps at a time
type SweepLocker interface {
	// TryLock returns a release func when the lock was taken, nil otherwise
	TryLock(ctx context.Context, ttl time.Duration) (release func(), err error)
}

// RedisLocker holds the sweep lock in Redis with SET NX and releases it only
// if the stored token is still ours.
type RedisLocker struct {
	Redis *redis.Client
	key   string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Redis: client, key: sweepLockKey}
}

func (l *RedisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ok, err := l.Redis.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return func() {
		// the sweep ctx may already be cancelled; release on a fresh one
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.Redis, []string{l.key}, token).Err()
	}, nil
}

// LocalLocker is used when Redis is not configured; it only prevents
// overlapping sweeps inside one process.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) TryLock(ctx context.Context, ttl time.Duration) (func(), error) {
	if !l.mu.TryLock() {
		return nil, nil
	}
	return l.mu.Unlock, nil
}

// NewRedisClient parses a redis:// URL and pings the server
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
