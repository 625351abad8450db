package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultSweepLockKey = "ephemurl:reclaim:lock"
	defaultSweepLockTTL = 30 * time.Second
	releaseTimeout      = 2 * time.Second
)

// Deletes the lock only while it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// LockClient is the subset of redis.Cmdable the sweep lock needs.
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// SweepLock is a SET NX lease keeping concurrent replicas from sweeping at once.
// A lease left behind by a crashed holder expires after its TTL.
type SweepLock struct {
	client LockClient
	key    string
	owner  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewSweepLock returns a lock identified by owner, which must be unique per replica.
func NewSweepLock(client LockClient, owner string, ttl time.Duration, logger *zap.Logger) *SweepLock {
	if ttl <= 0 {
		ttl = defaultSweepLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepLock{client: client, key: DefaultSweepLockKey, owner: owner, ttl: ttl, logger: logger}
}

// TryAcquire takes the lease without waiting.
func (l *SweepLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.release, true, nil
}

func (l *SweepLock) release() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.owner).Err(); err != nil {
		l.logger.Warn("failed to release sweep lock", zap.String("key", l.key), zap.Error(err))
	}
}
