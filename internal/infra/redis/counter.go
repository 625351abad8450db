package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterClient is the subset of redis.Cmdable the window counter needs.
type CounterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// WindowCounter counts hits per key in fixed windows shared by every replica.
type WindowCounter struct {
	client CounterClient
	prefix string
}

func NewWindowCounter(client CounterClient, prefix string) *WindowCounter {
	return &WindowCounter{client: client, prefix: prefix}
}

// Incr bumps key and returns the count in the current window. The first hit
// of a window starts its expiry.
func (c *WindowCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.prefix + ":" + key
	n, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr %s: %w", k, err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, k, window).Err(); err != nil {
			return n, fmt.Errorf("redis: expire %s: %w", k, err)
		}
	}
	return n, nil
}
