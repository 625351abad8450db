package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const defaultCounterTimeout = 200 * time.Millisecond

// Counter counts hits per key within a fixed window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	Timeout     time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 100,
		Window:      time.Minute,
		Timeout:     defaultCounterTimeout,
	}
}

// RateLimit limits requests per client IP. When the counter fails the request
// is let through.
func RateLimit(counter Counter, config RateLimitConfig, logger *zap.Logger) fiber.Handler {
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultRateLimitConfig().MaxRequests
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitConfig().Window
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultCounterTimeout
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), config.Timeout)
		defer cancel()

		result, err := counter.Incr(ctx, c.IP(), config.Window)
		if err != nil {
			logger.Error("rate limit counter error", zap.Error(err))
			return c.Next()
		}

		remaining := config.MaxRequests - int(result)
		c.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, remaining)))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if result > int64(config.MaxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded",
			})
		}

		return c.Next()
	}
}

// MemoryCounter is a process-local Counter for single-replica deployments.
type MemoryCounter struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	return &MemoryCounter{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Add fails while the window's item is still live.
	if err := m.cache.Add(key, int64(1), window); err == nil {
		return 1, nil
	}
	n, err := m.cache.IncrementInt64(key, 1)
	if err != nil {
		// Expired between Add and Increment but not yet evicted.
		m.cache.Set(key, int64(1), window)
		return 1, nil
	}
	return n, nil
}
