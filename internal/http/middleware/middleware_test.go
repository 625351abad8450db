package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetRequestID(c))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	generated := resp.Header.Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestLogger_RecordsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := fiber.New()
	app.Use(RequestID(), Logger(zap.New(core)))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusServiceUnavailable, "down") })

	_, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ok", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/fail", nil))
	require.NoError(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "request", entries[0].Message)
	assert.Equal(t, int64(fiber.StatusNoContent), entries[0].ContextMap()["status"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, "request error", entries[1].Message)
	assert.Equal(t, int64(fiber.StatusServiceUnavailable), entries[1].ContextMap()["status"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	app := fiber.New()
	app.Use(Recovery(zap.New(core)))
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestCORS_Preflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS())
	app.Post("/", func(c *fiber.Ctx) error { return c.SendString("created") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodOptions, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestRateLimit_MemoryCounter(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(NewMemoryCounter(time.Minute), RateLimitConfig{MaxRequests: 2, Window: time.Minute}, zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, codes)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis unreachable")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(brokenCounter{}, RateLimitConfig{MaxRequests: 1, Window: time.Minute}, zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	c := NewMemoryCounter(time.Minute)
	ctx := context.Background()

	n, err := c.Incr(ctx, "ip", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Incr(ctx, "ip", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	time.Sleep(30 * time.Millisecond)
	n, err = c.Incr(ctx, "ip", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	c := NewMemoryCounter(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Incr(context.Background(), "ip", time.Minute)
		}()
	}
	wg.Wait()

	n, err := c.Incr(context.Background(), "ip", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}
