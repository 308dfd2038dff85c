package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/lead-service/pkg/util"
)

func newLimiter(t *testing.T, limit int) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewFixedWindow(client, "leads", limit, time.Minute, nil), mr
}

func TestAllowCountsWithinWindow(t *testing.T) {
	limiter, mr := newLimiter(t, 2)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(i), d.Count)
	}

	d, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	mr.FastForward(time.Minute + time.Second)
	d, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestNilClientAlwaysAllows(t *testing.T) {
	limiter := NewFixedWindow(nil, "leads", 1, time.Minute, nil)
	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(context.Background(), "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func testApp(limiter *FixedWindow) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Post("/leads", limiter.Middleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter, _ := newLimiter(t, 1)
	app := testApp(limiter)

	resp, err := app.Test(httptest.NewRequest("POST", "/leads", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/leads", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter, mr := newLimiter(t, 1)
	mr.Close()
	app := testApp(limiter)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/leads", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
}
