package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/lead-service/pkg/util"
)

const keyPrefix = "ratelimit"

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// FixedWindow counts hits per key in Redis using INCR with a window expiry.
type FixedWindow struct {
	client *redis.Client
	scope  string
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// NewFixedWindow builds a limiter. A nil client disables limiting.
func NewFixedWindow(client *redis.Client, scope string, limit int, window time.Duration, logger *zap.Logger) *FixedWindow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixedWindow{
		client: client,
		scope:  scope,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}
}

func (l *FixedWindow) key(subject string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, l.scope, subject)
}

// Allow registers one hit for subject.
func (l *FixedWindow) Allow(ctx context.Context, subject string) (Decision, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := l.key(subject)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return Decision{Allowed: true, Count: count}, err
		}
	}
	if count <= l.limit {
		return Decision{Allowed: true, Count: count}, nil
	}

	retry, err := l.client.TTL(ctx, key).Result()
	if err != nil || retry <= 0 {
		// A key left without expiry would block the subject forever.
		_ = l.client.Expire(ctx, key, l.window).Err()
		retry = l.window
	}
	return Decision{Allowed: false, Count: count, RetryAfter: retry}, nil
}

// Middleware rejects callers over the limit with 429. Redis failures let the request through.
func (l *FixedWindow) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		decision, err := l.Allow(c.UserContext(), c.IP())
		if err != nil {
			l.logger.Warn("rate limiter unavailable; allowing request", zap.String("ip", c.IP()), zap.Error(err))
			return c.Next()
		}
		if !decision.Allowed {
			seconds := int((decision.RetryAfter + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
			return apperrors.NewRateLimited(seconds)
		}
		return c.Next()
	}
}
