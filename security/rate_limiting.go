package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed one-minute window counter per client and scope.
type RateLimiter struct {
	redis   redis.Cmdable
	limit   int64
	window  time.Duration
	logger  *slog.Logger
	KeyFunc func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:   redisClient,
		limit:   int64(perMinute),
		window:  time.Minute,
		logger:  logger,
		KeyFunc: func(e *core.RequestEvent) string { return e.RealIP() },
	}
}

// Allow counts one hit for client in scope. Redis errors let the request
// through; the store still enforces capacity.
func (r *RateLimiter) Allow(ctx context.Context, scope, client string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", scope, client)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	// NX leaves a running window alone and repairs a key whose first EXPIRE was lost.
	if err := r.redis.ExpireNX(ctx, key, r.window).Err(); err != nil {
		return count <= r.limit, err
	}
	return count <= r.limit, nil
}

// Middleware limits requests for one scope such as "reserve" or "checkin".
func (r *RateLimiter) Middleware(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if scope == "reserve" && isSuspiciousUserAgent(e.Request.UserAgent()) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		ok, err := r.Allow(e.Request.Context(), scope, r.KeyFunc(e))
		if err != nil {
			r.logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
		}
		if !ok {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	ua = strings.ToLower(ua)
	for _, pattern := range suspicious {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
