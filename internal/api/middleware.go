package api

import (
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request once the handler chain has run,
// so the user set by the auth middleware is included.
func RequestLogger(logger *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		kv := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
			"ip", c.IP(),
		}
		if uid := auth.UserID(c); uid != "" {
			kv = append(kv, "user_id", uid)
		}
		if err != nil {
			logger.Errorw("request failed", append(kv, "err", err)...)
			return err
		}
		logger.Infow("request", kv...)
		return nil
	}
}

// RateLimiter is a fixed-window request counter kept in redis, so the
// limit holds across replicas.
type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
	log    *zap.SugaredLogger
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window, log: log}
}

// MiddlewareByKey counts requests per keyFunc(c). A redis failure lets the
// request through.
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		redisKey := fmt.Sprintf("%s:rl:%s", r.Prefix, keyFunc(c))
		count, err := r.Redis.Incr(ctx, redisKey).Result()
		if err != nil {
			r.log.Warnw("rate limiter unavailable", "key", redisKey, "err", err)
			return c.Next()
		}
		if count == 1 {
			r.Redis.Expire(ctx, redisKey, r.Window)
		}
		if count > int64(r.Limit) {
			return utils.JSONError(c, fiber.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		}
		return c.Next()
	}
}

// ByUser keys the limiter on the authenticated user, falling back to ip.
func ByUser(c *fiber.Ctx) string {
	if uid := auth.UserID(c); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.IP()
}
