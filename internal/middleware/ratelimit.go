package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kirubashankar/tools-api/pkg/response"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window redis counter. There is no auth principal in
// this API, so windows are keyed by client IP.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())
		ctx := context.Background()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// MergeLimit returns a rate limiter for merge job creation
func (rl *RateLimiter) MergeLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("merge", maxPerHour, time.Hour)
}

// ValidateLimit returns a rate limiter for validation endpoints
func (rl *RateLimiter) ValidateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("validate", maxPerHour, time.Hour)
}

// ResearchLimit returns a rate limiter for research run creation
func (rl *RateLimiter) ResearchLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("research", maxPerHour, time.Hour)
}

// UploadLimit returns a rate limiter for file uploads
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}
