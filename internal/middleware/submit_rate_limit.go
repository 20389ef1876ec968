package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crazy-cooker/crazy_cooker/internal/contact"
)

const submitRateLimitPrefix = "rl:submit:"

// SubmitRateLimit limits auth submits per contact (or per IP when the body
// carries none) using Redis if available.
func SubmitRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Input string `json:"input"`
		}
		_ = c.BodyParser(&req)
		key := submitRateLimitPrefix + rateLimitSubject(req.Input, c.IP())

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many sign-in attempts, try again later")
		}
		return c.Next()
	}
}

func rateLimitSubject(input, ip string) string {
	switch contact.Classify(input) {
	case contact.KindPhone:
		return "phone:" + contact.NormalizePhone(input)
	case contact.KindEmail:
		return "email:" + strings.ToLower(strings.TrimSpace(input))
	default:
		return "ip:" + ip
	}
}
