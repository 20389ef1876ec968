package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/crazy-cooker/crazy_cooker/internal/session"
)

// RequireSession rejects requests while nobody is signed in and stores the
// user id in Locals("user_id").
func RequireSession(sess *session.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := sess.CurrentUser()
		if user == nil {
			return fiber.NewError(http.StatusUnauthorized, "sign in required")
		}
		c.Locals("user_id", user.ID)
		return c.Next()
	}
}
