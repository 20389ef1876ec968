package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/crazy-cooker/crazy_cooker/internal/auth"
)

// RegisterAuthRoutes wires the session and auth form endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, requireSession fiber.Handler, submitGuards ...fiber.Handler) {
	r.Get("/route", h.Route)
	r.Get("/session", h.Session)
	r.Get("/session/token", requireSession, h.Token)

	group := r.Group("/auth")
	group.Post("/classify", h.Classify)
	group.Post("/view", h.View)
	group.Post("/mode", h.Mode)
	group.Post("/submit", append(submitGuards, h.Submit)...)
	group.Post("/logout", requireSession, h.Logout)
	group.Post("/password-reset", h.PasswordReset)
	group.Post("/email-verification", requireSession, h.EmailVerification)
}

// RegisterVerificationRoutes wires the verification code screen.
func RegisterVerificationRoutes(r fiber.Router, h *auth.Handler, resendGuard fiber.Handler) {
	group := r.Group("/verification")
	group.Get("", h.Verification)
	group.Delete("", h.Dismiss)
	group.Put("/cells/:index", h.EnterDigit)
	group.Post("/cells/:index/backspace", h.Backspace)
	group.Post("/confirm", h.Confirm)
	if resendGuard != nil {
		group.Post("/resend", resendGuard, h.Resend)
	} else {
		group.Post("/resend", h.Resend)
	}
}
