package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/crazy-cooker/crazy_cooker/internal/i18n"
)

// RegisterLanguageRoutes wires the language context endpoints.
func RegisterLanguageRoutes(r fiber.Router, h *i18n.Handler) {
	r.Get("/languages", h.Languages)
	r.Put("/language", h.Change)
	r.Get("/translate", h.Translate)
}
