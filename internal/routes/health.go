package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/crazy-cooker/crazy_cooker/internal/infra"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(fapp *fiber.App, d Deps) {
	fapp.Get("/healthz", func(c *fiber.Ctx) error {
		redisStatus := "disabled"
		if d.Cache != nil {
			redisStatus = "ok"
			if err := infra.Ping(c.UserContext(), d.Cache); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if redisStatus != "ok" && redisStatus != "disabled" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"redis": redisStatus, "session": d.App.Session.Snapshot().Status()},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
