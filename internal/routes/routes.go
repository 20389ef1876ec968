package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/crazy-cooker/crazy_cooker/internal/app"
	"github.com/crazy-cooker/crazy_cooker/internal/auth"
	"github.com/crazy-cooker/crazy_cooker/internal/config"
	"github.com/crazy-cooker/crazy_cooker/internal/i18n"
	"github.com/crazy-cooker/crazy_cooker/internal/middleware"
)

const replayTTL = 10 * time.Minute

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	App    *app.App
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(fapp *fiber.App, d Deps) {
	fapp.Use(recover.New())
	fapp.Use(middleware.RequestID())
	if d.Cfg.IsDevelopment() {
		// Plain text access log in the format: [HH:MM:SS] 200 -  145ms METHOD /path
		fapp.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	fapp.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(fapp, d)

	api := fapp.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	authHandler := auth.NewHandler(d.App)
	submitGuards := []fiber.Handler{
		middleware.SubmitRateLimit(d.Cache, d.Cfg.SubmitLimitPerMinute),
		middleware.Replay(d.Cache, replayTTL, d.Logger),
	}
	RegisterAuthRoutes(api, authHandler, middleware.RequireSession(d.App.Session), submitGuards...)
	RegisterVerificationRoutes(api, authHandler, middleware.Replay(d.Cache, replayTTL, d.Logger))
	RegisterLanguageRoutes(api, i18n.NewHandler(d.App.Language))
}
