package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crazy-cooker/crazy_cooker/internal/app"
	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/config"
	"github.com/crazy-cooker/crazy_cooker/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	fiber *fiber.App
	cfg   config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, application *app.App, cache *redis.Client, logger *slog.Logger) *Server {
	fapp := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !cfg.IsDevelopment(),
		ErrorHandler:          ErrorHandler(application.T),
	})

	routes.Setup(fapp, routes.Deps{Cfg: cfg, App: application, Cache: cache, Logger: logger})

	return &Server{fiber: fapp, cfg: cfg}
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.fiber
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.fiber.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.fiber.ShutdownWithContext(ctx)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders errors as {"error":{"code","message"}}. Application
// errors carrying a translation key are rendered in the active language.
func ErrorHandler(translate func(key string, vars map[string]any) string) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			msg := appErr.Message
			if appErr.Key != "" {
				if text := translate(appErr.Key, appErr.Params); text != appErr.Key {
					msg = text
				}
			}
			status := appErr.HTTPStatus
			if status == 0 {
				status = fiber.StatusInternalServerError
			}
			return c.Status(status).JSON(fiber.Map{"error": errorBody{Code: string(appErr.Code), Message: msg}})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": errorBody{Code: fiberCode(fe.Code), Message: fe.Message}})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": errorBody{Code: string(apperror.ErrCodeInternal), Message: translate("errors.tryAgain", nil)},
		})
	}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(apperror.ErrCodeValidation)
	case fiber.StatusUnauthorized:
		return string(apperror.ErrCodeAuth)
	case fiber.StatusNotFound:
		return string(apperror.ErrCodeNotFound)
	case fiber.StatusConflict:
		return string(apperror.ErrCodeConflict)
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= fiber.StatusInternalServerError {
			return string(apperror.ErrCodeInternal)
		}
		return "HTTP_ERROR"
	}
}
