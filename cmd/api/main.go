package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crazy-cooker/crazy_cooker/internal/app"
	"github.com/crazy-cooker/crazy_cooker/internal/config"
	"github.com/crazy-cooker/crazy_cooker/internal/i18n"
	"github.com/crazy-cooker/crazy_cooker/internal/identity"
	"github.com/crazy-cooker/crazy_cooker/internal/infra"
	"github.com/crazy-cooker/crazy_cooker/internal/logging"
	"github.com/crazy-cooker/crazy_cooker/internal/notification"
	"github.com/crazy-cooker/crazy_cooker/internal/server"
	"github.com/crazy-cooker/crazy_cooker/internal/session"
	"github.com/crazy-cooker/crazy_cooker/internal/verify"
)

const sessionReadyTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With(slog.String("app", cfg.AppName), slog.String("env", cfg.AppEnv))

	ctx := context.Background()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	gateway, closeGateway, err := newGateway(cfg, logger)
	if err != nil {
		logger.Error("build identity gateway", "error", err)
		os.Exit(1)
	}
	defer closeGateway()

	catalog, err := i18n.LoadEmbedded()
	if err != nil {
		logger.Error("load translations", "error", err)
		os.Exit(1)
	}
	deviceLocale := cfg.DeviceLocale
	if deviceLocale == "" {
		deviceLocale = i18n.DeviceLocale()
	}
	translator, err := i18n.NewTranslator(catalog)
	if err != nil {
		logger.Error("register translations", "error", err)
		os.Exit(1)
	}
	language := i18n.NewService(ctx, translator, newLocaleStore(cfg, cache), deviceLocale, logger)

	sess := session.NewService(gateway, identity.StaticChallenger{Token: cfg.RecaptchaToken}, logger)
	readyCtx, cancelReady := context.WithTimeout(ctx, sessionReadyTimeout)
	if err := sess.WaitReady(readyCtx); err != nil {
		logger.Warn("session not ready at startup", "error", err)
	}
	cancelReady()

	application := app.New(language, sess, verify.RealClock{}, logger)
	defer application.Close()

	srv := server.New(cfg, application, cache, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func newGateway(cfg config.Config, logger *slog.Logger) (identity.Gateway, func(), error) {
	switch cfg.IdentityBackend {
	case config.IdentityToolkit:
		gw, err := identity.NewToolkitGateway(identity.ToolkitConfig{
			BaseURL: cfg.IdentityBaseURL,
			APIKey:  cfg.IdentityAPIKey,
			Timeout: cfg.IdentityTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, gw.Close, nil
	default:
		gw := identity.NewMemoryGateway(identity.MemoryConfig{
			TokenSecret: []byte(cfg.IdentityTokenSecret),
			FixedCode:   cfg.IdentityFixedCode,
		}, notification.NewLoggerNotifier(logger), logger)
		return gw, gw.Close, nil
	}
}

func newLocaleStore(cfg config.Config, cache *redis.Client) i18n.LocaleStore {
	switch cfg.LocaleStore {
	case config.LocaleStoreRedis:
		hostname, _ := os.Hostname()
		return i18n.NewRedisStore(cache, hostname)
	case config.LocaleStoreMemory:
		return i18n.NewMemoryStore()
	default:
		return i18n.NewFileStore(cfg.LocaleFile)
	}
}
