package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	IdentityMemory  = "memory"
	IdentityToolkit = "toolkit"

	LocaleStoreFile   = "file"
	LocaleStoreRedis  = "redis"
	LocaleStoreMemory = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME"         envDefault:"CrazyCooker"`
	AppEnv         string        `env:"APP_ENV"          envDefault:"development"`
	Port           string        `env:"PORT"             envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL"        envDefault:"info"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	IdentityBackend     string        `env:"IDENTITY_BACKEND"      envDefault:"memory"`
	IdentityAPIKey      string        `env:"IDENTITY_API_KEY"`
	IdentityBaseURL     string        `env:"IDENTITY_BASE_URL"     envDefault:"https://identitytoolkit.googleapis.com"`
	IdentityTimeout     time.Duration `env:"IDENTITY_TIMEOUT"      envDefault:"15s"`
	IdentityTokenSecret string        `env:"IDENTITY_TOKEN_SECRET" envDefault:"crazy-cooker-dev-secret"`
	IdentityFixedCode   string        `env:"IDENTITY_FIXED_CODE"`
	RecaptchaToken      string        `env:"RECAPTCHA_TOKEN"       envDefault:"dev-recaptcha"`

	LocaleStore  string `env:"LOCALE_STORE"  envDefault:"file"`
	LocaleFile   string `env:"LOCALE_FILE"   envDefault:"data/preferences.json"`
	DeviceLocale string `env:"DEVICE_LOCALE"`

	SubmitLimitPerMinute int `env:"SUBMIT_LIMIT_PER_MINUTE" envDefault:"5"`
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.IdentityBackend = strings.ToLower(cfg.IdentityBackend)
	cfg.LocaleStore = strings.ToLower(cfg.LocaleStore)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules.
func (c Config) Validate() error {
	switch c.IdentityBackend {
	case IdentityMemory:
		if !c.IsDevelopment() {
			return fmt.Errorf("IDENTITY_BACKEND=memory is only allowed when APP_ENV is development or test")
		}
	case IdentityToolkit:
		if c.IdentityAPIKey == "" {
			return fmt.Errorf("IDENTITY_API_KEY must be set for the toolkit backend")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_BACKEND %q", c.IdentityBackend)
	}
	if c.IdentityFixedCode != "" {
		if c.IdentityBackend != IdentityMemory {
			return fmt.Errorf("IDENTITY_FIXED_CODE is only supported by the memory backend")
		}
		if !isDigits(c.IdentityFixedCode, 6) {
			return fmt.Errorf("IDENTITY_FIXED_CODE must be 6 digits")
		}
	}

	switch c.LocaleStore {
	case LocaleStoreFile:
		if c.LocaleFile == "" {
			return fmt.Errorf("LOCALE_FILE must be set for the file locale store")
		}
	case LocaleStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set for the redis locale store")
		}
	case LocaleStoreMemory:
	default:
		return fmt.Errorf("unknown LOCALE_STORE %q", c.LocaleStore)
	}

	if c.ShutdownPeriod <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.SubmitLimitPerMinute < 0 {
		return fmt.Errorf("SUBMIT_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsDevelopment reports whether the process runs in a local environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
