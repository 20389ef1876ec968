package i18n

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
)

// Service is the language context: current language, the translator bound
// to it, and best-effort persistence of the choice.
type Service struct {
	translator *Translator
	store      LocaleStore
	logger     *slog.Logger

	mu      sync.RWMutex
	current string

	// saveMu serializes writes so the last one stored is the latest choice.
	saveMu sync.Mutex
}

// NewService picks the initial language: a recognized stored code wins,
// then the device locale's primary subtag, then DefaultCode. The store is
// read exactly once.
func NewService(ctx context.Context, translator *Translator, store LocaleStore, deviceLocale string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	code := DefaultCode
	if matched, ok := MatchLocale(deviceLocale); ok {
		code = matched
	}

	if store != nil {
		saved, found, err := store.Load(ctx)
		switch {
		case err != nil:
			logger.Warn("language.load failed", slog.Any("error", err))
		case found && IsSupported(saved):
			code = saved
		case found:
			logger.Info("language.load ignored unknown code", slog.String("language", saved))
		}
	}

	// code is always supported here
	_ = translator.SetLanguage(code)
	logger.Info("language.initialized", slog.String("language", code), slog.String("device_locale", deviceLocale))

	return &Service{translator: translator, store: store, logger: logger, current: code}
}

// ChangeLanguage switches the UI language. Unsupported codes are rejected
// without touching state. The store is written after the switch is visible;
// a failed write is logged and does not undo it.
func (s *Service) ChangeLanguage(ctx context.Context, code string) error {
	if !IsSupported(code) {
		e := apperror.Validation("errors.unsupportedLanguage", "language "+code+" is not supported")
		e.Params = map[string]any{"code": code}
		return e
	}

	s.mu.Lock()
	if err := s.translator.SetLanguage(code); err != nil {
		s.mu.Unlock()
		return apperror.Validation("errors.unsupportedLanguage", err.Error())
	}
	s.current = code
	s.mu.Unlock()
	s.logger.Info("language.changed", slog.String("language", code))

	s.persist(ctx)
	return nil
}

func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	code := s.current
	s.mu.RUnlock()
	if err := s.store.Save(ctx, code); err != nil {
		s.logger.Warn("language.persist failed", slog.String("language", code), slog.Any("error", apperror.Persistence(err)))
	}
}

// Current returns the active language.
func (s *Service) Current() Language {
	s.mu.RLock()
	code := s.current
	s.mu.RUnlock()
	lang, _ := Lookup(code)
	return lang
}

func (s *Service) Available() []Language {
	return Available()
}

// IsRTL reports whether the active language is written right to left.
func (s *Service) IsRTL() bool {
	return s.Current().RTL
}

// T translates key in the active language.
func (s *Service) T(key string, vars map[string]any) string {
	return s.translator.T(key, vars)
}
