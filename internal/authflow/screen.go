// Package authflow drives the sign-in screen: it classifies the contact the
// user typed and routes the submit to the email/password or phone branch.
package authflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/contact"
)

// Mode selects which email operation a submit runs.
type Mode int

const (
	ModeSignIn Mode = iota
	ModeSignUp
)

func (m Mode) String() string {
	if m == ModeSignUp {
		return "sign_up"
	}
	return "sign_in"
}

// Authenticator is the part of the session service the screen needs.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignInWithPhone(ctx context.Context, phone string) (string, error)
}

// Handoff carries a started phone verification to the code screen.
type Handoff struct {
	Contact string
	Kind    contact.Kind
	Handle  string
}

// Screen holds the local state of the auth form.
type Screen struct {
	auth   Authenticator
	logger *slog.Logger

	mu       sync.Mutex
	mode     Mode
	inFlight bool
}

func NewScreen(auth Authenticator, logger *slog.Logger) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{auth: auth, logger: logger}
}

func (s *Screen) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ToggleMode flips between sign-in and sign-up and returns the new mode.
func (s *Screen) ToggleMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeSignIn {
		s.mode = ModeSignUp
	} else {
		s.mode = ModeSignIn
	}
	return s.mode
}

// SetMode forces a mode.
func (s *Screen) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *Screen) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// CanSubmit reports whether the submit control is enabled.
func (s *Screen) CanSubmit(input, password string) bool {
	if s.InFlight() {
		return false
	}
	return canSubmit(input, password)
}

func canSubmit(input, password string) bool {
	switch contact.Classify(input) {
	case contact.KindPhone:
		return true
	case contact.KindEmail:
		return strings.TrimSpace(password) != ""
	default:
		return false
	}
}

// Submit runs the primary action. A phone contact starts SMS verification
// and returns the handoff for the code screen. An email contact signs in or
// signs up depending on the mode and returns an empty Handoff; navigation
// then follows the session signal.
func (s *Screen) Submit(ctx context.Context, input, password string) (Handoff, error) {
	if strings.TrimSpace(input) == "" {
		return Handoff{}, apperror.Validation("auth.pleaseEnterEmailOrPhone", "email or phone number is required")
	}
	kind := contact.Classify(input)
	if kind == contact.KindUnknown {
		return Handoff{}, apperror.Validation("auth.pleaseEnterValidEmailOrPhone", "enter a valid email or phone number")
	}
	if kind == contact.KindEmail && strings.TrimSpace(password) == "" {
		return Handoff{}, apperror.Validation("auth.pleaseEnterPassword", "password is required")
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Handoff{}, apperror.Conflict("errors.busy", "a request is already in progress")
	}
	s.inFlight = true
	mode := s.mode
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if kind == contact.KindPhone {
		phone := contact.NormalizePhone(input)
		handle, err := s.auth.SignInWithPhone(ctx, phone)
		if err != nil {
			return Handoff{}, err
		}
		s.logger.Info("auth.phone_verification_started", slog.String("contact", contact.Mask(phone, kind)))
		return Handoff{Contact: phone, Kind: kind, Handle: handle}, nil
	}

	email := strings.TrimSpace(input)
	var err error
	if mode == ModeSignUp {
		err = s.auth.SignUp(ctx, email, password)
	} else {
		err = s.auth.SignIn(ctx, email, password)
	}
	if err != nil {
		return Handoff{}, err
	}
	s.logger.Info("auth.email_submitted", slog.String("mode", mode.String()))
	return Handoff{Contact: email, Kind: kind}, nil
}
