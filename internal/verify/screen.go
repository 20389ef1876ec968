// Package verify implements the six-cell verification code screen: digit
// entry with auto-advance, backspace navigation, the resend cooldown and the
// final confirmation against the identity backend.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/contact"
)

const (
	CodeLength     = 6
	ResendCooldown = 60
	TickInterval   = time.Second
)

// Verifier is the part of the session service the screen needs.
type Verifier interface {
	VerifyPhoneCode(ctx context.Context, handle, code string) error
	SignInWithPhone(ctx context.Context, phone string) (string, error)
}

// Attempt is a started phone verification.
type Attempt struct {
	Contact string
	Kind    contact.Kind
	Handle  string
}

// View is a snapshot of the screen.
type View struct {
	Contact   string   `json:"contact"`
	Kind      string   `json:"kind"`
	Cells     []string `json:"cells"`
	Focus     int      `json:"focus"`
	Remaining int      `json:"remaining"`
	CanVerify bool     `json:"can_verify"`
	CanResend bool     `json:"can_resend"`
	InFlight  bool     `json:"in_flight"`
	Verified  bool     `json:"verified"`
}

// Screen is one mounted verification screen. It owns exactly one countdown
// goroutine at a time.
type Screen struct {
	verifier Verifier
	clock    Clock
	logger   *slog.Logger

	mu        sync.Mutex
	attempt   Attempt
	cells     [CodeLength]string
	focus     int
	remaining int
	inFlight  bool
	verified  bool
	closed    bool

	// Lock order is timerMu before mu. The countdown goroutine only takes mu.
	timerMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

// NewScreen mounts the screen and starts the countdown.
func NewScreen(attempt Attempt, verifier Verifier, clock Clock, logger *slog.Logger) (*Screen, error) {
	if attempt.Kind != contact.KindPhone {
		return nil, apperror.Validation("auth.pleaseEnterValidEmailOrPhone", "only phone numbers are verified by code")
	}
	if strings.TrimSpace(attempt.Handle) == "" {
		return nil, apperror.Validation("", "verification handle is required")
	}
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screen{
		verifier:  verifier,
		clock:     clock,
		logger:    logger,
		attempt:   attempt,
		remaining: ResendCooldown,
	}
	s.startCountdown()
	return s, nil
}

// Attempt returns the current attempt. The handle changes after a resend.
func (s *Screen) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Enter stores a digit in cell i and moves focus to the next cell.
func (s *Screen) Enter(i int, text string) error {
	if i < 0 || i >= CodeLength {
		return apperror.Validation("", "cell index out of range")
	}
	if len(text) != 1 || text[0] < '0' || text[0] > '9' {
		return apperror.Validation("", "a cell holds a single digit")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[i] = text
	s.focus = i
	if i < CodeLength-1 {
		s.focus = i + 1
	}
	return nil
}

// Backspace clears a filled cell. On an empty cell it moves focus back one
// cell without touching that cell's digit.
func (s *Screen) Backspace(i int) error {
	if i < 0 || i >= CodeLength {
		return apperror.Validation("", "cell index out of range")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cells[i] != "":
		s.cells[i] = ""
		s.focus = i
	case i > 0:
		s.focus = i - 1
	default:
		s.focus = 0
	}
	return nil
}

func (s *Screen) completeLocked() bool {
	for _, c := range s.cells {
		if c == "" {
			return false
		}
	}
	return true
}

// Verify confirms the entered code. An incomplete code never reaches the
// backend.
func (s *Screen) Verify(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return apperror.Conflict("errors.busy", "a request is already in progress")
	}
	if !s.completeLocked() {
		s.mu.Unlock()
		return apperror.Validation("auth.pleaseEnterCompleteCode", "enter the complete 6-digit code")
	}
	s.inFlight = true
	code := strings.Join(s.cells[:], "")
	handle := s.attempt.Handle
	s.mu.Unlock()

	err := s.verifier.VerifyPhoneCode(ctx, handle, code)

	s.mu.Lock()
	s.inFlight = false
	if err == nil {
		s.verified = true
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("verify.rejected", slog.String("contact", contact.Mask(s.attempt.Contact, s.attempt.Kind)))
		return verifyFailure(err)
	}
	s.logger.Info("verify.confirmed", slog.String("contact", contact.Mask(s.attempt.Contact, s.attempt.Kind)))
	return nil
}

func verifyFailure(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr
	}
	var hm apperror.HumanMessage
	if errors.As(err, &hm) && hm.HumanMessage() != "" {
		return apperror.Auth(err)
	}
	e := apperror.Wrap(err, apperror.ErrCodeAuth, "invalid code")
	e.Key = "auth.invalidCode"
	return e
}

// Resend requests a new code. It is allowed only once the countdown has
// reached zero and nothing is in flight. The countdown restarts at
// ResendCooldown before the request goes out. If the request fails the
// countdown is released so the user can try again.
func (s *Screen) Resend(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.inFlight || s.remaining > 0 {
		s.mu.Unlock()
		return apperror.Conflict("auth.resendNotAvailable", "resend is not available yet")
	}
	s.inFlight = true
	s.remaining = ResendCooldown
	s.cells = [CodeLength]string{}
	s.focus = 0
	phone := s.attempt.Contact
	s.mu.Unlock()

	s.startCountdown()

	handle, err := s.verifier.SignInWithPhone(ctx, phone)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.remaining = 0
	} else {
		s.attempt.Handle = handle
	}
	s.mu.Unlock()

	if err != nil {
		s.stopCountdown()
		s.logger.Warn("verify.resend_failed", slog.String("contact", contact.Mask(phone, contact.KindPhone)), slog.Any("error", err))
		return err
	}
	s.logger.Info("verify.code_resent", slog.String("contact", contact.Mask(phone, contact.KindPhone)))
	return nil
}

// Close stops the countdown. No tick is applied after Close returns.
// In-flight backend calls are left to finish.
func (s *Screen) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopCountdown()
}

// View returns a snapshot with the contact masked for display.
func (s *Screen) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	complete := s.completeLocked()
	return View{
		Contact:   contact.Mask(s.attempt.Contact, s.attempt.Kind),
		Kind:      s.attempt.Kind.String(),
		Cells:     append([]string(nil), s.cells[:]...),
		Focus:     s.focus,
		Remaining: s.remaining,
		CanVerify: complete && !s.inFlight,
		CanResend: s.remaining == 0 && !s.inFlight && !s.closed,
		InFlight:  s.inFlight,
		Verified:  s.verified,
	}
}

func (s *Screen) startCountdown() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.stopLocked()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	ticker := s.clock.NewTicker(TickInterval)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done
	go s.run(ticker, stop, done)
}

func (s *Screen) stopCountdown() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.stopLocked()
}

func (s *Screen) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

func (s *Screen) run(ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !s.tick(stop) {
				return
			}
		}
	}
}

// tick decrements the countdown and reports whether it should keep running.
func (s *Screen) tick(stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	if s.closed {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining > 0
}
