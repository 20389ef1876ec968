// Package session is the process-wide source of truth for who is signed in.
// The only writer of the session state is the identity gateway's user-state
// subscription; every operation here delegates to the gateway and waits for
// the resulting signal to update state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/identity"
)

// Status is the coarse session state.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State is a snapshot of the session. User is a private copy.
type State struct {
	Loading bool
	User    *identity.User
}

// Status derives the coarse state from the snapshot.
func (s State) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.User != nil:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

func (s State) clone() State {
	return State{Loading: s.Loading, User: s.User.Clone()}
}

// Service wraps an identity gateway and caches the latest user-state signal.
type Service struct {
	gateway    identity.Gateway
	challenger identity.Challenger
	logger     *slog.Logger

	mu          sync.RWMutex
	state       State
	listeners   map[int]func(State)
	nextID      int
	ready       chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
}

// NewService subscribes to the gateway. The state stays Loading until the
// first signal arrives.
func NewService(gateway identity.Gateway, challenger identity.Challenger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		gateway:    gateway,
		challenger: challenger,
		logger:     logger,
		state:      State{Loading: true},
		listeners:  make(map[int]func(State)),
		ready:      make(chan struct{}),
	}
	s.unsubscribe = gateway.Subscribe(s.onUserChanged)
	return s
}

func (s *Service) onUserChanged(u *identity.User) {
	s.mu.Lock()
	prev := s.state
	next := State{Loading: false, User: u.Clone()}
	s.state = next
	first := prev.Loading
	changed := first || !prev.User.Equal(next.User)
	listeners := make([]func(State), 0, len(s.listeners))
	if changed {
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	if first {
		close(s.ready)
	}
	if !changed {
		return
	}
	s.logger.Debug("session.state_changed", slog.String("status", string(next.Status())))
	for _, fn := range listeners {
		fn(next.clone())
	}
}

// Snapshot returns the latest state.
func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// CurrentUser returns the signed-in user or nil.
func (s *Service) CurrentUser() *identity.User {
	return s.Snapshot().User
}

// WaitReady blocks until the first signal has arrived.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch registers fn for every state transition. Listeners run on the
// gateway's delivery goroutine and must not block.
func (s *Service) Watch(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close stops listening to the gateway.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

func (s *Service) SignIn(ctx context.Context, email, password string) error {
	_, err := s.gateway.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	return s.fail("sign_in", err)
}

func (s *Service) SignUp(ctx context.Context, email, password string) error {
	_, err := s.gateway.SignUpWithPassword(ctx, strings.TrimSpace(email), password)
	return s.fail("sign_up", err)
}

func (s *Service) Logout(ctx context.Context) error {
	return s.fail("logout", s.gateway.SignOut(ctx))
}

func (s *Service) ResetPassword(ctx context.Context, email string) error {
	return s.fail("reset_password", s.gateway.SendPasswordReset(ctx, strings.TrimSpace(email)))
}

// SendVerificationEmail does nothing when nobody is signed in.
func (s *Service) SendVerificationEmail(ctx context.Context) error {
	if s.CurrentUser() == nil {
		return nil
	}
	return s.fail("send_verification_email", s.gateway.SendEmailVerification(ctx))
}

// SignInWithPhone runs the anti-abuse challenge, then asks the gateway to
// send an SMS code. The returned handle is needed by VerifyPhoneCode.
func (s *Service) SignInWithPhone(ctx context.Context, phone string) (string, error) {
	if s.challenger == nil {
		return "", s.fail("phone_challenge", &identity.GatewayError{Code: identity.CodeMissingChallenge, Message: "The anti-abuse check is not available on this device."})
	}
	token, err := s.challenger.Challenge(ctx)
	if err != nil {
		return "", s.fail("phone_challenge", err)
	}
	handle, err := s.gateway.BeginPhoneVerification(ctx, phone, token)
	if err != nil {
		return "", s.fail("phone_begin", err)
	}
	return handle, nil
}

func (s *Service) VerifyPhoneCode(ctx context.Context, handle, code string) error {
	_, err := s.gateway.ConfirmPhoneCode(ctx, handle, code)
	return s.fail("phone_confirm", err)
}

// IDToken returns the backend token of the current session.
func (s *Service) IDToken(ctx context.Context) (string, error) {
	token, err := s.gateway.IDToken(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoCurrentUser) {
			return "", apperror.NotFound("no user is signed in")
		}
		return "", s.fail("id_token", err)
	}
	return token, nil
}

func (s *Service) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	level := slog.LevelInfo
	if identity.IsNetwork(err) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "session."+op+" rejected", slog.String("error_code", identity.CodeOf(err)), slog.Any("error", err))
	return apperror.Auth(err)
}
