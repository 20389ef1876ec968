// Package app composes the language context, the session and the screens,
// and decides which branch of the root navigation is shown.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/authflow"
	"github.com/crazy-cooker/crazy_cooker/internal/i18n"
	"github.com/crazy-cooker/crazy_cooker/internal/session"
	"github.com/crazy-cooker/crazy_cooker/internal/verify"
)

// Route is the root navigation branch.
type Route string

const (
	RouteLoading Route = "loading"
	RouteAuth    Route = "auth"
	RouteTabs    Route = "tabs"
)

// App owns the screen lifecycle. At most one verification screen is mounted.
type App struct {
	Language *i18n.Service
	Session  *session.Service
	Auth     *authflow.Screen

	clock  verify.Clock
	logger *slog.Logger

	mu           sync.Mutex
	verification *verify.Screen
	cancelWatch  func()
	closeOnce    sync.Once
}

// New wires the screens to the session. A nil clock uses the wall clock.
func New(language *i18n.Service, sess *session.Service, clock verify.Clock, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = verify.RealClock{}
	}
	a := &App{
		Language: language,
		Session:  sess,
		Auth:     authflow.NewScreen(sess, logger),
		clock:    clock,
		logger:   logger,
	}
	a.cancelWatch = sess.Watch(a.onSessionChanged)
	return a
}

func (a *App) onSessionChanged(state session.State) {
	if state.Status() != session.StatusAuthenticated {
		return
	}
	if a.Unmount() {
		a.logger.Info("app.verification_unmounted", slog.String("reason", "authenticated"))
	}
}

// Route maps the session snapshot to a navigation branch.
func (a *App) Route() Route {
	switch a.Session.Snapshot().Status() {
	case session.StatusLoading:
		return RouteLoading
	case session.StatusAuthenticated:
		return RouteTabs
	default:
		return RouteAuth
	}
}

// T translates key in the active language.
func (a *App) T(key string, vars map[string]any) string {
	return a.Language.T(key, vars)
}

// AuthView renders the auth form in the active language.
func (a *App) AuthView(input, password string) authflow.View {
	return a.Auth.View(input, password, a.Language.T)
}

// Submit runs the auth form. A phone handoff mounts a fresh verification
// screen and closes the previous one.
func (a *App) Submit(ctx context.Context, input, password string) (authflow.Handoff, error) {
	handoff, err := a.Auth.Submit(ctx, input, password)
	if err != nil || handoff.Handle == "" {
		return handoff, err
	}

	screen, err := verify.NewScreen(verify.Attempt{
		Contact: handoff.Contact,
		Kind:    handoff.Kind,
		Handle:  handoff.Handle,
	}, a.Session, a.clock, a.logger)
	if err != nil {
		return authflow.Handoff{}, err
	}

	a.mu.Lock()
	prev := a.verification
	a.verification = screen
	a.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return handoff, nil
}

// Verification returns the mounted verification screen.
func (a *App) Verification() (*verify.Screen, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verification == nil {
		return nil, apperror.NotFound("no verification in progress")
	}
	return a.verification, nil
}

// ConfirmCode verifies the entered code and unmounts the screen on success.
func (a *App) ConfirmCode(ctx context.Context) error {
	screen, err := a.Verification()
	if err != nil {
		return err
	}
	if err := screen.Verify(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	if a.verification == screen {
		a.verification = nil
	}
	a.mu.Unlock()
	screen.Close()
	return nil
}

// Unmount closes the verification screen and reports whether one was
// mounted.
func (a *App) Unmount() bool {
	a.mu.Lock()
	screen := a.verification
	a.verification = nil
	a.mu.Unlock()
	if screen == nil {
		return false
	}
	screen.Close()
	return true
}

// Close tears down the screens and the session subscription.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cancelWatch != nil {
			a.cancelWatch()
		}
		a.Unmount()
		a.Session.Close()
	})
}
