package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazy-cooker/crazy_cooker/internal/apperror"
	"github.com/crazy-cooker/crazy_cooker/internal/identity"
	"github.com/crazy-cooker/crazy_cooker/internal/logging"
	"github.com/crazy-cooker/crazy_cooker/internal/notification"
)

// scriptedGateway lets a test drive the user-state signal by hand.
type scriptedGateway struct {
	mu     sync.Mutex
	fn     func(*identity.User)
	err    error
	calls  []string
	phones []string
	tokens []string
}

func (g *scriptedGateway) emit(u *identity.User) {
	g.mu.Lock()
	fn := g.fn
	g.mu.Unlock()
	fn(u)
}

func (g *scriptedGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.err
}

func (g *scriptedGateway) Subscribe(fn func(*identity.User)) func() {
	g.mu.Lock()
	g.fn = fn
	g.mu.Unlock()
	return func() {}
}

func (g *scriptedGateway) SignInWithPassword(context.Context, string, string) (*identity.User, error) {
	return nil, g.record("sign_in")
}

func (g *scriptedGateway) SignUpWithPassword(context.Context, string, string) (*identity.User, error) {
	return nil, g.record("sign_up")
}

func (g *scriptedGateway) SignOut(context.Context) error { return g.record("sign_out") }

func (g *scriptedGateway) SendPasswordReset(context.Context, string) error {
	return g.record("reset")
}

func (g *scriptedGateway) SendEmailVerification(context.Context) error {
	return g.record("verify_email")
}

func (g *scriptedGateway) BeginPhoneVerification(_ context.Context, phone, token string) (string, error) {
	g.mu.Lock()
	g.phones = append(g.phones, phone)
	g.tokens = append(g.tokens, token)
	g.mu.Unlock()
	if err := g.record("begin_phone"); err != nil {
		return "", err
	}
	return "handle-1", nil
}

func (g *scriptedGateway) ConfirmPhoneCode(context.Context, string, string) (*identity.User, error) {
	return nil, g.record("confirm_phone")
}

func (g *scriptedGateway) IDToken(context.Context) (string, error) {
	return "", identity.ErrNoCurrentUser
}

func (g *scriptedGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func TestSignalIsTheSoleWriter(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, identity.StaticChallenger{Token: "t"}, logging.Discard())
	defer svc.Close()

	var seen []State
	svc.Watch(func(s State) { seen = append(seen, s) })

	assert.True(t, svc.Snapshot().Loading)
	assert.Equal(t, StatusLoading, svc.Snapshot().Status())

	alice := &identity.User{ID: "a", Email: "a@b.co"}
	gw.emit(nil)
	assert.False(t, svc.Snapshot().Loading)
	gw.emit(alice)
	assert.Equal(t, StatusAuthenticated, svc.Snapshot().Status())
	gw.emit(nil)

	require.Len(t, seen, 3)
	assert.Equal(t, StatusUnauthenticated, seen[0].Status())
	assert.Equal(t, "a", seen[1].User.ID)
	assert.Nil(t, seen[2].User)
	for _, s := range seen {
		assert.False(t, s.Loading)
	}
}

func TestRepeatedSignalDoesNotNotify(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, nil, logging.Discard())

	count := 0
	svc.Watch(func(State) { count++ })
	gw.emit(nil)
	gw.emit(nil)
	gw.emit(&identity.User{ID: "a"})
	gw.emit(&identity.User{ID: "a"})
	assert.Equal(t, 2, count)
}

func TestOperationsDoNotWriteState(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, identity.StaticChallenger{Token: "t"}, logging.Discard())
	gw.emit(nil)

	require.NoError(t, svc.SignIn(context.Background(), " a@b.co ", "secret1"))
	assert.Nil(t, svc.CurrentUser())
	assert.Equal(t, []string{"sign_in"}, gw.Calls())
}

func TestSnapshotIsACopy(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, nil, logging.Discard())
	gw.emit(&identity.User{ID: "a", Email: "a@b.co"})

	snap := svc.Snapshot()
	snap.User.Email = "mutated"
	assert.Equal(t, "a@b.co", svc.CurrentUser().Email)
}

func TestGatewayFailuresBecomeAuthErrors(t *testing.T) {
	gw := &scriptedGateway{err: &identity.GatewayError{Code: identity.CodeEmailExists, Message: "The email address is already in use by another account."}}
	svc := NewService(gw, identity.StaticChallenger{Token: "t"}, logging.Discard())
	gw.emit(&identity.User{ID: "a"})
	ctx := context.Background()

	errs := []error{
		svc.SignIn(ctx, "a@b.co", "x"),
		svc.SignUp(ctx, "a@b.co", "x"),
		svc.Logout(ctx),
		svc.ResetPassword(ctx, "a@b.co"),
		svc.SendVerificationEmail(ctx),
		svc.VerifyPhoneCode(ctx, "h", "123456"),
	}
	_, phoneErr := svc.SignInWithPhone(ctx, "+15551234567")
	errs = append(errs, phoneErr)

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, apperror.IsAuth(err))
		assert.Equal(t, "The email address is already in use by another account.", apperror.Message(err, ""))
	}
}

func TestSignInWithPhoneChallengesFirst(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, identity.StaticChallenger{Token: "captcha"}, logging.Discard())

	handle, err := svc.SignInWithPhone(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "handle-1", handle)
	assert.Equal(t, []string{"captcha"}, gw.tokens)
}

func TestSignInWithPhoneChallengeRejected(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, identity.StaticChallenger{}, logging.Discard())

	_, err := svc.SignInWithPhone(context.Background(), "+15551234567")
	assert.True(t, apperror.IsAuth(err))
	assert.Empty(t, gw.Calls())

	noChallenger := NewService(gw, nil, logging.Discard())
	_, err = noChallenger.SignInWithPhone(context.Background(), "+15551234567")
	assert.True(t, apperror.IsAuth(err))
	assert.Empty(t, gw.Calls())
}

func TestSendVerificationEmailWithoutUserIsNoop(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, nil, logging.Discard())
	gw.emit(nil)

	require.NoError(t, svc.SendVerificationEmail(context.Background()))
	assert.Empty(t, gw.Calls())
}

func TestWaitReady(t *testing.T) {
	gw := &scriptedGateway{}
	svc := NewService(gw, nil, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(svc.WaitReady(ctx), context.DeadlineExceeded))

	gw.emit(nil)
	require.NoError(t, svc.WaitReady(context.Background()))
}

func TestIDTokenWithoutUser(t *testing.T) {
	svc := NewService(&scriptedGateway{}, nil, logging.Discard())
	_, err := svc.IDToken(context.Background())
	assert.True(t, apperror.IsNotFound(err))
}

func TestWithMemoryGateway(t *testing.T) {
	notifier := notification.NewRecordingNotifier()
	gw := identity.NewMemoryGateway(identity.MemoryConfig{}, notifier, logging.Discard())
	defer gw.Close()
	svc := NewService(gw, identity.StaticChallenger{Token: "dev"}, logging.Discard())
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.WaitReady(ctx))
	assert.Equal(t, StatusUnauthenticated, svc.Snapshot().Status())

	handle, err := svc.SignInWithPhone(ctx, "+7 999 123 45 67")
	require.NoError(t, err)
	msg, ok := notifier.Last(notification.KindSMSCode)
	require.True(t, ok)

	err = svc.VerifyPhoneCode(ctx, handle, "nope")
	assert.True(t, apperror.IsAuth(err))

	require.NoError(t, svc.VerifyPhoneCode(ctx, handle, msg.Secret))
	require.Eventually(t, func() bool {
		return svc.Snapshot().Status() == StatusAuthenticated
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "+79991234567", svc.CurrentUser().Phone)

	token, err := svc.IDToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.NoError(t, svc.Logout(ctx))
	require.Eventually(t, func() bool {
		return svc.Snapshot().Status() == StatusUnauthenticated
	}, 2*time.Second, 5*time.Millisecond)
}
