package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazy-cooker/crazy_cooker/internal/logging"
	"github.com/crazy-cooker/crazy_cooker/internal/notification"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestGateway(t *testing.T) (*MemoryGateway, *notification.RecordingNotifier, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	notifier := notification.NewRecordingNotifier()
	gw := NewMemoryGateway(MemoryConfig{TokenSecret: []byte("secret"), Now: clock.Now}, notifier, logging.Discard())
	t.Cleanup(gw.Close)
	return gw, notifier, clock
}

func TestSignUpAndSignIn(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	user, err := gw.SignUpWithPassword(ctx, "Chef@Crazy.Cooker", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "chef@crazy.cooker", user.Email)
	assert.NotEmpty(t, user.ID)

	require.NoError(t, gw.SignOut(ctx))
	_, err = gw.IDToken(ctx)
	assert.ErrorIs(t, err, ErrNoCurrentUser)

	again, err := gw.SignInWithPassword(ctx, "chef@crazy.cooker", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	token, err := gw.IDToken(ctx)
	require.NoError(t, err)
	claims, err := gw.ParseIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["sub"])
	assert.Equal(t, "chef@crazy.cooker", claims["email"])
}

func TestSignUpRejections(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.SignUpWithPassword(ctx, "not-an-email", "secret1")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))

	_, err = gw.SignUpWithPassword(ctx, "a@b.co", "123")
	assert.Equal(t, CodeWeakPassword, CodeOf(err))

	_, err = gw.SignUpWithPassword(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	_, err = gw.SignUpWithPassword(ctx, "a@b.co", "secret2")
	assert.Equal(t, CodeEmailExists, CodeOf(err))
}

func TestSignInWrongPassword(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.SignUpWithPassword(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	_, err = gw.SignInWithPassword(ctx, "a@b.co", "wrong-pass")
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, CodeInvalidCredential, ge.Code)
	assert.Equal(t, "The email or password is incorrect.", ge.HumanMessage())

	_, err = gw.SignInWithPassword(ctx, "nobody@b.co", "secret1")
	assert.Equal(t, CodeInvalidCredential, CodeOf(err))
}

func TestPhoneVerificationFlow(t *testing.T) {
	gw, notifier, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.BeginPhoneVerification(ctx, "+7 999 123 45 67", "")
	assert.Equal(t, CodeMissingChallenge, CodeOf(err))

	_, err = gw.BeginPhoneVerification(ctx, "phone", "token")
	assert.Equal(t, CodeInvalidPhone, CodeOf(err))

	handle, err := gw.BeginPhoneVerification(ctx, "+7 999 123 45 67", "token")
	require.NoError(t, err)
	msg, ok := notifier.Last(notification.KindSMSCode)
	require.True(t, ok)
	assert.Equal(t, "+79991234567", msg.Destination)
	assert.Len(t, msg.Secret, 6)

	_, err = gw.ConfirmPhoneCode(ctx, handle, "000000x")
	assert.Equal(t, CodeInvalidCode, CodeOf(err))

	user, err := gw.ConfirmPhoneCode(ctx, handle, msg.Secret)
	require.NoError(t, err)
	assert.Equal(t, "+79991234567", user.Phone)

	// handles are single use
	_, err = gw.ConfirmPhoneCode(ctx, handle, msg.Secret)
	assert.Equal(t, CodeInvalidHandle, CodeOf(err))

	// same number maps to the same account
	handle2, err := gw.BeginPhoneVerification(ctx, "+79991234567", "token")
	require.NoError(t, err)
	msg2, _ := notifier.Last(notification.KindSMSCode)
	again, err := gw.ConfirmPhoneCode(ctx, handle2, msg2.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestPhoneCodeExpires(t *testing.T) {
	gw, notifier, clock := newTestGateway(t)
	ctx := context.Background()

	handle, err := gw.BeginPhoneVerification(ctx, "+15551234567", "token")
	require.NoError(t, err)
	msg, _ := notifier.Last(notification.KindSMSCode)

	clock.now = clock.now.Add(defaultCodeTTL + time.Second)
	_, err = gw.ConfirmPhoneCode(ctx, handle, msg.Secret)
	assert.Equal(t, CodeCodeExpired, CodeOf(err))
}

func TestPhoneDeliveryFailure(t *testing.T) {
	gw, notifier, _ := newTestGateway(t)
	notifier.FailWith(errors.New("sms provider down"))

	_, err := gw.BeginPhoneVerification(context.Background(), "+15551234567", "token")
	assert.Equal(t, CodeNetwork, CodeOf(err))
}

func TestPasswordResetAndEmailVerification(t *testing.T) {
	gw, notifier, _ := newTestGateway(t)
	ctx := context.Background()

	err := gw.SendPasswordReset(ctx, "ghost@b.co")
	assert.Equal(t, CodeUserNotFound, CodeOf(err))

	assert.ErrorIs(t, gw.SendEmailVerification(ctx), ErrNoCurrentUser)

	_, err = gw.SignUpWithPassword(ctx, "a@b.co", "secret1")
	require.NoError(t, err)

	require.NoError(t, gw.SendPasswordReset(ctx, "a@b.co"))
	require.NoError(t, gw.SendEmailVerification(ctx))

	reset, ok := notifier.Last(notification.KindPasswordReset)
	require.True(t, ok)
	assert.Equal(t, "a@b.co", reset.Destination)
	verify, ok := notifier.Last(notification.KindEmailVerification)
	require.True(t, ok)
	assert.Equal(t, "a@b.co", verify.Destination)
}

func TestGatewayAnnouncesStateChanges(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	ch := make(chan *User, 8)
	unsubscribe := gw.Subscribe(func(u *User) { ch <- u })
	defer unsubscribe()

	_, err := gw.SignUpWithPassword(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	require.NoError(t, gw.SignOut(ctx))

	got := collect(t, ch, 3)
	assert.Nil(t, got[0])
	require.NotNil(t, got[1])
	assert.Equal(t, "a@b.co", got[1].Email)
	assert.Nil(t, got[2])
}

func TestAnnouncedUserMatchesIDToken(t *testing.T) {
	gw, notifier, _ := newTestGateway(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		handle, err := gw.BeginPhoneVerification(ctx, "+79991234567", "token")
		require.NoError(t, err)
		msg, _ := notifier.Last(notification.KindSMSCode)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = gw.ConfirmPhoneCode(ctx, handle, msg.Secret)
		}()
		go func() {
			defer wg.Done()
			_ = gw.SignOut(ctx)
		}()
		wg.Wait()

		current := gw.state.Current()
		token, err := gw.IDToken(ctx)
		if err != nil {
			assert.Nil(t, current, "round %d", i)
			continue
		}
		require.NotNil(t, current, "round %d", i)
		claims, err := gw.ParseIDToken(token)
		require.NoError(t, err)
		assert.Equal(t, current.ID, claims["sub"], "round %d", i)
	}
}

func TestFixedCodeIsIssued(t *testing.T) {
	notifier := notification.NewRecordingNotifier()
	gw := NewMemoryGateway(MemoryConfig{FixedCode: "424242"}, notifier, logging.Discard())
	t.Cleanup(gw.Close)
	ctx := context.Background()

	handle, err := gw.BeginPhoneVerification(ctx, "+15551234567", "token")
	require.NoError(t, err)
	msg, _ := notifier.Last(notification.KindSMSCode)
	assert.Equal(t, "424242", msg.Secret)

	user, err := gw.ConfirmPhoneCode(ctx, handle, "424242")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", user.Phone)
}
