package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazy-cooker/crazy_cooker/internal/app"
	"github.com/crazy-cooker/crazy_cooker/internal/config"
	"github.com/crazy-cooker/crazy_cooker/internal/i18n"
	"github.com/crazy-cooker/crazy_cooker/internal/identity"
	"github.com/crazy-cooker/crazy_cooker/internal/logging"
	"github.com/crazy-cooker/crazy_cooker/internal/notification"
	"github.com/crazy-cooker/crazy_cooker/internal/session"
	"github.com/crazy-cooker/crazy_cooker/internal/verify"
)

type stillTicker struct{ c chan time.Time }

func (t stillTicker) C() <-chan time.Time { return t.c }
func (t stillTicker) Stop()               {}

type stillClock struct{}

func (stillClock) NewTicker(time.Duration) verify.Ticker { return stillTicker{c: make(chan time.Time)} }

type harness struct {
	fiber    *fiber.App
	notifier *notification.RecordingNotifier
	store    *i18n.RedisStore
}

func newHarness(t *testing.T) harness {
	t.Helper()
	logger := logging.Discard()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	notifier := notification.NewRecordingNotifier()
	gw := identity.NewMemoryGateway(identity.MemoryConfig{TokenSecret: []byte("secret")}, notifier, logger)
	t.Cleanup(gw.Close)

	catalog, err := i18n.LoadEmbedded()
	require.NoError(t, err)
	store := i18n.NewRedisStore(cache, "test-device")
	translator, err := i18n.NewTranslator(catalog)
	require.NoError(t, err)
	lang := i18n.NewService(context.Background(), translator, store, "en_US", logger)
	sess := session.NewService(gw, identity.StaticChallenger{Token: "ok"}, logger)
	require.NoError(t, sess.WaitReady(context.Background()))

	application := app.New(lang, sess, stillClock{}, logger)
	t.Cleanup(application.Close)

	cfg := config.Config{AppName: "CrazyCooker", AppEnv: "test", Port: "0", SubmitLimitPerMinute: 20}
	srv := New(cfg, application, cache, logger)
	return harness{fiber: srv.App(), notifier: notifier, store: store}
}

func (h harness) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := h.fiber.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorOf(body map[string]any) (string, string) {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	msg, _ := e["message"].(string)
	return code, msg
}

func TestHealthAndPing(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, fiber.MethodGet, "/healthz", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"].(map[string]any)["redis"])

	status, body = h.do(t, fiber.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["request_id"])
}

func TestValidationErrorsAreTranslated(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, fiber.MethodPost, "/api/v1/auth/submit", `{"input":"hello"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	code, msg := errorOf(body)
	assert.Equal(t, "VALIDATION_ERROR", code)
	assert.Equal(t, "Please enter a valid email or phone number", msg)

	status, _ = h.do(t, fiber.MethodPut, "/api/v1/language", `{"code":"ru"}`)
	require.Equal(t, fiber.StatusOK, status)
	_, body = h.do(t, fiber.MethodPost, "/api/v1/auth/submit", `{"input":""}`)
	_, msg = errorOf(body)
	assert.NotEqual(t, "auth.pleaseEnterEmailOrPhone", msg)
	assert.NotContains(t, msg, "Please")

	status, body = h.do(t, fiber.MethodPut, "/api/v1/language", `{"code":"xx"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	_, msg = errorOf(body)
	assert.Contains(t, msg, "xx")

	code, found, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ru", code)
}

func TestEmailSignUpReachesTabs(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, fiber.MethodGet, "/api/v1/route", "")
	assert.Equal(t, "auth", body["route"])

	status, _ := h.do(t, fiber.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	_, body = h.do(t, fiber.MethodPost, "/api/v1/auth/mode", `{"mode":"sign_up"}`)
	assert.Equal(t, "sign_up", body["mode"])

	status, _ = h.do(t, fiber.MethodPost, "/api/v1/auth/submit", `{"input":"chef@crazy.cooker","password":"secret1"}`)
	require.Equal(t, fiber.StatusOK, status)

	require.Eventually(t, func() bool {
		_, body := h.do(t, fiber.MethodGet, "/api/v1/route", "")
		return body["route"] == "tabs"
	}, time.Second, 10*time.Millisecond)

	status, body = h.do(t, fiber.MethodGet, "/api/v1/session/token", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["id_token"])

	status, _ = h.do(t, fiber.MethodPost, "/api/v1/auth/email-verification", "")
	assert.Equal(t, fiber.StatusAccepted, status)
	_, ok := h.notifier.Last(notification.KindEmailVerification)
	assert.True(t, ok)

	status, _ = h.do(t, fiber.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestPhoneVerificationFlow(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, fiber.MethodPost, "/api/v1/auth/submit", `{"input":"+999 123 4567"}`)
	require.Equal(t, fiber.StatusAccepted, status)
	verification := body["verification"].(map[string]any)
	assert.Equal(t, "+999***4567", verification["contact"])
	assert.EqualValues(t, 60, verification["remaining"])

	status, body = h.do(t, fiber.MethodPost, "/api/v1/verification/confirm", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	code, _ := errorOf(body)
	assert.Equal(t, "VALIDATION_ERROR", code)

	status, body = h.do(t, fiber.MethodPost, "/api/v1/verification/resend", "")
	assert.Equal(t, fiber.StatusConflict, status)
	code, _ = errorOf(body)
	assert.Equal(t, "CONFLICT", code)

	msg, ok := h.notifier.Last(notification.KindSMSCode)
	require.True(t, ok)
	for i, r := range msg.Secret {
		status, body = h.do(t, fiber.MethodPut, "/api/v1/verification/cells/"+string(rune('0'+i)), `{"digit":"`+string(r)+`"}`)
		require.Equal(t, fiber.StatusOK, status)
	}
	assert.EqualValues(t, 5, body["focus"])
	assert.Equal(t, true, body["can_verify"])

	status, body = h.do(t, fiber.MethodPost, "/api/v1/verification/confirm", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Code verified successfully", body["message"])

	status, _ = h.do(t, fiber.MethodGet, "/api/v1/verification", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestTranslateAndLanguages(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, fiber.MethodGet, "/api/v1/translate?key=auth.resendIn&seconds=42", "")
	assert.Equal(t, "Resend Code (42s)", body["text"])

	_, body = h.do(t, fiber.MethodGet, "/api/v1/translate?key=missing.key", "")
	assert.Equal(t, "missing.key", body["text"])

	_, body = h.do(t, fiber.MethodGet, "/api/v1/languages", "")
	assert.Len(t, body["available"], 2)
	assert.Equal(t, "en", body["current"].(map[string]any)["code"])
	assert.Equal(t, false, body["rtl"])
}
