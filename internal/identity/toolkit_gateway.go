package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crazy-cooker/crazy_cooker/internal/contact"
)

const (
	DefaultToolkitBaseURL = "https://identitytoolkit.googleapis.com"
	defaultToolkitTimeout = 15 * time.Second
	maxToolkitBody        = 1 << 20
)

// ToolkitConfig points the gateway at an Identity Toolkit compatible REST API.
type ToolkitConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ToolkitGateway talks to a hosted identity backend over its REST API. The
// ID token it receives is held in memory only. There is no refresh: once the
// backend rejects the token the session ends and the user signs in again.
type ToolkitGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
	state   *Broadcaster

	// mu also orders state announcements with idToken changes.
	mu      sync.RWMutex
	idToken string
}

// NewToolkitGateway validates cfg and builds a REST gateway.
func NewToolkitGateway(cfg ToolkitConfig, logger *slog.Logger) (*ToolkitGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identity api key is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultToolkitBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse identity base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultToolkitTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolkitGateway{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger,
		state:   NewBroadcaster(),
	}, nil
}

func (g *ToolkitGateway) Subscribe(fn func(*User)) func() {
	return g.state.Subscribe(fn)
}

func (g *ToolkitGateway) Close() {
	g.state.Close()
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhoneNumber string `json:"phoneNumber"`
	IDToken     string `json:"idToken"`
}

func (g *ToolkitGateway) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	var resp tokenResponse
	if err := g.call(ctx, "signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return g.establish(ctx, resp), nil
}

func (g *ToolkitGateway) SignUpWithPassword(ctx context.Context, email, password string) (*User, error) {
	var resp tokenResponse
	if err := g.call(ctx, "signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return g.establish(ctx, resp), nil
}

// SignOut drops the local session; the backend keeps no client state.
func (g *ToolkitGateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idToken = ""
	g.state.Set(nil)
	return nil
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email,omitempty"`
	IDToken     string `json:"idToken,omitempty"`
}

func (g *ToolkitGateway) SendPasswordReset(ctx context.Context, email string) error {
	return g.call(ctx, "sendOobCode", oobRequest{RequestType: "PASSWORD_RESET", Email: email}, nil)
}

func (g *ToolkitGateway) SendEmailVerification(ctx context.Context) error {
	token, err := g.IDToken(ctx)
	if err != nil {
		return err
	}
	err = g.call(ctx, "sendOobCode", oobRequest{RequestType: "VERIFY_EMAIL", IDToken: token}, nil)
	if CodeOf(err) == CodeTokenExpired {
		g.expire(token)
	}
	return err
}

// expire ends the session if token is still the current one.
func (g *ToolkitGateway) expire(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idToken != token {
		return
	}
	g.idToken = ""
	g.state.Set(nil)
	g.logger.Info("identity.session_expired")
}

func (g *ToolkitGateway) BeginPhoneVerification(ctx context.Context, phone, challengeToken string) (string, error) {
	req := struct {
		PhoneNumber    string `json:"phoneNumber"`
		RecaptchaToken string `json:"recaptchaToken"`
	}{PhoneNumber: contact.NormalizePhone(phone), RecaptchaToken: challengeToken}
	var resp struct {
		SessionInfo string `json:"sessionInfo"`
	}
	if err := g.call(ctx, "sendVerificationCode", req, &resp); err != nil {
		return "", err
	}
	if resp.SessionInfo == "" {
		return "", &GatewayError{Code: CodeInternal, Message: "The identity service returned no verification session."}
	}
	return resp.SessionInfo, nil
}

func (g *ToolkitGateway) ConfirmPhoneCode(ctx context.Context, handle, code string) (*User, error) {
	req := struct {
		SessionInfo string `json:"sessionInfo"`
		Code        string `json:"code"`
	}{SessionInfo: handle, Code: code}
	var resp tokenResponse
	if err := g.call(ctx, "signInWithPhoneNumber", req, &resp); err != nil {
		return nil, err
	}
	return g.establish(ctx, resp), nil
}

func (g *ToolkitGateway) IDToken(_ context.Context) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.idToken == "" {
		return "", ErrNoCurrentUser
	}
	return g.idToken, nil
}

// establish stores the returned token, resolves the account attributes and
// announces the new user. The announcement is skipped when a sign-out or
// another sign-in replaced the token during the lookup.
func (g *ToolkitGateway) establish(ctx context.Context, resp tokenResponse) *User {
	g.mu.Lock()
	g.idToken = resp.IDToken
	g.mu.Unlock()

	user := userFromClaims(resp.IDToken)
	if user.ID == "" {
		user.ID = resp.LocalID
	}
	if resp.Email != "" {
		user.Email = resp.Email
	}
	if resp.DisplayName != "" {
		user.DisplayName = resp.DisplayName
	}
	if resp.PhoneNumber != "" {
		user.Phone = resp.PhoneNumber
	}

	if looked, err := g.lookup(ctx, resp.IDToken); err != nil {
		g.logger.Warn("identity.lookup failed, using token claims", slog.Any("error", err))
	} else {
		user = mergeUser(user, looked)
	}

	g.mu.Lock()
	if g.idToken == resp.IDToken {
		g.state.Set(&user)
	}
	g.mu.Unlock()
	return user.Clone()
}

func (g *ToolkitGateway) lookup(ctx context.Context, idToken string) (User, error) {
	var resp struct {
		Users []struct {
			LocalID       string `json:"localId"`
			Email         string `json:"email"`
			EmailVerified bool   `json:"emailVerified"`
			DisplayName   string `json:"displayName"`
			PhoneNumber   string `json:"phoneNumber"`
		} `json:"users"`
	}
	if err := g.call(ctx, "lookup", struct {
		IDToken string `json:"idToken"`
	}{IDToken: idToken}, &resp); err != nil {
		return User{}, err
	}
	if len(resp.Users) == 0 {
		return User{}, &GatewayError{Code: CodeUserNotFound, Message: "There is no user record corresponding to this token."}
	}
	u := resp.Users[0]
	return User{ID: u.LocalID, Email: u.Email, EmailVerified: u.EmailVerified, DisplayName: u.DisplayName, Phone: u.PhoneNumber}, nil
}

func mergeUser(base, looked User) User {
	if looked.ID != "" {
		base.ID = looked.ID
	}
	if looked.Email != "" {
		base.Email = looked.Email
	}
	if looked.DisplayName != "" {
		base.DisplayName = looked.DisplayName
	}
	if looked.Phone != "" {
		base.Phone = looked.Phone
	}
	base.EmailVerified = looked.EmailVerified
	return base
}

// userFromClaims reads account attributes from an ID token. The signature is
// not checked here; the token came straight from the backend over TLS.
func userFromClaims(token string) User {
	if token == "" {
		return User{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return User{}
	}
	var u User
	if sub, err := claims.GetSubject(); err == nil {
		u.ID = sub
	}
	if v, ok := claims["user_id"].(string); ok && v != "" {
		u.ID = v
	}
	u.Email, _ = claims["email"].(string)
	u.EmailVerified, _ = claims["email_verified"].(bool)
	u.Phone, _ = claims["phone_number"].(string)
	u.DisplayName, _ = claims["name"].(string)
	return u
}

type toolkitErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *ToolkitGateway) call(ctx context.Context, method string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &GatewayError{Code: CodeInternal, Message: "An internal error occurred.", Cause: err}
	}
	endpoint := fmt.Sprintf("%s/v1/accounts:%s?key=%s", g.baseURL, method, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &GatewayError{Code: CodeInternal, Message: "An internal error occurred.", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &GatewayError{Code: CodeNetwork, Message: "A network error occurred. Check your connection and try again.", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxToolkitBody))
	if err != nil {
		return &GatewayError{Code: CodeNetwork, Message: "A network error occurred. Check your connection and try again.", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		var eb toolkitErrorBody
		if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Message == "" {
			return &GatewayError{Code: CodeInternal, Message: fmt.Sprintf("The identity service returned status %d.", resp.StatusCode)}
		}
		g.logger.Debug("identity.call rejected", slog.String("method", method), slog.Int("status", resp.StatusCode), slog.String("reason", eb.Error.Message))
		return toolkitError(eb.Error.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &GatewayError{Code: CodeInternal, Message: "The identity service returned an unreadable response.", Cause: err}
	}
	return nil
}

// toolkitError maps a backend reason such as "WEAK_PASSWORD : Password
// should be at least 6 characters" to a GatewayError.
func toolkitError(reason string) *GatewayError {
	code, detail, _ := strings.Cut(reason, ":")
	code = strings.TrimSpace(code)
	detail = strings.TrimSpace(detail)

	switch code {
	case "EMAIL_EXISTS":
		return &GatewayError{Code: CodeEmailExists, Message: "The email address is already in use by another account."}
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return &GatewayError{Code: CodeInvalidCredential, Message: "The email or password is incorrect."}
	case "USER_DISABLED":
		return &GatewayError{Code: CodeUserDisabled, Message: "This account has been disabled."}
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return &GatewayError{Code: CodeInvalidEmail, Message: "The email address is badly formatted."}
	case "WEAK_PASSWORD":
		msg := "Password should be at least 6 characters."
		if detail != "" {
			msg = strings.TrimSuffix(detail, ".") + "."
		}
		return &GatewayError{Code: CodeWeakPassword, Message: msg}
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return &GatewayError{Code: CodeTooManyRequests, Message: "Too many attempts. Try again later."}
	case "INVALID_PHONE_NUMBER", "MISSING_PHONE_NUMBER":
		return &GatewayError{Code: CodeInvalidPhone, Message: "The phone number is invalid."}
	case "INVALID_CODE", "MISSING_CODE":
		return &GatewayError{Code: CodeInvalidCode, Message: "The verification code is invalid."}
	case "SESSION_EXPIRED", "CODE_EXPIRED":
		return &GatewayError{Code: CodeCodeExpired, Message: "The verification code has expired. Request a new one."}
	case "INVALID_SESSION_INFO", "MISSING_SESSION_INFO":
		return &GatewayError{Code: CodeInvalidHandle, Message: "The verification session is invalid. Request a new code."}
	case "CAPTCHA_CHECK_FAILED", "MISSING_RECAPTCHA_TOKEN", "INVALID_RECAPTCHA_TOKEN":
		return &GatewayError{Code: CodeChallengeFailed, Message: "The anti-abuse check failed. Try again."}
	case "QUOTA_EXCEEDED":
		return &GatewayError{Code: CodeQuotaExceeded, Message: "The SMS quota for this project has been exceeded."}
	case "INVALID_ID_TOKEN", "TOKEN_EXPIRED", "USER_NOT_FOUND":
		return &GatewayError{Code: CodeTokenExpired, Message: "Your session has expired. Sign in again."}
	}
	if detail != "" {
		return &GatewayError{Code: CodeInternal, Message: detail}
	}
	return &GatewayError{Code: CodeInternal, Message: reason}
}

// IsNetwork reports whether err came from the transport rather than the
// backend.
func IsNetwork(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Code == CodeNetwork
}
