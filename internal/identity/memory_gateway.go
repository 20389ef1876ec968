package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crazy-cooker/crazy_cooker/internal/contact"
	"github.com/crazy-cooker/crazy_cooker/internal/notification"
)

const (
	minPasswordLength = 6
	phoneCodeLength   = 6
	defaultCodeTTL    = 5 * time.Minute
	defaultTokenTTL   = time.Hour
)

// MemoryConfig tunes the in-memory backend.
type MemoryConfig struct {
	CodeTTL     time.Duration
	TokenTTL    time.Duration
	TokenSecret []byte
	Now         func() time.Time
	// FixedCode, when set, is issued for every phone verification so a
	// local setup can sign in without reading SMS.
	FixedCode string
}

type account struct {
	user         User
	passwordHash []byte
	createdAt    time.Time
}

type pendingCode struct {
	phone     string
	code      string
	expiresAt time.Time
}

// MemoryGateway is a self-contained identity backend used in development and
// tests. Accounts live only for the life of the process.
type MemoryGateway struct {
	// mu guards the maps and idToken. state.Set is called with mu held.
	mu           sync.RWMutex
	byEmail      map[string]*account
	byPhone      map[string]*account
	pending      map[string]pendingCode
	idToken      string
	cfg          MemoryConfig
	notifier     notification.Notifier
	logger       *slog.Logger
	state        *Broadcaster
	generateCode func() (string, error)
}

// NewMemoryGateway builds an empty in-memory identity backend.
func NewMemoryGateway(cfg MemoryConfig, notifier notification.Notifier, logger *slog.Logger) *MemoryGateway {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if len(cfg.TokenSecret) == 0 {
		cfg.TokenSecret = []byte(uuid.NewString())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	generate := randomCode
	if cfg.FixedCode != "" {
		fixed := cfg.FixedCode
		generate = func() (string, error) { return fixed, nil }
	}
	return &MemoryGateway{
		byEmail:      make(map[string]*account),
		byPhone:      make(map[string]*account),
		pending:      make(map[string]pendingCode),
		cfg:          cfg,
		notifier:     notifier,
		logger:       logger,
		state:        NewBroadcaster(),
		generateCode: generate,
	}
}

func (g *MemoryGateway) Subscribe(fn func(*User)) func() {
	return g.state.Subscribe(fn)
}

// Close stops delivering state changes.
func (g *MemoryGateway) Close() {
	g.state.Close()
}

// SignUpWithPassword creates an account with a hashed password and signs it in.
func (g *MemoryGateway) SignUpWithPassword(_ context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if !contact.IsEmail(email) {
		return nil, &GatewayError{Code: CodeInvalidEmail, Message: "The email address is badly formatted."}
	}
	if len(password) < minPasswordLength {
		return nil, &GatewayError{Code: CodeWeakPassword, Message: fmt.Sprintf("Password should be at least %d characters.", minPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &GatewayError{Code: CodeInternal, Message: "An internal error occurred.", Cause: err}
	}

	g.mu.Lock()
	if _, exists := g.byEmail[email]; exists {
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeEmailExists, Message: "The email address is already in use by another account."}
	}
	acc := &account{
		user:         User{ID: uuid.NewString(), Email: email},
		passwordHash: hash,
		createdAt:    g.cfg.Now().UTC(),
	}
	g.byEmail[email] = acc
	user, err := g.signInLocked(acc)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g.logger.Info("identity.sign_up", slog.String("user_id", user.ID))
	return user.Clone(), nil
}

// SignInWithPassword verifies the password hash and signs the account in.
func (g *MemoryGateway) SignInWithPassword(_ context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)

	g.mu.Lock()
	acc, ok := g.byEmail[email]
	if !ok || acc.passwordHash == nil {
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeInvalidCredential, Message: "The email or password is incorrect."}
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeInvalidCredential, Message: "The email or password is incorrect."}
	}
	user, err := g.signInLocked(acc)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g.logger.Info("identity.sign_in", slog.String("user_id", user.ID))
	return user.Clone(), nil
}

func (g *MemoryGateway) SignOut(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idToken = ""
	g.state.Set(nil)
	return nil
}

func (g *MemoryGateway) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	g.mu.RLock()
	_, ok := g.byEmail[email]
	g.mu.RUnlock()
	if !ok {
		return &GatewayError{Code: CodeUserNotFound, Message: "There is no user record corresponding to this email."}
	}
	token := uuid.NewString()
	return g.send(ctx, notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: email,
		Body:        "Reset your Crazy Cooker password: oob=" + token,
		Secret:      token,
	})
}

func (g *MemoryGateway) SendEmailVerification(ctx context.Context) error {
	current := g.state.Current()
	if current == nil {
		return ErrNoCurrentUser
	}
	if current.Email == "" {
		return &GatewayError{Code: CodeInvalidEmail, Message: "The signed-in account has no email address."}
	}
	token := uuid.NewString()
	return g.send(ctx, notification.Message{
		Kind:        notification.KindEmailVerification,
		Destination: current.Email,
		Body:        "Verify your Crazy Cooker email: oob=" + token,
		Secret:      token,
	})
}

// BeginPhoneVerification issues a six-digit code over SMS and returns the
// handle that correlates it with ConfirmPhoneCode.
func (g *MemoryGateway) BeginPhoneVerification(ctx context.Context, phone, challengeToken string) (string, error) {
	if strings.TrimSpace(challengeToken) == "" {
		return "", &GatewayError{Code: CodeMissingChallenge, Message: "The anti-abuse check could not be completed."}
	}
	phone = contact.NormalizePhone(phone)
	if !contact.IsPhone(phone) {
		return "", &GatewayError{Code: CodeInvalidPhone, Message: "The phone number is invalid."}
	}

	code, err := g.generateCode()
	if err != nil {
		return "", &GatewayError{Code: CodeInternal, Message: "An internal error occurred.", Cause: err}
	}
	handle := uuid.NewString()

	g.mu.Lock()
	g.pending[handle] = pendingCode{phone: phone, code: code, expiresAt: g.cfg.Now().Add(g.cfg.CodeTTL)}
	g.mu.Unlock()

	err = g.send(ctx, notification.Message{
		Kind:        notification.KindSMSCode,
		Destination: phone,
		Body:        "Your Crazy Cooker verification code is " + code,
		Secret:      code,
	})
	if err != nil {
		g.mu.Lock()
		delete(g.pending, handle)
		g.mu.Unlock()
		return "", err
	}
	return handle, nil
}

// ConfirmPhoneCode exchanges a handle and code for a signed-in account,
// creating the account on first use of the number.
func (g *MemoryGateway) ConfirmPhoneCode(_ context.Context, handle, code string) (*User, error) {
	g.mu.Lock()
	pc, ok := g.pending[handle]
	if !ok {
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeInvalidHandle, Message: "The verification session is invalid. Request a new code."}
	}
	if g.cfg.Now().After(pc.expiresAt) {
		delete(g.pending, handle)
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeCodeExpired, Message: "The verification code has expired. Request a new one."}
	}
	if pc.code != code {
		g.mu.Unlock()
		return nil, &GatewayError{Code: CodeInvalidCode, Message: "The verification code is invalid."}
	}
	delete(g.pending, handle)

	acc, exists := g.byPhone[pc.phone]
	if !exists {
		acc = &account{
			user:      User{ID: uuid.NewString(), Phone: pc.phone},
			createdAt: g.cfg.Now().UTC(),
		}
		g.byPhone[pc.phone] = acc
	}
	user, err := g.signInLocked(acc)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g.logger.Info("identity.phone_confirmed", slog.String("user_id", user.ID), slog.Bool("new_account", !exists))
	return user.Clone(), nil
}

// IDToken returns the signed token of the current session.
func (g *MemoryGateway) IDToken(_ context.Context) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.idToken == "" {
		return "", ErrNoCurrentUser
	}
	return g.idToken, nil
}

// ParseIDToken verifies a token issued by this gateway and returns its claims.
func (g *MemoryGateway) ParseIDToken(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.cfg.TokenSecret, nil
	}, jwt.WithTimeFunc(g.cfg.Now))
	if err != nil {
		return nil, &GatewayError{Code: CodeTokenExpired, Message: "Your session has expired. Sign in again.", Cause: err}
	}
	return claims, nil
}

// signInLocked issues a token for acc and announces it. The caller holds
// g.mu so announcements follow the same order as idToken writes.
func (g *MemoryGateway) signInLocked(acc *account) (*User, error) {
	now := g.cfg.Now()
	claims := jwt.MapClaims{
		"sub":            acc.user.ID,
		"user_id":        acc.user.ID,
		"email":          acc.user.Email,
		"email_verified": acc.user.EmailVerified,
		"phone_number":   acc.user.Phone,
		"iat":            now.Unix(),
		"exp":            now.Add(g.cfg.TokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.cfg.TokenSecret)
	if err != nil {
		return nil, &GatewayError{Code: CodeInternal, Message: "An internal error occurred.", Cause: err}
	}
	g.idToken = signed
	user := acc.user.Clone()
	g.state.Set(user)
	return user.Clone(), nil
}

func (g *MemoryGateway) send(ctx context.Context, msg notification.Message) error {
	if err := g.notifier.Send(ctx, msg); err != nil {
		return &GatewayError{Code: CodeNetwork, Message: "The message could not be delivered. Try again.", Cause: err}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < phoneCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", phoneCodeLength, n), nil
}
