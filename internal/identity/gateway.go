// Package identity is the boundary to the external identity backend. The
// backend owns credentials, token issuance, SMS delivery and the anti-abuse
// challenge; this package only calls it and reports what it says.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the set of operations the identity backend offers. Every state
// change (sign-in, sign-up, phone confirmation, sign-out) is announced to
// subscribers; none of the operations return session state to be stored by
// the caller.
type Gateway interface {
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)
	SignUpWithPassword(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	SendEmailVerification(ctx context.Context) error
	BeginPhoneVerification(ctx context.Context, phone, challengeToken string) (string, error)
	ConfirmPhoneCode(ctx context.Context, handle, code string) (*User, error)
	IDToken(ctx context.Context) (string, error)

	// Subscribe registers fn for user-state changes. fn first receives the
	// current state, then every later change, in order, on its own goroutine.
	Subscribe(fn func(*User)) (unsubscribe func())
}

// Challenger produces the anti-abuse token the backend requires before it
// sends an SMS code.
type Challenger interface {
	Challenge(ctx context.Context) (string, error)
}

// StaticChallenger hands out a preconfigured token.
type StaticChallenger struct {
	Token string
}

func (s StaticChallenger) Challenge(_ context.Context) (string, error) {
	if s.Token == "" {
		return "", &GatewayError{Code: CodeMissingChallenge, Message: "The anti-abuse check could not be completed."}
	}
	return s.Token, nil
}

const (
	CodeInvalidCredential = "invalid-credential"
	CodeEmailExists       = "email-already-in-use"
	CodeInvalidEmail      = "invalid-email"
	CodeWeakPassword      = "weak-password"
	CodeUserNotFound      = "user-not-found"
	CodeUserDisabled      = "user-disabled"
	CodeInvalidPhone      = "invalid-phone-number"
	CodeInvalidCode       = "invalid-verification-code"
	CodeCodeExpired       = "code-expired"
	CodeInvalidHandle     = "invalid-verification-id"
	CodeMissingChallenge  = "missing-app-credential"
	CodeChallengeFailed   = "captcha-check-failed"
	CodeTooManyRequests   = "too-many-requests"
	CodeQuotaExceeded     = "quota-exceeded"
	CodeNoCurrentUser     = "no-current-user"
	CodeTokenExpired      = "user-token-expired"
	CodeNetwork           = "network-request-failed"
	CodeInternal          = "internal-error"
)

// ErrNoCurrentUser is returned by operations that need a signed-in user.
var ErrNoCurrentUser = &GatewayError{Code: CodeNoCurrentUser, Message: "No user is currently signed in."}

// GatewayError is a rejection from the identity backend. Message is meant
// for display.
type GatewayError struct {
	Code    string
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("identity %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("identity %s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

func (e *GatewayError) HumanMessage() string { return e.Message }

// Is matches gateway errors by code.
func (e *GatewayError) Is(target error) bool {
	var other *GatewayError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf returns the gateway code carried by err, or "".
func CodeOf(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
