package notification

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// KindSMSCode carries a phone verification code.
	KindSMSCode = "sms_code"
	// KindPasswordReset carries a password reset link.
	KindPasswordReset = "password_reset"
	// KindEmailVerification carries an email verification link.
	KindEmailVerification = "email_verification"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	// Secret is the code or token embedded in Body. It is never logged.
	Secret string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

const secretMask = "******"

// Send writes the message to the structured logger with Secret masked out
// of the body.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", maskSecret(message.Body, message.Secret))
	return nil
}

func maskSecret(body, secret string) string {
	if secret == "" {
		return body
	}
	return strings.ReplaceAll(body, secret, secretMask)
}

// RecordingNotifier keeps every message in memory so tests can read back
// issued codes.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// FailWith makes subsequent sends return err. Passing nil restores delivery.
func (n *RecordingNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *RecordingNotifier) Send(_ context.Context, message Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

// Messages returns a copy of everything sent so far.
func (n *RecordingNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// Last returns the most recent message of the given kind.
func (n *RecordingNotifier) Last(kind string) (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.messages) - 1; i >= 0; i-- {
		if n.messages[i].Kind == kind {
			return n.messages[i], true
		}
	}
	return Message{}, false
}
