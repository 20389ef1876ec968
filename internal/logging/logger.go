package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted lists attribute keys whose values never reach the log output.
var redacted = map[string]struct{}{
	"password":      {},
	"code":          {},
	"secret":        {},
	"token":         {},
	"id_token":      {},
	"refresh_token": {},
}

// New creates a JSON slog logger on stdout configured at the provided level.
// If the level string is invalid it defaults to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn/warning and error to a slog level.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return slog.LevelWarn
	default:
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return slog.LevelInfo
		}
		return lvl
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redacted[strings.ToLower(a.Key)]; ok && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
