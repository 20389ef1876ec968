// Package contact classifies free-text sign-in input as an email address or
// a phone number and formats contacts for display.
package contact

import (
	"regexp"
	"strings"
	"unicode"
)

// Kind is the classification of a contact string.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmail
	KindPhone
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// IsEmail reports whether text has the local@domain.tld shape. Any Unicode
// whitespace disqualifies it; \s in the pattern only covers ASCII.
func IsEmail(text string) bool {
	if strings.IndexFunc(text, unicode.IsSpace) >= 0 {
		return false
	}
	return emailPattern.MatchString(text)
}

// IsPhone reports whether text, with whitespace removed, is an optional '+'
// followed by 1-16 digits with a non-zero first digit.
func IsPhone(text string) bool {
	return phonePattern.MatchString(stripSpace(text))
}

// Classify checks the email shape first, then the phone shape.
func Classify(text string) Kind {
	if IsEmail(text) {
		return KindEmail
	}
	if IsPhone(text) {
		return KindPhone
	}
	return KindUnknown
}

// NormalizePhone strips whitespace so the number can be sent to the identity
// backend.
func NormalizePhone(text string) string {
	return stripSpace(text)
}

// Mask hides the middle block of a phone number, keeping the three-digit
// prefix and the last four digits. Emails are returned unmodified.
func Mask(value string, kind Kind) string {
	if kind != KindPhone {
		return value
	}
	digits := make([]rune, 0, len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 8 {
		return value
	}
	return "+" + string(digits[:3]) + "***" + string(digits[len(digits)-4:])
}

func stripSpace(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
