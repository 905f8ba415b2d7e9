package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNumber is returned when a phone number cannot be
// normalized to E.164.
var ErrInvalidNumber = errors.New("invalid phone number")

// NormalizeNumber converts a raw phone number to E.164. US defaults
// apply: 10 digits gain +1, 11 digits with a leading 1 gain +. Numbers
// already carrying + pass through after digit validation.
func NormalizeNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidNumber
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := digitsOnly(trimmed)

	switch {
	case hasPlus:
		if len(digits) < 8 || len(digits) > 15 {
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		return "+" + digits, nil
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
}

// FormatForDisplay renders a normalized US number as (XXX) XXX-XXXX.
// Non-US or unexpected formats are returned unchanged.
func FormatForDisplay(e164 string) string {
	if !strings.HasPrefix(e164, "+1") {
		return e164
	}
	digits := digitsOnly(e164)
	if len(digits) != 11 {
		return e164
	}
	return fmt.Sprintf("(%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
}

// digitsOnly strips every non-digit rune.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
