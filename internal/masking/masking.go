// Package masking sanitizes tool results of personal data before they are
// returned to callers or written to the audit trail.
package masking

import (
	"regexp"
	"strings"
)

// Sensitivity controls how much of a matched value survives masking.
type Sensitivity string

const (
	// SensitivityStandard keeps the last four digits of phone, SSN and
	// card numbers.
	SensitivityStandard Sensitivity = "standard"
	// SensitivityStrict masks every digit.
	SensitivityStrict Sensitivity = "strict"
)

// ParseSensitivity maps a config string to a Sensitivity, defaulting to
// standard for unknown values.
func ParseSensitivity(s string) Sensitivity {
	if strings.EqualFold(strings.TrimSpace(s), string(SensitivityStrict)) {
		return SensitivityStrict
	}
	return SensitivityStandard
}

const maskedEmail = "***@***.com"

// Pattern order matters: email first (fixed literal replacement), then
// phone, SSN, card. Separators are required inside phone numbers so that
// SSNs (3-2-4) and card numbers (4-4-4-4) never partially match as phones.
var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(\+1[-.\s]?)?(\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`)
	ssnRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardRe  = regexp.MustCompile(`\b\d{4}[-\s]\d{4}[-\s]\d{4}[-\s]\d{4}\b|\b\d{16}\b`)
)

// sensitiveKeyTokens force string masking for map values whose key names
// look PII-bearing, regardless of whether the value matches a pattern.
var sensitiveKeyTokens = []string{"email", "phone", "ssn", "social", "credit", "card", "pii"}

// Mask returns a same-shaped copy of value with personal data redacted.
// It is pure and idempotent: Mask(Mask(x, s), s) == Mask(x, s). Inputs it
// does not understand (numbers, booleans, nil) pass through unchanged.
func Mask(value any, level Sensitivity) any {
	switch v := value.(type) {
	case string:
		return MaskString(v, level)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			masked := Mask(item, level)
			if isSensitiveKey(k) {
				if s, ok := masked.(string); ok {
					masked = MaskString(s, level)
				}
			}
			out[k] = masked
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Mask(item, level)
		}
		return out
	default:
		return value
	}
}

// MaskString applies the pattern substitutions to a single string. Text
// that matches no pattern passes through unchanged.
func MaskString(s string, level Sensitivity) string {
	if s == "" {
		return s
	}
	keep := 4
	if level == SensitivityStrict {
		keep = 0
	}
	out := emailRe.ReplaceAllString(s, maskedEmail)
	out = phoneRe.ReplaceAllStringFunc(out, func(m string) string { return maskDigits(m, keep) })
	out = ssnRe.ReplaceAllStringFunc(out, func(m string) string { return maskDigits(m, keep) })
	out = cardRe.ReplaceAllStringFunc(out, func(m string) string { return maskDigits(m, keep) })
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// maskDigits replaces every digit in match with '*' except the trailing
// keep digits, preserving the original punctuation layout.
func maskDigits(match string, keep int) string {
	runes := []rune(match)
	digits := 0
	for _, r := range runes {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	seen := 0
	for i, r := range runes {
		if r < '0' || r > '9' {
			continue
		}
		seen++
		if seen <= digits-keep {
			runes[i] = '*'
		}
	}
	return string(runes)
}
