// Package otp runs phone login: number normalization, the client-side SMS
// rate limit and the login step machine.
package otp

import (
	"strings"
	"unicode"
)

const countryPrefix = "+32"

// NormalizePhone turns free-form input into the canonical +32XXXXXXXXX key.
// Any other or partial country prefix is replaced by +32. It returns "" when
// the input has no digits.
func NormalizePhone(input string) string {
	input = strings.TrimSpace(input)
	plus := strings.HasPrefix(input, "+")

	var b strings.Builder
	for _, r := range input {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		plus = true
	}

	switch {
	case strings.HasPrefix(digits, "32") && (plus || len(digits) >= 11):
		digits = digits[2:]
	case plus && len(digits) > 9:
		// Foreign prefix: keep the subscriber part.
		digits = digits[len(digits)-9:]
	}
	digits = strings.TrimPrefix(digits, "0")

	return countryPrefix + digits
}

// ValidPhone reports whether canonical has 11 or 12 digits including the
// country code.
func ValidPhone(canonical string) bool {
	if !strings.HasPrefix(canonical, countryPrefix) {
		return false
	}
	digits := canonical[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(digits) >= 11 && len(digits) <= 12
}

// FormatPhone groups a canonical number for display, e.g. +32 470 12 34 56.
func FormatPhone(canonical string) string {
	if !strings.HasPrefix(canonical, countryPrefix) {
		return canonical
	}
	national := canonical[len(countryPrefix):]

	var groups []int
	switch len(national) {
	case 9:
		groups = []int{3, 2, 2, 2}
	case 8:
		groups = []int{1, 3, 2, 2}
	default:
		return countryPrefix + " " + national
	}

	parts := []string{countryPrefix}
	for _, n := range groups {
		parts = append(parts, national[:n])
		national = national[n:]
	}
	return strings.Join(parts, " ")
}
