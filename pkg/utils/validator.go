package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// NormalizeCurrency upper-cases and trims an ISO 4217 code and validates its shape
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyRegex.MatchString(code) {
		return "", fmt.Errorf("currency must be a 3-letter code, got %q", code)
	}
	return code, nil
}

// SanitizeString trims s and removes control characters other than tab and newline
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}

// NormalizeEmail lower-cases and trims an email address and checks its shape
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return "", fmt.Errorf("invalid email address %q", email)
	}
	return email, nil
}
