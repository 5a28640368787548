package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// NormalizeEmail lowercases and trims an email address so the same mailbox
// always maps to the same OTP and user record
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
