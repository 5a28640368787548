package models

import "time"

// OTPRecord is the ephemeral verification record kept per email.
// Only the hash of the code is stored, never the code itself.
type OTPRecord struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
