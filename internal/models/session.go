package models

import (
	"time"

	"github.com/google/uuid"
)

// Session maps an opaque token (delivered via cookie) to a user id
type Session struct {
	Token     string    `json:"-"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthEvent is the audit record produced for every auth-flow transition
type AuthEvent struct {
	EventType string    `json:"event_type"`
	EmailHash string    `json:"email_hash"`
	UserID    string    `json:"user_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
