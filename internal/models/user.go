package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the Trendz identity record. The password hash never crosses the
// HTTP boundary: handlers must call Sanitize before serializing a user.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Bio          string    `json:"bio" db:"bio"`
	AvatarURL    string    `json:"avatar_url,omitempty" db:"avatar_url"`
	Followers    int       `json:"followers" db:"followers"`
	Following    int       `json:"following" db:"following"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Sanitize returns a copy safe for any external-facing serialization
func (u *User) Sanitize() *User {
	if u == nil {
		return nil
	}
	clean := *u
	clean.PasswordHash = ""
	return &clean
}
