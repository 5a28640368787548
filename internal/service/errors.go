package service

import "errors"

// Sentinel errors surfaced to the HTTP layer. The handler maps these to
// status codes with errors.Is and never echoes which auth factor failed.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOTPNotFound        = errors.New("no verification code pending")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrOTPMismatch        = errors.New("verification code incorrect")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrDependency         = errors.New("service dependency unavailable")
)
