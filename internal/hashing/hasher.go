package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/trendz-app/auth-service/internal/config"
)

var ErrMalformedHash = errors.New("malformed password hash")

// Hasher handles password hashing and OTP code generation/hashing
type Hasher struct {
	cost       int
	codeLength int
}

func NewHasher(cfg *config.Config) *Hasher {
	cost := cfg.OTP.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{
		cost:       cost,
		codeLength: cfg.OTP.CodeLength,
	}
}

// HashPassword hashes a raw password using bcrypt with the configured cost
func (h *Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// ComparePassword verifies a raw password against a bcrypt hash. A mismatch
// returns (false, nil); only a malformed hash yields an error.
func (h *Hasher) ComparePassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// GenerateOTP produces a fixed-length, zero-padded numeric code
func (h *Hasher) GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < h.codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	code := n.String()
	if pad := h.codeLength - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}

// HashOTP returns the hex SHA-256 digest stored in place of the code
func (h *Hasher) HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a random hex string of the given byte length,
// used for opaque session tokens
func GenerateToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
