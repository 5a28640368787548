package hashing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trendz-app/auth-service/internal/config"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	cfg := &config.Config{}
	cfg.OTP.CodeLength = 6
	cfg.OTP.TTL = 10 * time.Minute
	cfg.OTP.BcryptCost = bcrypt.MinCost
	return NewHasher(cfg)
}

func TestHashPassword_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	ok, err := h.ComparePassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.ComparePassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_Empty(t *testing.T) {
	h := newTestHasher(t)
	_, err := h.HashPassword("")
	assert.Error(t, err)
}

func TestComparePassword_MalformedHash(t *testing.T) {
	h := newTestHasher(t)
	_, err := h.ComparePassword("anything", "not-a-bcrypt-hash")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestGenerateOTP_FixedLength(t *testing.T) {
	h := newTestHasher(t)

	for i := 0; i < 100; i++ {
		code, err := h.GenerateOTP()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code %q contains non-digit", code)
		}
	}
}

func TestHashOTP_Deterministic(t *testing.T) {
	h := newTestHasher(t)

	first := h.HashOTP("123456")
	second := h.HashOTP("123456")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, h.HashOTP("123457"))
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	other, err := GenerateToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
