package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/models"
	"github.com/trendz-app/auth-service/internal/util"
)

const otpPrefix = "otp:"

var (
	ErrOTPNotFound = errors.New("no active OTP record")
	ErrOTPExpired  = errors.New("OTP record expired")
	ErrOTPMismatch = errors.New("OTP code mismatch")
)

// otpPayload is the wire form kept in Redis. Timestamps are unix seconds so
// the consume script can compare them inside Redis.
type otpPayload struct {
	CodeHash  string `json:"code_hash"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// consumeScript performs the atomic check-and-consume. Replay under
// concurrent validation attempts is impossible: the first matching call
// deletes the record, later calls see not_found. An expired record is
// deleted on sight so it reports expired exactly once, not_found after.
const consumeScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
    return 'not_found'
end
local rec = cjson.decode(raw)
if tonumber(ARGV[2]) >= tonumber(rec.expires_at) then
    redis.call('DEL', KEYS[1])
    return 'expired'
end
if rec.code_hash ~= ARGV[1] then
    return 'mismatch'
end
redis.call('DEL', KEYS[1])
return 'ok'
`

// OTPStore keeps one active verification record per email. The Redis key
// TTL is the retention window, longer than the code's validity, so a
// recently expired code still reports Expired instead of NotFound.
type OTPStore struct {
	client    *client.RedisClient
	retention time.Duration
}

func NewOTPStore(client *client.RedisClient, retention time.Duration) *OTPStore {
	return &OTPStore{client: client, retention: retention}
}

// Save stores the record keyed by email, replacing any pending record.
// Issuing a new code implicitly invalidates the old one.
func (s *OTPStore) Save(ctx context.Context, record *models.OTPRecord) error {
	payload := otpPayload{
		CodeHash:  record.CodeHash,
		CreatedAt: record.CreatedAt.Unix(),
		ExpiresAt: record.ExpiresAt.Unix(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	key := otpPrefix + record.Email
	if err := s.client.Set(ctx, key, raw, s.retention); err != nil {
		util.Error("Failed to store OTP record",
			zap.String("email", record.Email),
			zap.Error(err))
		return fmt.Errorf("failed to store OTP record: %w", err)
	}

	util.Debug("OTP record stored",
		zap.String("email", record.Email),
		zap.Time("expires_at", record.ExpiresAt))
	return nil
}

// Consume validates codeHash against the stored record and removes it on
// success, as a single atomic operation in Redis. A mismatch leaves the
// record in place.
func (s *OTPStore) Consume(ctx context.Context, email, codeHash string, now time.Time) error {
	key := otpPrefix + email

	result, err := s.client.Eval(ctx, consumeScript, []string{key}, codeHash, now.Unix())
	if err != nil {
		util.Error("Failed to execute OTP consume script",
			zap.String("email", email),
			zap.Error(err))
		return fmt.Errorf("failed to consume OTP: %w", err)
	}

	status, ok := result.(string)
	if !ok {
		return fmt.Errorf("unexpected result from OTP consume script: %v", result)
	}

	switch status {
	case "ok":
		util.Debug("OTP consumed", zap.String("email", email))
		return nil
	case "not_found":
		return ErrOTPNotFound
	case "expired":
		return ErrOTPExpired
	case "mismatch":
		return ErrOTPMismatch
	default:
		return fmt.Errorf("unknown OTP consume status: %s", status)
	}
}

// Get returns the pending record for an email, if any. Used for
// introspection and tests, never for validation.
func (s *OTPStore) Get(ctx context.Context, email string) (*models.OTPRecord, error) {
	raw, err := s.client.Get(ctx, otpPrefix+email)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to get OTP record: %w", err)
	}

	var payload otpPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}

	return &models.OTPRecord{
		Email:     email,
		CodeHash:  payload.CodeHash,
		CreatedAt: time.Unix(payload.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(payload.ExpiresAt, 0).UTC(),
	}, nil
}

// Delete discards any pending record for the email
func (s *OTPStore) Delete(ctx context.Context, email string) error {
	if _, err := s.client.Del(ctx, otpPrefix+email); err != nil {
		return fmt.Errorf("failed to delete OTP record: %w", err)
	}
	return nil
}
