package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/trendz-app/auth-service/internal/client"
)

const otpIssuePrefix = "otp_issue:"

// RateLimitStore counts OTP issue requests per email inside a fixed window
type RateLimitStore struct {
	client *client.RedisClient
	window time.Duration
}

func NewRateLimitStore(client *client.RedisClient, window time.Duration) *RateLimitStore {
	return &RateLimitStore{client: client, window: window}
}

// RecordIssue bumps the counter for the email and returns the new count.
// The window resets from the most recent request.
func (s *RateLimitStore) RecordIssue(ctx context.Context, email string) (int64, error) {
	count, err := s.client.IncrWithExpire(ctx, otpIssuePrefix+email, s.window)
	if err != nil {
		return 0, fmt.Errorf("failed to record OTP issue: %w", err)
	}
	return count, nil
}

// Reset clears the counter, used after a successful verification
func (s *RateLimitStore) Reset(ctx context.Context, email string) error {
	if _, err := s.client.Del(ctx, otpIssuePrefix+email); err != nil {
		return fmt.Errorf("failed to reset OTP issue counter: %w", err)
	}
	return nil
}
