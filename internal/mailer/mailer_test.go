package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendz-app/auth-service/internal/config"
)

func TestStrictPolicy_PropagatesFailure(t *testing.T) {
	policy := PolicyForEnvironment("production")

	sendErr := errors.New("smtp: connection refused")
	err := policy.OnSendFailure("alice@example.com", "123456", sendErr)
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
}

func TestLoggingPolicy_SwallowsFailure(t *testing.T) {
	for _, environment := range []string{"development", "staging", ""} {
		policy := PolicyForEnvironment(environment)
		err := policy.OnSendFailure("alice@example.com", "123456", errors.New("smtp down"))
		assert.NoError(t, err, "environment %q must not propagate send failures", environment)
	}
}

func newDispatcherConfig() *config.Config {
	cfg := &config.Config{Environment: "development"}
	cfg.SMTP.Host = "127.0.0.1"
	cfg.SMTP.Port = 1
	cfg.SMTP.Sender = "noreply@trendz.app"
	return cfg
}

func TestSendOTP_StrictFailsWhenUndeliverable(t *testing.T) {
	d := NewSMTPDispatcher(newDispatcherConfig(), strictPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.SendOTP(ctx, "alice@example.com", "123456", time.Now().Add(10*time.Minute))
	assert.Error(t, err)
}

func TestSendOTP_LoggingSucceedsWhenUndeliverable(t *testing.T) {
	d := NewSMTPDispatcher(newDispatcherConfig(), loggingPolicy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.SendOTP(ctx, "alice@example.com", "123456", time.Now().Add(10*time.Minute))
	assert.NoError(t, err)
}
