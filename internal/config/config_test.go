package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.Equal(t, 6, cfg.OTP.CodeLength)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 24*time.Hour, cfg.OTP.Retention)
	assert.Greater(t, cfg.OTP.Retention, cfg.OTP.TTL, "retention must outlast code validity")
	assert.Equal(t, "trendz_session", cfg.Session.CookieName)
	assert.Equal(t, "auth-events", cfg.Kafka.Topic)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
}
