package util

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":    zapcore.DebugLevel,
		"info":     zapcore.InfoLevel,
		"warn":     zapcore.WarnLevel,
		"warning":  zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"fatal":    zapcore.FatalLevel,
		"":         zapcore.InfoLevel,
		"nonsense": zapcore.InfoLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLogLevel(input), "level %q", input)
	}
}

func TestInit_FirstCallWins(t *testing.T) {
	first := Init("development", "debug", "console")
	second := Init("production", "error", "json")
	assert.Same(t, first, second)
	assert.Same(t, first, Get())
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, zap.String("k", "v"), String("k", "v"))
	assert.Equal(t, zap.Bool("k", true), Bool("k", true))
	assert.Equal(t, zap.Int("k", 7), Int("k", 7))
	assert.Equal(t, zap.Duration("k", time.Second), Duration("k", time.Second))

	err := errors.New("boom")
	assert.Equal(t, zap.Error(err), ErrorField(err))
}
