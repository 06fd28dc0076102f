package env

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("VAULT_TEST_VALUE", "set")
	assert.Equal(t, "set", Get("VAULT_TEST_VALUE", "default"))
	assert.Equal(t, "default", Get("VAULT_TEST_MISSING", "default"))
}

func TestGetInt(t *testing.T) {
	t.Setenv("VAULT_TEST_INT", "42")
	t.Setenv("VAULT_TEST_BAD_INT", "forty-two")
	assert.Equal(t, 42, GetInt("VAULT_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("VAULT_TEST_BAD_INT", 1))
	assert.Equal(t, 1, GetInt("VAULT_TEST_MISSING_INT", 1))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("VAULT_TEST_DUR", "750ms")
	t.Setenv("VAULT_TEST_BAD_DUR", "soon")
	assert.Equal(t, 750*time.Millisecond, GetDuration("VAULT_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetDuration("VAULT_TEST_BAD_DUR", time.Second))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.raw)
			assert.Equal(t, tt.want, ParseLogLevel(slog.LevelWarn))
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")
	var buf bytes.Buffer

	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
