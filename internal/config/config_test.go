package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ProviderLog, cfg.MailProvider)
	assert.Equal(t, "noreply@aviso.local", cfg.MailFrom)
	assert.Equal(t, 3, cfg.MailMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.MailRetryBase)
	assert.Equal(t, 100, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("MAIL_PROVIDER", "postmark")
	t.Setenv("POSTMARK_SERVER_TOKEN", "pm-token")
	t.Setenv("MAIL_MAX_ATTEMPTS", "5")
	t.Setenv("MAIL_RETRY_BASE_MS", "250")
	t.Setenv("RATE_LIMIT", "10")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, ProviderPostmark, cfg.MailProvider)
	assert.Equal(t, "pm-token", cfg.PostmarkServerToken)
	assert.Equal(t, 5, cfg.MailMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.MailRetryBase)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "not-a-number"},
		{"MAIL_PROVIDER", "carrier-pigeon"},
		{"MAIL_MAX_ATTEMPTS", "0"},
		{"MAIL_RETRY_BASE_MS", "-1"},
		{"RATE_LIMIT", "zero"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
