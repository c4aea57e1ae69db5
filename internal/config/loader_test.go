package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studio-reminders/internal/application"
)

var allKeys = []string{
	"REMINDERS_HTTP_PORT",
	"REMINDERS_SQLITE_PATH",
	"REMINDERS_TIMEZONE",
	"REMINDERS_LOG_LEVEL",
	"REMINDERS_PUBLIC_BASE_URL",
	"REMINDERS_TOKEN_TTL",
	"REMINDERS_IMMINENT_LEAD",
	"REMINDERS_IMMINENT_TOLERANCE",
	"REMINDERS_MAX_CONCURRENCY",
	"REMINDERS_DEDUPE",
	"REMINDERS_CLAIM_TIMEOUT",
	"REMINDERS_TRIGGER_SECRET_HASH",
	"REMINDERS_PROVIDER",
	"REMINDERS_PROVIDER_URL",
	"REMINDERS_PROVIDER_API_KEY",
	"REMINDERS_SENDER_ADDRESS",
	"REMINDERS_AMQP_URL",
	"REMINDERS_AMQP_EXCHANGE",
	"REMINDERS_OTEL_ENDPOINT",
	"REMINDERS_OTEL_INSECURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func secretHash(t *testing.T) string {
	t.Helper()
	hash, err := application.CreateSecretHash("trigger", application.Argon2idParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16,
	})
	require.NoError(t, err)
	return hash
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REMINDERS_PUBLIC_BASE_URL", "https://studio.example.com")
	t.Setenv("REMINDERS_TRIGGER_SECRET_HASH", secretHash(t))
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.HTTPPort)
		assert.Equal(t, "reminders.db", cfg.SQLitePath)
		assert.Equal(t, time.UTC, cfg.Location())
		assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
		assert.Equal(t, 2*time.Hour, cfg.ImminentLead)
		assert.Equal(t, 30*time.Minute, cfg.ImminentTolerance)
		assert.Equal(t, 8, cfg.MaxConcurrency)
		assert.False(t, cfg.Dedupe)
		assert.Equal(t, 30*time.Minute, cfg.ClaimTimeout)
		assert.Equal(t, "log", cfg.Provider)
		assert.Equal(t, "reminders", cfg.AMQPExchange)
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t,
			"required environment variables are not set: REMINDERS_PUBLIC_BASE_URL, REMINDERS_TRIGGER_SECRET_HASH",
			err.Error())
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		setRequired(t)
		t.Setenv("REMINDERS_HTTP_PORT", "9090")
		t.Setenv("REMINDERS_SQLITE_PATH", "/tmp/reminders.db")
		t.Setenv("REMINDERS_TIMEZONE", "Australia/Sydney")
		t.Setenv("REMINDERS_TOKEN_TTL", "48h")
		t.Setenv("REMINDERS_IMMINENT_LEAD", "90m")
		t.Setenv("REMINDERS_MAX_CONCURRENCY", "16")
		t.Setenv("REMINDERS_DEDUPE", "true")
		t.Setenv("REMINDERS_CLAIM_TIMEOUT", "2h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.HTTPPort)
		assert.Equal(t, "/tmp/reminders.db", cfg.SQLitePath)
		assert.Equal(t, "Australia/Sydney", cfg.Location().String())
		assert.Equal(t, 48*time.Hour, cfg.TokenTTL)
		assert.Equal(t, 16, cfg.MaxConcurrency)
		assert.True(t, cfg.Dedupe)
		assert.Equal(t, 2*time.Hour, cfg.ClaimTimeout)

		selector := cfg.SelectorConfig()
		assert.Equal(t, 90*time.Minute, selector.ImminentLead)
		assert.Equal(t, 30*time.Minute, selector.ImminentTolerance)
	})

	t.Run("reports invalid values together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REMINDERS_PUBLIC_BASE_URL", "studio.example.com")
		t.Setenv("REMINDERS_TRIGGER_SECRET_HASH", "plaintext")
		t.Setenv("REMINDERS_TIMEZONE", "Mars/Olympus")
		t.Setenv("REMINDERS_PROVIDER", "pigeon")
		t.Setenv("REMINDERS_MAX_CONCURRENCY", "0")

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t,
			"environment variables have invalid values: REMINDERS_MAX_CONCURRENCY, REMINDERS_PROVIDER, "+
				"REMINDERS_PUBLIC_BASE_URL, REMINDERS_TIMEZONE, REMINDERS_TRIGGER_SECRET_HASH",
			err.Error())
	})

	t.Run("requires provider settings", func(t *testing.T) {
		clearEnv(t)
		setRequired(t)
		t.Setenv("REMINDERS_PROVIDER", "http")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REMINDERS_PROVIDER_URL, REMINDERS_SENDER_ADDRESS")
	})

	t.Run("rejects unparsable values", func(t *testing.T) {
		clearEnv(t)
		setRequired(t)
		t.Setenv("REMINDERS_TOKEN_TTL", "a week")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid environment")
	})
}
