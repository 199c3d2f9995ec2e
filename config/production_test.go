package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ADMIN_API_KEY_HASHES", "ops:$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("BILLING_TIMEZONE", "UTC")
}

func TestLoadProductionConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)

		assert.Equal(t, 2*time.Hour, cfg.Assignment.FirstContactSLA)
		assert.Equal(t, 4*time.Hour, cfg.Assignment.ReassignmentSLA)
		assert.Equal(t, 5*24*time.Hour, cfg.Billing.GracePeriod)
		assert.Equal(t, 25, cfg.Billing.LateSignupDay)
		assert.Equal(t, "ACC-", cfg.Billing.AccountNumberPrefix)
		assert.Equal(t, 10, cfg.Quote.MaxResults)
		assert.Equal(t, "mock", cfg.WhatsApp.Provider)
		assert.False(t, cfg.Kafka.Enabled)
		assert.Equal(t, []string{"ops:$2a$10$abcdefghijklmnopqrstuv"}, cfg.Security.AdminAPIKeyHashes)
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ASSIGNMENT_FIRST_CONTACT_SLA", "90m")
		t.Setenv("QUOTE_MAX_INSURED_VALUE", "1500000.50")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
		t.Setenv("DB_PORT", "not-a-number")

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)

		assert.Equal(t, 90*time.Minute, cfg.Assignment.FirstContactSLA)
		assert.Equal(t, "1500000.5", cfg.Quote.MaxInsuredValue.String())
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, 5432, cfg.Database.Port)
	})

	t.Run("DotEnvDoesNotOverrideEnvironment", func(t *testing.T) {
		setRequiredEnv(t)
		envFile := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("DB_NAME=from_file\nBILLING_LATE_SIGNUP_DAY=20\n"), 0o600))
		t.Setenv("ENV_FILE", envFile)
		t.Setenv("DB_NAME", "from_env")
		t.Cleanup(func() { _ = os.Unsetenv("BILLING_LATE_SIGNUP_DAY") })

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)

		assert.Equal(t, "from_env", cfg.Database.Name)
		assert.Equal(t, 20, cfg.Billing.LateSignupDay)
	})

	t.Run("ValidationFailures", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ADMIN_API_KEY_HASHES", "")
		t.Setenv("BILLING_TIMEZONE", "Mars/Olympus_Mons")
		t.Setenv("WHATSAPP_PROVIDER", "cloud")
		t.Setenv("S3_ENABLED", "true")

		_, err := LoadProductionConfig()
		require.Error(t, err)

		msg := err.Error()
		for _, want := range []string{
			"ADMIN_API_KEY_HASHES is required",
			"BILLING_TIMEZONE is invalid",
			"WHATSAPP_PHONE_NUMBER_ID is required",
			"S3_BUCKET is required",
		} {
			assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
		}
	})
}

func TestDatabaseConfig(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss word", Name: "cotizabot", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=app password=p@ss word dbname=cotizabot sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/cotizabot?sslmode=disable", cfg.URL())
}

func TestCacheConfigKey(t *testing.T) {
	assert.Equal(t, "cotizabot:insurers:active", CacheConfig{RedisPrefix: "cotizabot"}.Key("insurers:active"))
	assert.Equal(t, "insurers:active", CacheConfig{}.Key("insurers:active"))
}
