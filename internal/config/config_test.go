package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a", "b"}, CSV(" a, ,b ,"))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WORKHUB_TEST_STR", "value")
	t.Setenv("WORKHUB_TEST_INT", "42")
	t.Setenv("WORKHUB_TEST_BAD_INT", "x")
	t.Setenv("WORKHUB_TEST_DUR", "90s")
	t.Setenv("WORKHUB_TEST_BAD_DUR", "-1s")
	t.Setenv("WORKHUB_TEST_BOOL", "true")
	t.Setenv("WORKHUB_TEST_BAD_BOOL", "maybe")

	assert.Equal(t, "value", EnvDefault("WORKHUB_TEST_STR", "def"))
	assert.Equal(t, "def", EnvDefault("WORKHUB_TEST_MISSING", "def"))
	assert.Equal(t, 42, EnvIntDefault("WORKHUB_TEST_INT", 1))
	assert.Equal(t, 1, EnvIntDefault("WORKHUB_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, EnvDurationDefault("WORKHUB_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, EnvDurationDefault("WORKHUB_TEST_BAD_DUR", time.Minute))
	assert.True(t, EnvBoolDefault("WORKHUB_TEST_BOOL", false))
	assert.False(t, EnvBoolDefault("WORKHUB_TEST_BAD_BOOL", false))
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "access")
	t.Setenv("JWT_REFRESH_SECRET", "refresh")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("JWT_ACCESS_TTL", "")

	cfg := Load()

	require.True(t, cfg.IsDevelopment())
	assert.Equal(t, []byte("access"), cfg.JWTAccessSecret)
	assert.Equal(t, []byte("refresh"), cfg.JWTRefreshSecret)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "user_events", cfg.KafkaTopic)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.WSRequireAuth)
	assert.Equal(t, time.Hour, cfg.RefreshPruneInterval)
}
