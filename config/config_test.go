package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/config"
)

func withoutEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	withoutEnvFile(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "chunked", cfg.DedupStrategy)
	assert.Equal(t, 500*time.Millisecond, cfg.ArchiveMinDelay)
	assert.Equal(t, 30*time.Minute, cfg.SyncLockTTL)
	assert.Equal(t, 0.6, cfg.BreakerFailureRatio)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	withoutEnvFile(t)
	t.Setenv("PORT", "8080")
	t.Setenv("DEDUP_STRATEGY", "staging")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ARCHIVE_RETRY_TIMEOUT", "20s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "staging", cfg.DedupStrategy)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokerList())
	assert.Equal(t, 20*time.Second, cfg.ArchiveRetryTimeout)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ARCHIVE_USER_AGENT=FromFile/2.0\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv("ARCHIVE_USER_AGENT") })

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "FromFile/2.0", cfg.ArchiveUserAgent)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown dedup strategy", env: map[string]string{"DEDUP_STRATEGY": "bloom"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "queue without redis", env: map[string]string{"QUEUE_ENABLED": "true", "REDIS_ENABLED": "false"}},
		{name: "auth without issuer", env: map[string]string{"AUTH_ENABLED": "true"}},
		{name: "bad otlp protocol", env: map[string]string{"OTLP_PROTOCOL": "udp"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withoutEnvFile(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := config.Config{
		DatabaseHost:     "db",
		DatabasePort:     "5433",
		DatabaseUserName: "chess",
		DatabasePassword: "secret",
		DatabaseName:     "chessism",
		DatabaseSSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5433 user=chess password=secret dbname=chessism sslmode=disable", cfg.DatabaseDSN())
}
