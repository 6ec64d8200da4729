package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoragePostgres, cfg.StorageDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 12*time.Hour, cfg.TokenTTL)
	require.True(t, cfg.OAuth.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, ,broker-2:9092 ")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("DLQ_MAX_RETRIES", "not-a-number")
	t.Setenv("OAUTH_SCOPES", "openid")

	cfg := Load()

	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, StorageMemory, cfg.StorageDriver)
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, []string{"openid"}, cfg.OAuth.Scopes)
}

func TestOAuthEnabledRequiresEndpoints(t *testing.T) {
	require.False(t, OAuthConfig{ClientID: "client"}.Enabled())
}
