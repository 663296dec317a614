package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
mysql:
  host: db
  port: 3306
kafka:
  brokers: ["k1:9092", "k2:9092"]
user_service:
  base_url: http://users:8081
business:
  rpc_timeout: 2s
  max_retry_count: 3
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db", cfg.MySQL.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "http://users:8081", cfg.UserService.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Business.RPCTimeout)
	assert.Equal(t, 3, cfg.Business.MaxRetryCount)

	// defaults
	assert.Equal(t, "notification_topic", cfg.Kafka.Topic.Notification)
	assert.Equal(t, "INR", cfg.Business.DefaultCurrency)
	assert.Equal(t, 30*time.Second, cfg.Business.LockTTL)
	assert.Equal(t, uint32(5), cfg.UserService.Breaker.ConsecutiveFailures)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
mysql:
  host: db
`)
	t.Setenv("PAYTRANSFER_MYSQL_HOST", "override-host")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override-host", cfg.MySQL.Host)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
