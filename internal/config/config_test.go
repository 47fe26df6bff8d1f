package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.SaveInterval)
	assert.Equal(t, 24*time.Hour, cfg.Snapshot.StaleAfter)
	assert.Equal(t, 100, cfg.Upstream.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Upstream.PageDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Resolver.LookupDelay)
	assert.Equal(t, 50, cfg.Resolver.MaxBatch)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadExpandsEnvAndKeepsExplicitValues(t *testing.T) {
	t.Setenv("FC_REDIS_ADDR", "redis.internal:6380")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 8081
cache:
  max_entries: 500
  ttl: 2h
redis:
  enabled: true
  addr: ${FC_REDIS_ADDR}
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
	// untouched sections still receive defaults
	assert.Equal(t, "data", cfg.Snapshot.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := PostgresConfig{User: "fc", Password: "pw", Host: "db", Port: 5433, Database: "ranks"}
	assert.Equal(t, "postgres://fc:pw@db:5433/ranks?sslmode=disable", cfg.ConnectionString())
}
