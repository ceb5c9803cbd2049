package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIConfig(t *testing.T) {
	t.Run("defaults with required env", func(t *testing.T) {
		t.Setenv("PLAYRANK_DATABASE_HOST", "localhost")
		t.Setenv("PLAYRANK_DATABASE_DBNAME", "playrank")

		cfg, err := LoadAPIConfig("", "testdata/")
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, "redis", cfg.Broadcast.Provider)
		assert.Equal(t, 24*time.Hour, cfg.Aggregator.DedupWindow)
		assert.Equal(t, 1000, cfg.Aggregator.BatchSize)
		assert.Equal(t, 10*time.Minute, cfg.Ranking.CacheTTL)
		assert.Equal(t, 30*time.Second, cfg.Ranking.RefreshGuardTTL)
		assert.Equal(t, 8, cfg.Ranking.UpsertWorkers)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PLAYRANK_DATABASE_HOST", "db.internal")
		t.Setenv("PLAYRANK_DATABASE_DBNAME", "playrank")
		t.Setenv("PLAYRANK_SERVER_PORT", "9090")
		t.Setenv("PLAYRANK_BROADCAST_PROVIDER", "nats")
		t.Setenv("PLAYRANK_RANKING_CACHE_TTL", "5m")
		t.Setenv("PLAYRANK_AGGREGATOR_BATCH_SIZE", "500")

		cfg, err := LoadAPIConfig("", "testdata/")
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "nats", cfg.Broadcast.Provider)
		assert.Equal(t, 5*time.Minute, cfg.Ranking.CacheTTL)
		assert.Equal(t, 500, cfg.Aggregator.BatchSize)
	})

	t.Run("missing database host fails", func(t *testing.T) {
		t.Setenv("PLAYRANK_DATABASE_HOST", "")
		t.Setenv("PLAYRANK_DATABASE_DBNAME", "playrank")

		_, err := LoadAPIConfig("", "testdata/")
		assert.ErrorContains(t, err, "database.host is required")
	})

	t.Run("unknown broadcast provider fails", func(t *testing.T) {
		t.Setenv("PLAYRANK_DATABASE_HOST", "localhost")
		t.Setenv("PLAYRANK_DATABASE_DBNAME", "playrank")
		t.Setenv("PLAYRANK_BROADCAST_PROVIDER", "carrier-pigeon")

		_, err := LoadAPIConfig("", "testdata/")
		assert.ErrorContains(t, err, "unsupported broadcast.provider")
	})
}

func TestChdirRepoRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/playrank-test\n"), 0600))

	nested := filepath.Join(root, "cmd", "api")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	ChdirRepoRoot()

	cwd, err := os.Getwd()
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		DBName:   "playrank",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=playrank sslmode=disable",
		cfg.DSN())
}
