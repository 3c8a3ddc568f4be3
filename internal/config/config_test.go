package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/querysql"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eavq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "open", cfg.Paths.Tier)
	assert.Equal(t, "sqlite3", cfg.Store.Dialect)
	assert.Equal(t, "eavq.db", cfg.Store.Database)
	assert.Equal(t, "schema", cfg.Schema)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, pathres.DefaultPolicy(), policy)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
paths:
  tier: pro
  maxDepth: 5
store:
  dialect: postgresql
  dsn: postgres://localhost/eavq
log:
  level: debug
schema: defs
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, pathres.Policy{Tier: pathres.TierPro, MaxDepth: 5}, policy)

	dialect, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, querysql.Postgres, dialect)
	assert.Equal(t, "postgres://localhost/eavq", cfg.Store.DSN)
	assert.Equal(t, "defs", cfg.Schema)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "paths:\n  tier: open\nstore:\n  database: file.db\n")
	t.Setenv("EAVQ_PATHS_TIER", "pro")
	t.Setenv("EAVQ_STORE_DATABASE", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pro", cfg.Paths.Tier)
	assert.Equal(t, "env.db", cfg.Store.Database)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"tier", "paths:\n  tier: gold\n", "paths: unknown tier"},
		{"negative depth", "paths:\n  tier: pro\n  maxDepth: -1\n", "maxDepth must not be negative"},
		{"dialect", "store:\n  dialect: oracle\n", "store: unknown dialect"},
		{"level", "log:\n  level: loud\n", `log: unknown level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})
}
