package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "documents", cfg.Qdrant.Collection)
	assert.Equal(t, 1536, cfg.Qdrant.Dimensions)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "intent", cfg.Router.Mode)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.False(t, cfg.Session.Enabled)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  read_timeout: 45s
database:
  driver: sqlite
  name: dorm.db
llm:
  model: gpt-4o
router:
  mode: semantic
  routes:
    - name: dormitory
      decision: database
      samples:
        - "phòng ký túc xá"
session:
  enabled: true
  ttl: 12h
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.True(t, cfg.Session.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	require.Len(t, cfg.Router.Routes, 1)
	assert.Equal(t, "dormitory", cfg.Router.Routes[0].Name)
	assert.Equal(t, "database", cfg.Router.Routes[0].Decision)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 1536, cfg.Qdrant.Dimensions)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a: mapping"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DORMFLOW_SERVER_ADDR", ":7070")
	t.Setenv("DORMFLOW_SERVER_WRITE_TIMEOUT", "90s")
	t.Setenv("DORMFLOW_DATABASE_PORT", "3307")
	t.Setenv("DORMFLOW_SEARCH_RATE_PER_SEC", "0.5")
	t.Setenv("DORMFLOW_SESSION_ENABLED", "true")
	t.Setenv("DORMFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/dormflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, 0.5, cfg.Search.RatePerSec)
	assert.True(t, cfg.Session.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/dormflow.log"}, cfg.Log.OutputPaths)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600))
	t.Setenv("DORMFLOW_SERVER_ADDR", ":7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "env wins over file")
}

func TestLoadEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_ADDR", ":6060")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
}

func TestLoadInvalidEnvValue(t *testing.T) {
	t.Setenv("DORMFLOW_DATABASE_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DORMFLOW_DATABASE_PORT")
}

func TestLoadValidatorHook(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.LLM.APIKey == "" {
				return fmt.Errorf("llm.api_key is required")
			}
			return nil
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: "server.addr is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: `unsupported database driver "postgres"`,
		},
		{
			name:    "zero dimensions",
			mutate:  func(c *Config) { c.Qdrant.Dimensions = 0 },
			wantErr: "qdrant.dimensions must be positive",
		},
		{
			name: "dimension mismatch",
			mutate: func(c *Config) {
				c.Embedding.Dimensions = 768
				c.Qdrant.Dimensions = 1536
			},
			wantErr: "embedding.dimensions must match qdrant.dimensions",
		},
		{
			name:    "unknown router mode",
			mutate:  func(c *Config) { c.Router.Mode = "keyword" },
			wantErr: `unsupported router mode "keyword"`,
		},
		{
			name: "semantic mode without routes",
			mutate: func(c *Config) {
				c.Router.Mode = "semantic"
				c.Router.Routes = nil
			},
			wantErr: "semantic router mode requires at least one route",
		},
		{
			name: "route without samples",
			mutate: func(c *Config) {
				c.Router.Routes = []SemanticRouteConfig{{Name: "dormitory", Decision: "database"}}
			},
			wantErr: `route "dormitory" has no samples`,
		},
		{
			name:    "non-positive top_k",
			mutate:  func(c *Config) { c.Retrieval.TopK = 0 },
			wantErr: "retrieval.top_k must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "dorm", Password: "secret", Host: "db.internal", Port: 3306, Name: "dormitory"}
	assert.Equal(t, "dorm:secret@tcp(db.internal:3306)/dormitory?charset=utf8mb4&parseTime=True&loc=Local", d.DSN())
}
