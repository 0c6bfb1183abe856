package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp switches to an empty temp dir so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gpse.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.Server.BaseURL)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Deck.Enabled)
	assert.Equal(t, "output_ppt", cfg.Deck.OutputDir)
	assert.Equal(t, 10*time.Second, cfg.Admin.ResetInterval)
	assert.True(t, cfg.Seed.Demo)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/hub
  max_conns: 4
log:
  level: debug
  format: console
server:
  port: 9090
admin:
  reset_interval: 1m
deck:
  enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/hub", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Admin.ResetInterval)
	assert.False(t, cfg.Deck.Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, "output_ppt", cfg.Deck.OutputDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("REPORTHUB_STORE_DRIVER", "postgres")
	t.Setenv("REPORTHUB_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("REPORTHUB_SERVER_PORT", "3000")
	t.Setenv("REPORTHUB_SERVER_CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REPORTHUB_DECK_OUTPUT_DIR=decks\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("REPORTHUB_DECK_OUTPUT_DIR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "decks", cfg.Deck.OutputDir)
}

func TestLoadInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("REPORTHUB_STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver failed oneof")
}

func validDefaults() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "gpse.db"},
		Server: ServerConfig{Port: 5000, BaseURL: "http://127.0.0.1:5000"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port failed gte"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port failed lte"},
		{"bad base url", func(c *Config) { c.Server.BaseURL = "not a url" }, "server.base_url failed url"},
		{"no database", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url failed required"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format failed oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
