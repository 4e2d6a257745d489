package common

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "")
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.Server.GRPCAddr)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.True(t, cfg.Pipeline.EnableChunking)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.Debounce)

	// no DSN yet
	require.Error(t, cfg.Validate())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docreader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: file:test.db
pipeline:
  chunk_size: 600
  chunk_overlap: 60
log:
  level: debug
`), 0o644))
	t.Setenv("DOCREADER_PIPELINE_WORKERS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 600, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 60, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfig_LegacyDBURL(t *testing.T) {
	t.Setenv("DB_URL", "postgres://u:p@localhost:5432/docs")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/docs", cfg.Database.DSN)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		t.Setenv("DB_URL", "")
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		cfg.Database.DSN = "postgres://localhost/docs"
		return cfg
	}

	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"workers":       func(c *Config) { c.Pipeline.Workers = 0 },
		"chunk size":    func(c *Config) { c.Pipeline.ChunkSize = 0 },
		"overlap":       func(c *Config) { c.Pipeline.ChunkOverlap = c.Pipeline.ChunkSize },
		"ocr backend":   func(c *Config) { c.OCR.Backend = "cloud" },
		"gcs no bucket": func(c *Config) { c.Storage.GCSEnable = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSlogLevel_Unknown(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "chatty"}}
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
