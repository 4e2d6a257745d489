package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // postgres | sqlite
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Backend     string `mapstructure:"backend"` // cli | gosseract
	Pdftoppm    string `mapstructure:"pdftoppm"`
	Tesseract   string `mapstructure:"tesseract"`
	Language    string `mapstructure:"language"`
	DPI         int    `mapstructure:"dpi"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxPages    int    `mapstructure:"max_pages"`
	TessdataDir string `mapstructure:"tessdata_dir"`
	PSM         int    `mapstructure:"psm"`
	OEM         int    `mapstructure:"oem"`
}

// PipelineConfig holds worker and default chunking configuration
type PipelineConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	StuckAfter      time.Duration `mapstructure:"stuck_after"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	EnableChunking     bool `mapstructure:"enable_chunking"`
	ChunkSize          int  `mapstructure:"chunk_size"`
	ChunkOverlap       int  `mapstructure:"chunk_overlap"`
	PreserveParagraphs bool `mapstructure:"preserve_paragraphs"`
	PreserveSentences  bool `mapstructure:"preserve_sentences"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	LocalRoot string `mapstructure:"local_root"`
	GCSEnable bool   `mapstructure:"gcs_enable"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// IngestConfig holds inbox watcher configuration
type IngestConfig struct {
	WatchRoots  []string      `mapstructure:"watch_roots"`
	Debounce    time.Duration `mapstructure:"debounce"`
	InitialScan bool          `mapstructure:"initial_scan"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

const envPrefix = "DOCREADER"

// LoadConfig loads configuration from defaults, an optional YAML file, and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	// legacy variable used by the db tooling
	if dsn := os.Getenv("DB_URL"); dsn != "" && os.Getenv(envPrefix+"_DATABASE_DSN") == "" {
		v.Set("database.dsn", dsn)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", time.Duration(0))

	v.SetDefault("server.grpc_addr", ":8080")

	v.SetDefault("ocr.backend", "cli")
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.batch_size", 4)
	v.SetDefault("ocr.max_pages", 0)
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.psm", 0)
	v.SetDefault("ocr.oem", 0)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.run_timeout", 10*time.Minute)
	v.SetDefault("pipeline.stuck_after", 15*time.Minute)
	v.SetDefault("pipeline.monitor_interval", time.Minute)
	v.SetDefault("pipeline.enable_chunking", true)
	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.preserve_paragraphs", true)
	v.SetDefault("pipeline.preserve_sentences", true)

	v.SetDefault("storage.local_root", "./uploads")
	v.SetDefault("storage.gcs_enable", false)
	v.SetDefault("storage.gcs_bucket", "")

	v.SetDefault("ingest.watch_roots", []string{})
	v.SetDefault("ingest.debounce", 500*time.Millisecond)
	v.SetDefault("ingest.initial_scan", false)

	v.SetDefault("log.level", "info")
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown database.driver %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "database.dsn (or DB_URL) is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError(CodeConfig, "server.grpc_addr is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return NewAppError(CodeConfig, "pipeline.workers must be at least 1", ErrInvalidInput)
	}
	if c.Pipeline.RunTimeout <= 0 {
		return NewAppError(CodeConfig, "pipeline.run_timeout must be positive", ErrInvalidInput)
	}
	if c.Pipeline.ChunkSize <= 0 {
		return NewAppError(CodeConfig, "pipeline.chunk_size must be positive", ErrInvalidConfiguration)
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return NewAppError(CodeConfig, "pipeline.chunk_overlap must be in [0, chunk_size)", ErrInvalidConfiguration)
	}
	switch c.OCR.Backend {
	case "", "cli", "gosseract":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown ocr.backend %q", c.OCR.Backend), ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError(CodeConfig, "ocr.dpi must be positive", ErrInvalidInput)
	}
	if c.Storage.GCSEnable && c.Storage.GCSBucket == "" {
		return NewAppError(CodeConfig, "storage.gcs_bucket is required when gcs is enabled", ErrInvalidInput)
	}
	return nil
}

// SlogLevel maps log.level to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
