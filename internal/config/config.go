// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidFrameWorkers is returned when FRAME_WORKERS is below 1.
	ErrInvalidFrameWorkers = errors.New("config: FRAME_WORKERS must be at least 1")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is below 1.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be at least 1")
	// ErrIncompleteS3 is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrIncompleteS3 = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int `env:"MAX_UPLOAD_MB, default=100" json:"max_upload_mb"`

	// Storage settings
	UploadDir string `env:"UPLOAD_DIR, default=/tmp/artstyle/uploads" json:"upload_dir"`
	ResultDir string `env:"RESULT_DIR, default=/tmp/artstyle/results" json:"result_dir"`
	TempDir   string `env:"TEMP_DIR, default=/tmp/artstyle/tmp" json:"temp_dir"`

	// Retention settings
	UploadRetention time.Duration `env:"UPLOAD_RETENTION, default=2h" json:"upload_retention"`
	ResultRetention time.Duration `env:"RESULT_RETENTION, default=48h" json:"result_retention"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL, default=1h" json:"cleanup_interval"`

	// Processing settings
	FFmpegPath   string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath  string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	FrameWorkers int    `env:"FRAME_WORKERS, default=1" json:"frame_workers"`
	KMeansSeed   uint64 `env:"KMEANS_SEED, default=42" json:"kmeans_seed"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.FrameWorkers < 1 {
		return ErrInvalidFrameWorkers
	}
	if c.MaxUploadMB < 1 {
		return ErrInvalidUploadLimit
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrIncompleteS3
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, UploadDir: %s, ResultDir: %s, TempDir: %s, FrameWorkers: %d, KMeansSeed: %d, MaxUploadMB: %d, UploadRetention: %s, ResultRetention: %s, CleanupInterval: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.UploadDir,
		c.ResultDir,
		c.TempDir,
		c.FrameWorkers,
		c.KMeansSeed,
		c.MaxUploadMB,
		c.UploadRetention,
		c.ResultRetention,
		c.CleanupInterval,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
