// Package config provides configuration management for clipcast.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for clipcast.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Publisher PublisherConfig `mapstructure:"publisher" yaml:"publisher"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Sessions  SessionsConfig  `mapstructure:"sessions" yaml:"sessions"`
	Content   ContentConfig   `mapstructure:"content" yaml:"content"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host" yaml:"host"`

	// Port to listen on
	Port int `mapstructure:"port" yaml:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size" yaml:"max_body_size"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path" yaml:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode" yaml:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys" yaml:"foreign_keys"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level" yaml:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format" yaml:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller" yaml:"caller"`
}

// SchedulerConfig controls trigger registration and recovery.
type SchedulerConfig struct {
	// IANA timezone used for schedules that do not carry their own (empty = Local)
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	// Run one catch-up cycle for schedules that missed a fire while the process was down
	Catchup bool `mapstructure:"catchup" yaml:"catchup"`

	// How long Stop waits for in-flight cycles
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PipelineConfig controls a single cycle's fan-out.
type PipelineConfig struct {
	// Maximum concurrent publish attempts within one cycle
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`

	// Upper bound for a whole cycle, content generation included
	CycleTimeout time.Duration `mapstructure:"cycle_timeout" yaml:"cycle_timeout"`
}

// PublisherConfig controls individual publish attempts.
type PublisherConfig struct {
	// Bound for navigation and submission on one account
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BrowserConfig configures the Chrome instances launched per publish attempt.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	ExecPath  string `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// SessionsConfig locates the per-account browser profiles.
type SessionsConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// ContentConfig configures the AI content service.
type ContentConfig struct {
	// Text provider: gemini, openai or none
	Provider string `mapstructure:"provider" yaml:"provider"`

	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`

	// Endpoint that turns a prompt into a downloadable video URL
	MediaEndpoint string `mapstructure:"media_endpoint" yaml:"media_endpoint"`

	// Per-call timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Maximum provider calls per minute (0 = unlimited)
	RatePerMinute int `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// StorageConfig selects where media files live.
type StorageConfig struct {
	// Backend type: filesystem or s3
	Type string `mapstructure:"type" yaml:"type"`

	// Base directory for the filesystem backend
	Path string `mapstructure:"path" yaml:"path"`

	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	BucketPrefix    string `mapstructure:"bucket_prefix" yaml:"bucket_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
