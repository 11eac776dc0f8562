package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1 * 1024 * 1024 // 1MB

	// Database defaults.
	DefaultDBPath       = "clipcast.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Scheduling defaults.
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxParallel     = 4
	DefaultCycleTimeout    = 30 * time.Minute
	DefaultPublishTimeout  = 5 * time.Minute

	// Sessions default to the same location the browser profiles have always used.
	DefaultSessionsRoot = "/tmp/chrome-profiles"

	// Content defaults.
	DefaultContentProvider = "none"
	DefaultContentTimeout  = 2 * time.Minute
	DefaultRatePerMinute   = 30

	// Storage defaults.
	DefaultStorageType = "filesystem"
	DefaultStoragePath = "uploads"

	DefaultMetricsPath = "/metrics"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Caller: false,
		},
		Scheduler: SchedulerConfig{
			Timezone:        "",
			Catchup:         false,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Pipeline: PipelineConfig{
			MaxParallel:  DefaultMaxParallel,
			CycleTimeout: DefaultCycleTimeout,
		},
		Publisher: PublisherConfig{
			Timeout: DefaultPublishTimeout,
		},
		Browser: BrowserConfig{
			Headless:  false,
			NoSandbox: true,
		},
		Sessions: SessionsConfig{
			Root: DefaultSessionsRoot,
		},
		Content: ContentConfig{
			Provider:      DefaultContentProvider,
			Timeout:       DefaultContentTimeout,
			RatePerMinute: DefaultRatePerMinute,
		},
		Storage: StorageConfig{
			Type: DefaultStorageType,
			Path: DefaultStoragePath,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}
