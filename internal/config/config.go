// Package config loads settings from environment variables with defaults
// and validates them at startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Split    SplitConfig
	History  HistoryConfig
	Watch    WatchConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so progress streams stay open.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SplitConfig holds split job settings.
type SplitConfig struct {
	// MaxFileSize is the largest accepted input in bytes (default: 100MB)
	MaxFileSize int64 `env:"SPLIT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the number of jobs that may run at once (default: 4)
	MaxConcurrent int `env:"SPLIT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a job slot (default: 30s)
	MaxWaitTime time.Duration `env:"SPLIT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single job (default: 5m)
	Timeout time.Duration `env:"SPLIT_TIMEOUT" default:"5m"`

	// DefaultRows is rows per output file when a request gives none.
	// 0 picks a size from the row count.
	DefaultRows int `env:"SPLIT_DEFAULT_ROWS" default:"0"`

	// Workers builds chunks of one job in parallel (default: 1)
	Workers int `env:"SPLIT_WORKERS" default:"1"`

	// PreserveBOM repeats a source byte-order mark on every output (default: true)
	PreserveBOM bool `env:"SPLIT_PRESERVE_BOM" default:"true"`

	// OutputDir receives split output of uploaded files (default: output)
	OutputDir string `env:"SPLIT_OUTPUT_DIR" default:"output"`

	// InputDir is the root for API requests naming a server-side path.
	// Empty disables path requests; uploads still work.
	InputDir string `env:"SPLIT_INPUT_DIR"`

	// JobRetention is how long finished jobs stay queryable (default: 5m)
	JobRetention time.Duration `env:"SPLIT_JOB_RETENTION" default:"5m"`
}

// HistoryConfig holds split history settings. History is kept in
// PostgreSQL when DatabaseURL is set and in memory otherwise.
type HistoryConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// MemoryLimit caps the in-memory store (default: 500 entries)
	MemoryLimit int `env:"HISTORY_MEMORY_LIMIT" default:"500"`

	// RetentionDays is how long entries are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// PruneInterval is how often old entries are deleted (default: 24h)
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"24h"`
}

// Persistent reports whether history goes to PostgreSQL.
func (c HistoryConfig) Persistent() bool {
	return c.DatabaseURL != ""
}

// WatchConfig holds drop-folder settings. An empty Dir disables watching.
type WatchConfig struct {
	Dir      string        `env:"WATCH_DIR"`
	Rows     int           `env:"WATCH_ROWS" default:"0"`
	Debounce time.Duration `env:"WATCH_DEBOUNCE" default:"500ms"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute applies to every API route (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SplitLimit applies to split and inspect uploads (default: 10)
	SplitLimit int `env:"RATE_LIMIT_SPLIT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted X-API-Key values.
	APIKeys []string `env:"API_KEYS"`

	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
	EnableCSP     bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
