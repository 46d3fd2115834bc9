// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Dispatch DispatchConfig
	Database DatabaseConfig
	Events   EventsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// BackendConfig holds settings for the order-management API batches submit into.
type BackendConfig struct {
	// BaseURL is the order-management service root, e.g. https://orders.example.com (required)
	BaseURL string `env:"BACKEND_BASE_URL" required:"true"`

	// APIKey is the bearer token for the order-management API.
	// Leave empty when the backend does not require auth.
	APIKey string `env:"BACKEND_API_KEY"`

	// Timeout is the per-call HTTP timeout (default: 15s)
	Timeout time.Duration `env:"BACKEND_TIMEOUT" default:"15s"`
}

// DispatchConfig holds batch processing settings.
type DispatchConfig struct {
	// Workers is the number of lines submitted in parallel per batch (default: 4)
	Workers int `env:"DISPATCH_WORKERS" default:"4"`

	// LineTimeout is the remote budget for one line's API calls (default: 2m)
	LineTimeout time.Duration `env:"DISPATCH_LINE_TIMEOUT" default:"2m"`

	// MaxConcurrentBatches is the number of batches that may run at once (default: 3)
	MaxConcurrentBatches int `env:"DISPATCH_MAX_CONCURRENT_BATCHES" default:"3"`

	// MaxSlotWait is how long a new batch waits for a slot before rejection (default: 15s)
	MaxSlotWait time.Duration `env:"DISPATCH_MAX_SLOT_WAIT" default:"15s"`

	// BatchTimeout is the maximum wall time for a single batch run (default: 10m)
	BatchTimeout time.Duration `env:"DISPATCH_BATCH_TIMEOUT" default:"10m"`

	// ResultRetention is how long finished batch results stay queryable (default: 30m)
	ResultRetention time.Duration `env:"DISPATCH_RESULT_RETENTION" default:"30m"`
}

// DatabaseConfig holds batch history database settings.
// History recording is optional: when URL is empty the service runs
// without persistence.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string for batch history.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// HistoryRetention is how long recorded batches are kept (default: 2160h = 90 days)
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" default:"2160h"`

	// HistorySweepInterval is how often old batches are purged (default: 24h)
	HistorySweepInterval time.Duration `env:"HISTORY_SWEEP_INTERVAL" default:"24h"`
}

// EventsConfig holds Kafka batch-event settings.
// Publishing is optional: with no brokers configured no events are emitted.
type EventsConfig struct {
	// Brokers is a comma-separated list of Kafka broker addresses.
	Brokers []string `env:"KAFKA_BROKERS"`

	// Topic is the topic batch events are written to (default: dispatch.batches)
	Topic string `env:"KAFKA_TOPIC" default:"dispatch.batches"`
}

// Enabled reports whether batch events should be published.
func (c *EventsConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// BatchLimit is requests per minute for batch-start endpoints (default: 10)
	BatchLimit int `env:"RATE_LIMIT_BATCH" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey gates the API behind X-API-Key auth (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
