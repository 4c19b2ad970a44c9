package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/skilldeck/telemetry/pkg/observability"
)

// Config holds all daemon configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Aggregation configuration
	Aggregation AggregationConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// ListenAddr is the ingest/query API address. Must be loopback: the
	// API is unauthenticated and trusts local callers only.
	ListenAddr string

	// OpsAddr serves health probes and the Prometheus endpoint.
	OpsAddr string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig holds event database configuration
type StorageConfig struct {
	// DBPath is the SQLite database file path.
	DBPath string
}

// AggregationConfig holds daily rollup scheduling configuration
type AggregationConfig struct {
	// Schedule is a cron expression for the daily rollup run.
	Schedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:      getEnv("TELEMETRY_LISTEN_ADDR", "127.0.0.1:19823"),
			OpsAddr:         getEnv("TELEMETRY_OPS_ADDR", "127.0.0.1:19824"),
			ReadTimeout:     getEnvDuration("TELEMETRY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("TELEMETRY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("TELEMETRY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("TELEMETRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			DBPath: getEnv("TELEMETRY_DB_PATH", "telemetry.db"),
		},
		Aggregation: AggregationConfig{
			Schedule: getEnv("TELEMETRY_AGGREGATE_SCHEDULE", "5 0 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("TELEMETRY_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("TELEMETRY_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if err := requireLoopback(c.Server.ListenAddr); err != nil {
		return fmt.Errorf("listen address: %w", err)
	}
	if c.Server.OpsAddr != "" {
		if err := requireLoopback(c.Server.OpsAddr); err != nil {
			return fmt.Errorf("ops address: %w", err)
		}
		if c.Server.OpsAddr == c.Server.ListenAddr {
			return fmt.Errorf("listen address and ops address must be different")
		}
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Aggregation.Schedule == "" {
		return fmt.Errorf("aggregation schedule is required")
	}
	return nil
}

// requireLoopback rejects addresses that would expose the API beyond
// the local machine.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("address %q is not loopback", addr)
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
