package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "OUTBREAK_"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Game      GameConfig      `envPrefix:"GAME_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Telemetry TelemetryConfig `envPrefix:"OTEL_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Env  string `env:"ENV" envDefault:"development"` // "development" or "production"

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// AllowedOrigin is sent as Access-Control-Allow-Origin. Empty allows any.
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`
}

// GameConfig holds the timings clients and the janitor use
type GameConfig struct {
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"5s"`
	BlackoutGrace     time.Duration `env:"BLACKOUT_GRACE" envDefault:"2s"`
	RevealDelay       time.Duration `env:"REVEAL_DELAY" envDefault:"3s"`
	VoteTimeout       time.Duration `env:"VOTE_TIMEOUT" envDefault:"0s"` // 0 disables
	StaleAfter        time.Duration `env:"STALE_AFTER" envDefault:"30s"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"` // "json" or "text"
}

// StorageConfig configures relay persistence. An empty path keeps the
// document in memory only.
type StorageConfig struct {
	Path string `env:"PATH"`
}

// TelemetryConfig configures tracing export. Tracing is off without an
// endpoint.
type TelemetryConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"outbreak"`
}

// Load loads configuration from OUTBREAK_* environment variables with defaults
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return nil, fmt.Errorf("invalid log format %q", cfg.Logging.Format)
	}
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}
