// Package config loads server/client configuration from the environment,
// mirroring the teacher's own caarlos0/env + godotenv + zerolog pattern
// (ws/config.go) adapted to NetworkTables' own knobs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// ServerConfig holds the server's environment-driven configuration.
type ServerConfig struct {
	Addr string `env:"NT_ADDR" envDefault:":5810"`

	MaxConnections  int           `env:"NT_MAX_CONNECTIONS" envDefault:"512"`
	MinFlushMs      int           `env:"NT_MIN_FLUSH_MS" envDefault:"100"`
	ShutdownGrace   time.Duration `env:"NT_SHUTDOWN_GRACE" envDefault:"30s"`
	ClientQueueSize int           `env:"NT_CLIENT_QUEUE_SIZE" envDefault:"256"`

	PersistPath string `env:"NT_PERSIST_PATH" envDefault:"networktables.ini"`

	KafkaBrokers string `env:"NT_DATALOG_BROKERS" envDefault:""`
	KafkaTopic   string `env:"NT_DATALOG_TOPIC" envDefault:"networktables-datalog"`

	CPURejectThreshold float64 `env:"NT_CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64 `env:"NT_CPU_PAUSE_THRESHOLD" envDefault:"80.0"`

	MaxConnectRate float64 `env:"NT_MAX_CONNECT_RATE" envDefault:"50"`

	MetricsAddr string `env:"NT_METRICS_ADDR" envDefault:":9810"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// ClientConfig holds the client's environment-driven configuration.
type ClientConfig struct {
	ServerAddr    string        `env:"NT_SERVER_ADDR" envDefault:"localhost:5810"`
	Identity      string        `env:"NT_CLIENT_NAME" envDefault:"networktables-client"`
	QueueSize     int           `env:"NT_CLIENT_QUEUE_SIZE" envDefault:"256"`
	ReconnectWait time.Duration `env:"NT_RECONNECT_WAIT" envDefault:"2s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadServerConfig reads a ServerConfig from .env and the environment,
// the same precedence order as the teacher's LoadConfig: ENV vars take
// priority over the .env file, which takes priority over defaults.
func LoadServerConfig(logger *zerolog.Logger) (*ServerConfig, error) {
	loadDotEnv(logger)
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads a ClientConfig from .env and the environment.
func LoadClientConfig(logger *zerolog.Logger) (*ClientConfig, error) {
	loadDotEnv(logger)
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("NT_SERVER_ADDR is required")
	}
	return cfg, nil
}

func loadDotEnv(logger *zerolog.Logger) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
		return
	}
	if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}
}

// Validate checks a ServerConfig for errors beyond what struct tags cover.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("NT_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("NT_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("NT_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("NT_CPU_PAUSE_THRESHOLD (%.1f) must be >= NT_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got %s)", c.LogLevel)
	}
	return nil
}

// LogConfig logs a ServerConfig using structured logging, the same shape
// as the teacher's Config.LogConfig.
func (c *ServerConfig) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Int("max_connections", c.MaxConnections).
		Int("min_flush_ms", c.MinFlushMs).
		Dur("shutdown_grace", c.ShutdownGrace).
		Str("persist_path", c.PersistPath).
		Str("datalog_brokers", c.KafkaBrokers).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_level", c.LogLevel).
		Msg("server configuration loaded")
}
