package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerAddr     string   `env:"CLASSCHAT_ADDR"`
	DatabaseDSN    string   `env:"CLASSCHAT_DSN"`
	AllowedOrigins []string `env:"CLASSCHAT_ALLOWED_ORIGINS" envSeparator:","`
	DefaultRoom    string   `env:"CLASSCHAT_DEFAULT_ROOM"`
}

// NewConfig builds the configuration from flag values, letting
// CLASSCHAT_* environment variables override them.
func NewConfig(serverAddr, databaseDSN string, allowedOrigins []string, defaultRoom string) (*Config, error) {
	cfg := &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		AllowedOrigins: allowedOrigins,
		DefaultRoom:    defaultRoom,
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.DefaultRoom == "" {
		return nil, fmt.Errorf("default room cannot be empty")
	}

	return cfg, nil
}
