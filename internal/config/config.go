package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
	IdentityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIURL() string
	GetWSURL() string
}

type mainConfig struct {
	EnvVars
	Session
	Storage
	Identity
}

// New reads the configuration from the environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
