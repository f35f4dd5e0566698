// Package config provides environment-based configuration loading and validation.
//
// This package reads configuration from environment variables (and .env files)
// using struct tags, then validates the loaded configuration.
//
// Usage:
//
//	import "github.com/seolgugu/edgeflow/pkg/config"
//
//	settings, err := config.LoadSettings()
//	if err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/seolgugu/edgeflow/pkg/errors"
)

// Settings holds the endpoints every worker derives from its environment.
// Defaults are the fixed in-cluster service names.
type Settings struct {
	// Control plane Redis.
	RedisHost string `env:"REDIS_HOST" env-default:"edgeflow-redis-service"`
	RedisPort int    `env:"REDIS_PORT" env-default:"6379"`

	// Data plane Redis.
	DataRedisHost string `env:"DATA_REDIS_HOST" env-default:"edgeflow-redis-data-service"`
	DataRedisPort int    `env:"DATA_REDIS_PORT" env-default:"6380"`

	// Gateway ingress.
	GatewayHost     string `env:"GATEWAY_HOST" env-default:"localhost"`
	GatewayTCPPort  int    `env:"GATEWAY_TCP_PORT" env-default:"8080"`
	GatewayHTTPPort int    `env:"GATEWAY_HTTP_PORT" env-default:"8000"`

	// Worker identity, injected by the supervisor.
	NodeName   string `env:"NODE_NAME"`
	NodeConfig string `env:"NODE_CONFIG"`
	WorkerID   string `env:"WORKER_ID"`
}

// Load reads configuration from .env file or environment variables and validates it.
func Load[T any](cfg *T) error {
	// 1. Load from .env if it exists, else fall back to plain env vars.
	if err := cleanenv.ReadConfig(".env", cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return errors.Wrap(err, "failed to read env config")
		}
	}

	// 2. Validate the struct
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "config validation failed")
	}

	return nil
}

// LoadSettings loads the worker Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := Load(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
