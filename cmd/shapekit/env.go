package main

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
)

// envConfig holds flag defaults read from the environment.
type envConfig struct {
	// Format is the default output format. ENV: SHAPEKIT_FORMAT
	Format string `env:"SHAPEKIT_FORMAT,default=yaml"`
	// Verbose enables debug logging. ENV: SHAPEKIT_VERBOSE
	Verbose bool `env:"SHAPEKIT_VERBOSE,strict"`
	// StrictKeys rejects duplicate map keys. ENV: SHAPEKIT_STRICT_KEYS
	StrictKeys bool `env:"SHAPEKIT_STRICT_KEYS,strict"`
}

func loadEnv() (envConfig, error) {
	var cfg envConfig
	err := envdecode.Decode(&cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return envConfig{Format: "yaml"}, fmt.Errorf("environment: %w", err)
	}
	if cfg.Format == "" {
		cfg.Format = "yaml"
	}
	return cfg, nil
}
