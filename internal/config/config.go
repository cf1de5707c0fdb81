// Package config handles daemon configuration: process-level settings from
// environment variables, routing and caching rules from a YAML file.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds process-level settings.
type Config struct {
	// ListenAddr is the address the worker listens on.
	ListenAddr string `env:"SYNCPROXY_ADDR" envDefault:":8750"`
	// DataDir is the root for the LevelDB databases.
	DataDir string `env:"SYNCPROXY_DATA_DIR" envDefault:"./data"`
	// RulesPath locates the YAML rules file.
	RulesPath string `env:"SYNCPROXY_RULES" envDefault:"rules.yaml"`
	// Debug enables debug-level logging.
	Debug bool `env:"SYNCPROXY_DEBUG" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
