// Package config provides shared configuration types for flightbridge.
// This package is decoupled from CLI concerns so any tool embedding the
// adapters can load the same connection profiles.
package config

import (
	"fmt"
	"strings"

	"github.com/flightbridge/flightbridge/pkg/adapter"
)

// Config is the top-level flightbridge configuration.
type Config struct {
	// LogLevel sets the minimum log level: debug, info, warn or error.
	LogLevel string `koanf:"log_level"`

	// Target names the connection profile used when none is given.
	Target string `koanf:"target"`

	// Targets maps profile names to connection settings.
	Targets map[string]TargetConfig `koanf:"targets"`
}

// TargetConfig holds one named connection profile.
type TargetConfig struct {
	Type string `koanf:"type"` // adapter type, e.g. gizmosql

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// Additional adapter-specific options
	Options map[string]string `koanf:"options"`

	// Params holds structured adapter-specific configuration
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts a target profile into an adapter config.
func (t TargetConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     t.Type,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.Username,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// ResolveTarget returns the named profile, falling back to the config's
// default target when name is empty.
func (c *Config) ResolveTarget(name string) (TargetConfig, error) {
	if name == "" {
		name = c.Target
	}
	if name == "" {
		if len(c.Targets) == 1 {
			for _, t := range c.Targets {
				return t, nil
			}
		}
		return TargetConfig{}, fmt.Errorf("no target selected and no default target configured")
	}
	t, ok := c.Targets[name]
	if !ok {
		names := make([]string, 0, len(c.Targets))
		for n := range c.Targets {
			names = append(names, n)
		}
		return TargetConfig{}, fmt.Errorf("unknown target %q (configured: %s)", name, strings.Join(names, ", "))
	}
	return t, nil
}
