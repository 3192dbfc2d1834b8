// Package config loads and validates the revfs server configuration.
//
// Configuration sources, in order of precedence: environment variables
// (REVFS_*), the configuration file, defaults. Command line flags in
// cmd/revfs override all of them.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete revfs configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the listen endpoint settings
	Server ServerConfig `mapstructure:"server"`

	// Store selects and configures the storage backend
	Store StoreConfig `mapstructure:"store"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// ServerConfig contains the listen endpoint settings.
type ServerConfig struct {
	// Listen is the endpoint URL: file:///<path> for a local socket or
	// tcp://<host>:<port> for a network socket
	Listen string `mapstructure:"listen" validate:"required"`

	// SandboxPrefix is prepended to local socket paths when the server
	// runs inside a sandboxed filesystem namespace
	SandboxPrefix string `mapstructure:"sandbox_prefix"`
}

// StoreConfig selects the storage backend.
//
// The Type field determines which backend is used; only the matching
// type-specific section is read. When Type is empty it is derived: git
// if a git path is configured, memory otherwise.
type StoreConfig struct {
	// Type specifies which backend to use
	// Valid values: git, memory
	Type string `mapstructure:"type" validate:"omitempty,oneof=git memory"`

	// Git contains git-backend configuration
	// Only used when Type = "git"
	Git map[string]any `mapstructure:"git"`

	// Memory contains memory-backend configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to the config file (empty string skips the file
//     unless one exists at the default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support and the config file
// location.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the REVFS_ prefix and underscores.
	// Example: REVFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("REVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("/etc/revfs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is only an error when one was explicitly requested.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configPath == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
