package config

import (
	"strings"

	"github.com/marmos91/revfs/pkg/endpoint"
)

// ApplyDefaults fills in unspecified configuration fields.
//
// Zero values are replaced with defaults, explicit values are preserved.
// The store type, when unset, is derived from the configured sections:
// the presence of a git path selects the persistent backend, its absence
// selects the volatile one.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = endpoint.DefaultURL
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type != "" {
		return
	}
	if path, _ := cfg.Git["path"].(string); path != "" {
		cfg.Type = "git"
	} else {
		cfg.Type = "memory"
	}
}
