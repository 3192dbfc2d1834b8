package main

import (
	"context"
	"flag"
	"os"

	"github.com/marmos91/revfs/internal/logger"
	"github.com/marmos91/revfs/internal/shutdown"
	"github.com/marmos91/revfs/pkg/backend"
	"github.com/marmos91/revfs/pkg/config"
	"github.com/marmos91/revfs/pkg/endpoint"
	"github.com/marmos91/revfs/pkg/protocol"
	"github.com/marmos91/revfs/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	listen := flag.String("listen", "", "Endpoint URL (file:///<path> or tcp://<host>:<port>)")
	storePath := flag.String("path", "", "Git store directory (empty disables persistence)")
	bare := flag.Bool("bare", false, "Initialize the git store without a working tree")
	sandboxPrefix := flag.String("sandbox-prefix", "", "Prefix prepended to local socket paths")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set, *listen, *storePath, *bare, *sandboxPrefix, *logLevel)

	// Flag values go through the same validation as file and environment.
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.Info("Starting revfs server")

	// Signal dispositions must be in place before the first accept.
	shutdown.Install()

	store, err := config.CreateBackend(&cfg.Store)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	ep, err := endpoint.Parse(cfg.Server.Listen, cfg.Server.SandboxPrefix)
	if err != nil {
		logger.Error("Invalid endpoint: %v", err)
		os.Exit(1)
	}

	listener, err := ep.Listen()
	if err != nil {
		logger.Error("Failed to listen: %v", err)
		os.Exit(1)
	}

	logger.Info("Listening on %s", ep)

	srv := server.New(listener, backend.NewFactory(store), protocol.NewEngine())
	if err := srv.Serve(context.Background()); err != nil {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}
}

// applyFlags folds explicitly set command line flags over the loaded
// configuration. Flags take precedence over file and environment; set
// holds the names of the flags given on the command line.
func applyFlags(cfg *config.Config, set map[string]bool, listen, storePath string, bare bool, sandboxPrefix, logLevel string) {
	if set["listen"] {
		cfg.Server.Listen = listen
	}
	if set["sandbox-prefix"] {
		cfg.Server.SandboxPrefix = sandboxPrefix
	}
	if set["log-level"] {
		cfg.Logging.Level = logLevel
	}
	if set["path"] {
		if cfg.Store.Git == nil {
			cfg.Store.Git = map[string]any{}
		}
		cfg.Store.Git["path"] = storePath
		cfg.Store.Type = "git"
		if storePath == "" {
			cfg.Store.Type = "memory"
		}
	}
	if set["bare"] {
		if cfg.Store.Git == nil {
			cfg.Store.Git = map[string]any{}
		}
		cfg.Store.Git["bare"] = bare
	}
}
