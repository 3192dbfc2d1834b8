package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/revfs/internal/logger"
	"github.com/marmos91/revfs/pkg/backend"
	"github.com/marmos91/revfs/pkg/backend/gitstore"
	"github.com/marmos91/revfs/pkg/backend/memory"
)

// CreateBackend instantiates the storage backend selected by the
// configuration. The backend is created exactly once at startup; any
// initialization failure here is fatal and must abort startup.
//
// For the git backend the background change watcher is installed as part
// of selection, so externally made changes to the backing repository are
// visible to sessions without a restart.
func CreateBackend(cfg *StoreConfig) (backend.Backend, error) {
	switch cfg.Type {
	case "memory":
		logger.Info("Persistence disabled, serving from an in-memory store")
		return memory.New(), nil

	case "git":
		var gitCfg gitstore.Config
		if err := mapstructure.Decode(cfg.Git, &gitCfg); err != nil {
			return nil, fmt.Errorf("invalid git store config: %w", err)
		}

		store, err := gitstore.Open(gitCfg)
		if err != nil {
			return nil, err
		}
		if err := store.Watch(); err != nil {
			store.Close()
			return nil, err
		}

		mode := "working tree"
		if store.Bare() {
			mode = "bare"
		}
		logger.Info("Serving git store at %s (%s)", store.Path(), mode)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
