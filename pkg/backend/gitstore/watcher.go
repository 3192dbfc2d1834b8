package gitstore

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	git "github.com/go-git/go-git/v5"

	"github.com/marmos91/revfs/internal/logger"
)

// Watch installs the background change watcher on the repository
// directory so that externally made commits become visible to new
// sessions without a server restart.
//
// Installing the watcher twice is a no-op: only the first call has any
// effect, later calls return the first call's result.
func (s *Store) Watch() error {
	var err error
	s.watchOnce.Do(func() {
		err = s.watch()
	})
	return err
}

func (s *Store) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("git store: create watcher: %w", err)
	}

	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("git store: watch %s: %w", s.path, err)
	}

	// Head and branch refs live under the git directory. fsnotify does
	// not recurse, so the ref directories are watched one by one; commits
	// made by external tools update loose refs there.
	gitDir := s.path
	if !s.bare {
		gitDir = filepath.Join(s.path, git.GitDirName)
		if err := watcher.Add(gitDir); err != nil {
			logger.Debug("Git store: cannot watch %s: %v", gitDir, err)
		}
	}
	for _, sub := range []string{"refs", filepath.Join("refs", "heads")} {
		dir := filepath.Join(gitDir, sub)
		if err := watcher.Add(dir); err != nil {
			logger.Debug("Git store: cannot watch %s: %v", dir, err)
		}
	}

	s.watcher = watcher
	logger.Info("Watching %s for external changes", s.path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				logger.Debug("Git store: change detected: %s", event)
				s.refreshRevision()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Git store: watcher error: %v", err)
			}
		}
	}()

	return nil
}
