// Package gitstore provides the persistent backend: a revision-tracked
// git repository on disk.
//
// The store tolerates being pointed at an existing repository (it is
// opened) and at a fresh directory (a repository is initialized, honoring
// the bare flag). Externally made changes to the backing repository become
// visible without a server restart through the change watcher.
package gitstore

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/marmos91/revfs/internal/logger"
	"github.com/marmos91/revfs/pkg/backend"
)

// Config holds the git store configuration section.
type Config struct {
	// Path is the directory the repository lives in.
	Path string `mapstructure:"path"`

	// Bare initializes the repository without a separate working tree.
	// Only honored when the repository does not exist yet.
	Bare bool `mapstructure:"bare"`
}

// Store is a persistent backend over a git repository. The repository
// handle is shared by all sessions for the process lifetime.
type Store struct {
	path string
	bare bool
	repo *git.Repository
	root billy.Filesystem
	mu   sync.RWMutex

	// revision caches the head hash new sessions observe; refreshed by
	// the change watcher.
	revision atomic.Value

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
}

// Open opens the repository at cfg.Path, initializing it if the directory
// does not contain one yet. Initialization failure is fatal to startup;
// the caller must not serve with a half-initialized backend.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("git store: path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("git store: create %s: %w", cfg.Path, err)
	}

	repo, err := git.PlainOpenWithOptions(cfg.Path, &git.PlainOpenOptions{})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(cfg.Path, cfg.Bare)
	}
	if err != nil {
		return nil, fmt.Errorf("git store: open %s: %w", cfg.Path, err)
	}

	s := &Store{
		path: cfg.Path,
		repo: repo,
	}

	// Bareness is a property of the repository on disk, not of the
	// configuration: an existing working-tree repository stays non-bare
	// no matter what the flag says.
	if root, err := worktreeFS(repo); err == nil {
		s.root = root
	} else if errors.Is(err, git.ErrIsBareRepository) {
		// A bare repository has no working tree; sessions are served the
		// repository directory itself.
		s.root = osfs.New(cfg.Path)
		s.bare = true
	} else {
		return nil, fmt.Errorf("git store: worktree of %s: %w", cfg.Path, err)
	}

	s.refreshRevision()
	return s, nil
}

func worktreeFS(repo *git.Repository) (billy.Filesystem, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	return wt.Filesystem, nil
}

// CreateSession manufactures a fresh root over the repository tree,
// stamped with the revision currently at head. Safe for concurrent use.
func (s *Store) CreateSession() (*backend.SessionRoot, error) {
	view, err := s.root.Chroot("/")
	if err != nil {
		return nil, err
	}
	return backend.NewSessionRoot(view, s.Revision(), &s.mu), nil
}

// Revision reports the cached head hash, or the empty string while the
// repository has no commits yet.
func (s *Store) Revision() string {
	rev, _ := s.revision.Load().(string)
	return rev
}

// Path reports the repository directory.
func (s *Store) Path() string {
	return s.path
}

// Bare reports whether the repository has no separate working tree.
func (s *Store) Bare() bool {
	return s.bare
}

// refreshRevision re-reads head from disk. An unborn head (fresh
// repository) maps to the empty revision.
func (s *Store) refreshRevision() {
	head, err := s.repo.Head()
	if err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			logger.Warn("Git store: reading head of %s: %v", s.path, err)
		}
		s.revision.Store("")
		return
	}
	s.revision.Store(head.Hash().String())
}

// Close stops the change watcher, if installed.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
