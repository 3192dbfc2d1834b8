// Package memory provides the volatile backend: a process-lifetime
// in-memory tree with no persistence across restarts.
package memory

import (
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"

	"github.com/marmos91/revfs/pkg/backend"
)

// VolatileRevision is the revision marker reported by the memory store,
// which tracks no history.
const VolatileRevision = "volatile"

// Store is an in-memory backend. All sessions share the same tree; state
// is lost when the process exits.
type Store struct {
	fs billy.Filesystem
	mu sync.RWMutex
}

// New creates an empty volatile store.
func New() *Store {
	return &Store{fs: memfs.New()}
}

// CreateSession manufactures a fresh root over the shared in-memory tree.
// Safe for concurrent use.
func (s *Store) CreateSession() (*backend.SessionRoot, error) {
	view, err := s.fs.Chroot("/")
	if err != nil {
		return nil, err
	}
	return backend.NewSessionRoot(view, VolatileRevision, &s.mu), nil
}

// Revision reports the fixed volatile marker.
func (s *Store) Revision() string {
	return VolatileRevision
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
