// Package backend defines the storage side of the revfs server: an opaque
// backend handle that can manufacture per-session roots.
//
// A backend is created exactly once at startup and shared by every session
// for the process lifetime. Sessions never share a root with one another;
// each accepted connection gets a brand-new SessionRoot from the root
// factory, and all roots read and write the same underlying store.
package backend

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// Backend is the single capability this layer needs from a store
// implementation: manufacturing fresh session roots on demand.
//
// CreateSession must be safe to call concurrently from many dispatched
// sessions at once. The backend serializes access to its own state; the
// acceptor imposes no locking of its own.
type Backend interface {
	// CreateSession returns a brand-new session root over the shared store.
	CreateSession() (*SessionRoot, error)

	// Revision reports the store revision new sessions currently observe.
	// Volatile backends report a fixed marker.
	Revision() string

	// Close releases backend resources. Called only at process teardown.
	Close() error
}

// RootFactory manufactures a new session root per call. It owns no mutable
// state of its own: every call yields a logically fresh root value closed
// over the same backend handle.
type RootFactory func() (*SessionRoot, error)

// NewFactory builds the root factory for b.
//
// The factory closes over a fixed set of auxiliary sub-trees grafted into
// every session root: a process-lifetime scratch tree mounted at "tmp".
// The scratch tree is shared across sessions, like the main store.
func NewFactory(b Backend) RootFactory {
	aux := map[string]billy.Filesystem{
		"tmp": memfs.New(),
	}

	return func() (*SessionRoot, error) {
		root, err := b.CreateSession()
		if err != nil {
			return nil, err
		}
		root.aux = aux
		return root, nil
	}
}
