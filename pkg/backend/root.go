package backend

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

// SessionRoot is a per-connection view over the shared backend: the main
// tree, the auxiliary sub-trees grafted in by the root factory, and the
// store revision observed at session creation.
//
// A root is owned exclusively by one session and is released when that
// session's serving goroutine terminates. All roots share the backing
// store; a store-wide lock serializes tree access across sessions.
type SessionRoot struct {
	fs       billy.Filesystem
	aux      map[string]billy.Filesystem
	revision string
	mu       *sync.RWMutex
}

// NewSessionRoot wraps a fresh view over a store's tree. The mutex is the
// store-wide lock shared by every root of the same backend.
func NewSessionRoot(fs billy.Filesystem, revision string, mu *sync.RWMutex) *SessionRoot {
	return &SessionRoot{
		fs:       fs,
		revision: revision,
		mu:       mu,
	}
}

// Revision reports the store revision this session was created at.
func (r *SessionRoot) Revision() string {
	return r.revision
}

// resolve routes a path through the auxiliary tree table: if the first
// component names an aux tree, the remainder is served from that tree,
// otherwise the whole path is served from the main tree.
func (r *SessionRoot) resolve(name string) (billy.Filesystem, string) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return r.fs, "/"
	}

	rest := strings.TrimPrefix(clean, "/")
	first := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		first = rest[:i]
		rest = rest[i:]
	} else {
		rest = "/"
	}

	if aux, ok := r.aux[first]; ok {
		return aux, rest
	}
	return r.fs, clean
}

// isAuxRoot reports whether name addresses the mount point of an aux tree.
func (r *SessionRoot) isAuxRoot(name string) (string, bool) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	_, ok := r.aux[clean]
	return clean, ok
}

// Stat returns the attributes of the file or directory at name.
func (r *SessionRoot) Stat(name string) (os.FileInfo, error) {
	if mount, ok := r.isAuxRoot(name); ok {
		return auxDirInfo(mount), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, rel := r.resolve(name)
	return fs.Stat(rel)
}

// ReadDir lists the directory at name. Auxiliary mount points appear as
// directories in the root listing.
func (r *SessionRoot) ReadDir(name string) ([]os.FileInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, rel := r.resolve(name)
	entries, err := fs.ReadDir(rel)
	if err != nil {
		return nil, err
	}

	if path.Clean("/"+name) == "/" {
		for mount := range r.aux {
			entries = append(entries, auxDirInfo(mount))
		}
	}
	return entries, nil
}

// ReadAt reads up to count bytes at offset from the file at name. A read
// past the end of the file returns the available prefix.
func (r *SessionRoot) ReadAt(name string, offset int64, count int) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, rel := r.resolve(name)
	f, err := fs.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, count)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// WriteAt writes data at offset into the existing file at name, extending
// it as needed.
func (r *SessionRoot) WriteAt(name string, offset int64, data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fs, rel := r.resolve(name)
	f, err := fs.OpenFile(rel, os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return f.Write(data)
}

// Create creates an empty regular file at name.
func (r *SessionRoot) Create(name string) error {
	if _, ok := r.isAuxRoot(name); ok {
		return fmt.Errorf("%s: aux tree mount point", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fs, rel := r.resolve(name)
	f, err := fs.Create(rel)
	if err != nil {
		return err
	}
	return f.Close()
}

// MkdirAll creates the directory at name along with any missing parents.
func (r *SessionRoot) MkdirAll(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fs, rel := r.resolve(name)
	return fs.MkdirAll(rel, 0o755)
}

// Remove removes the file or empty directory at name. Auxiliary mount
// points cannot be removed.
func (r *SessionRoot) Remove(name string) error {
	if mount, ok := r.isAuxRoot(name); ok {
		return fmt.Errorf("%s: aux tree mount point", mount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fs, rel := r.resolve(name)
	return fs.Remove(rel)
}

// Rename moves oldName to newName. Both paths must live in the same tree.
func (r *SessionRoot) Rename(oldName, newName string) error {
	if mount, ok := r.isAuxRoot(oldName); ok {
		return fmt.Errorf("%s: aux tree mount point", mount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	oldFS, oldRel := r.resolve(oldName)
	newFS, newRel := r.resolve(newName)
	if oldFS != newFS {
		return fmt.Errorf("rename %s to %s: crosses tree boundary", oldName, newName)
	}
	return oldFS.Rename(oldRel, newRel)
}

// auxInfo is the synthetic directory entry for an auxiliary mount point.
type auxInfo struct {
	name string
}

func auxDirInfo(name string) os.FileInfo { return auxInfo{name: name} }

func (i auxInfo) Name() string       { return i.name }
func (i auxInfo) Size() int64        { return 0 }
func (i auxInfo) Mode() os.FileMode  { return os.ModeDir | 0o755 }
func (i auxInfo) ModTime() time.Time { return time.Time{} }
func (i auxInfo) IsDir() bool        { return true }
func (i auxInfo) Sys() any           { return nil }
