// Package vfs provides the small file system layer the process code needs:
// reference-counted vnodes and two file systems, an in-memory one and one
// backed by a host directory.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kestrel-os/kestrel/pkg/errno"
)

// ErrNotFound is returned (wrapping ENOENT) when a path does not exist.
var ErrNotFound = fmt.Errorf("vfs: not found: %w", errno.ENOENT)

// MaxPath is the longest path accepted by Open.
const MaxPath = 1024

// Vnode is an open file or directory.
type Vnode struct {
	name  string
	dir   bool
	data  []byte
	mu    sync.Mutex
	refs  int
	onRel func()
}

// Name is the path the vnode was opened by.
func (vn *Vnode) Name() string { return vn.name }

// IsDir reports whether the vnode is a directory.
func (vn *Vnode) IsDir() bool { return vn.dir }

// Data returns the file contents.
func (vn *Vnode) Data() []byte { return vn.data }

// IncRef takes an additional reference.
func (vn *Vnode) IncRef() {
	vn.mu.Lock()
	defer vn.mu.Unlock()
	if vn.refs <= 0 {
		panic(fmt.Sprintf("vfs: IncRef on released vnode %s", vn.name))
	}
	vn.refs++
}

// DecRef drops a reference.
func (vn *Vnode) DecRef() {
	vn.mu.Lock()
	vn.refs--
	n := vn.refs
	rel := vn.onRel
	vn.mu.Unlock()

	if n < 0 {
		panic(fmt.Sprintf("vfs: DecRef below zero on %s", vn.name))
	}
	if n == 0 && rel != nil {
		rel()
	}
}

// RefCount returns the current reference count.
func (vn *Vnode) RefCount() int {
	vn.mu.Lock()
	defer vn.mu.Unlock()
	return vn.refs
}

// FS is a file system that can open paths and has a root directory.
type FS interface {
	Open(p string) (*Vnode, error)
	Root() *Vnode
}

// Close releases the reference Open returned.
func Close(vn *Vnode) {
	vn.DecRef()
}

func cleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("vfs: empty path: %w", errno.EINVAL)
	}
	if len(p) > MaxPath {
		return "", fmt.Errorf("vfs: path too long: %w", errno.ENAMETOOLONG)
	}
	return path.Clean("/" + p), nil
}

// MemFS is an in-memory file system.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
	root  *Vnode
	open  int
}

// NewMemFS creates an empty in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string][]byte),
		root:  &Vnode{name: "/", dir: true, refs: 1},
	}
}

// AddFile creates or replaces a file.
func (fs *MemFS) AddFile(p string, data []byte) {
	p, err := cleanPath(p)
	if err != nil {
		panic(err)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[p] = append([]byte(nil), data...)
}

// Root returns the root directory vnode. Callers that keep it must IncRef.
func (fs *MemFS) Root() *Vnode { return fs.root }

// Open returns a fresh vnode holding one reference.
func (fs *MemFS) Open(p string) (*Vnode, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if p == "/" {
		fs.root.IncRef()
		return fs.root, nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, ErrNotFound)
	}
	fs.open++
	return &Vnode{name: p, data: data, refs: 1, onRel: fs.release}, nil
}

func (fs *MemFS) release() {
	fs.mu.Lock()
	fs.open--
	fs.mu.Unlock()
}

// OpenCount is the number of file vnodes not yet fully released.
func (fs *MemFS) OpenCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.open
}

// DirFS serves files from a host directory, read-only.
type DirFS struct {
	dir  string
	root *Vnode
}

// NewDirFS creates a file system rooted at dir.
func NewDirFS(dir string) (*DirFS, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("vfs: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("vfs: %s: %w", dir, errno.ENOTDIR)
	}
	return &DirFS{dir: dir, root: &Vnode{name: "/", dir: true, refs: 1}}, nil
}

// Root returns the root directory vnode.
func (fs *DirFS) Root() *Vnode { return fs.root }

// Open reads the file at p below the root.
func (fs *DirFS) Open(p string) (*Vnode, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if p == "/" {
		fs.root.IncRef()
		return fs.root, nil
	}

	host := filepath.Join(fs.dir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	st, err := os.Stat(host)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %v: %w", p, err, errno.EIO)
	}
	if st.IsDir() {
		return &Vnode{name: p, dir: true, refs: 1}, nil
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", p, err, errno.EIO)
	}
	return &Vnode{name: p, data: data, refs: 1}, nil
}

// List returns the regular files directly under the root whose names end in suffix.
func (fs *DirFS) List(suffix string) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("vfs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, "/"+e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
