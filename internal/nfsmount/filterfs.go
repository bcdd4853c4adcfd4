// Package nfsmount serves a workspace's filter tree over NFS. Filters appear
// as directories and files as read-only passthroughs to their real content.
// Directory operations are mapped onto filter mutations: mkdir creates a
// filter, rmdir deletes one and mv re-files a file or filter.
package nfsmount

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/logging"
)

const exportName = "_filters.json"

var errReadOnly = errors.New("read-only filesystem")

// Backend is the part of the host interface the mount needs.
type Backend interface {
	Tree(workspace string) (*graph.Tree, error)
	CreateFilter(parent *graph.Filter, name string) (string, error)
	DeleteFilter(n *graph.Filter) error
	MoveFileToFilter(location string, dest *graph.Filter) error
	MoveFilterToParent(src, dest *graph.Filter) (string, error)
}

// FilterFS adapts one workspace's filter tree to billy.Filesystem. Unless
// it is writable, the directory operations that edit filters are refused.
type FilterFS struct {
	backend   Backend
	workspace string
	disk      billy.Filesystem
	mountTime time.Time
	writable  bool
}

func NewFilterFS(backend Backend, workspace string, writable bool) *FilterFS {
	return &FilterFS{
		backend:   backend,
		workspace: workspace,
		disk:      osfs.New(workspace),
		mountTime: time.Now(),
		writable:  writable,
	}
}

// Writable reports whether mkdir, rmdir and mv edit filters.
func (fs *FilterFS) Writable() bool {
	return fs.writable
}

// --- billy.Basic ---

func (fs *FilterFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *FilterFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *FilterFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}

	if filename == "/"+exportName {
		data, err := fs.export()
		if err != nil {
			return nil, err
		}
		return newExportFile(exportName, data), nil
	}

	node, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	file, ok := node.(*graph.File)
	if !ok {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fmt.Errorf("is a directory")}
	}
	f, err := fs.disk.Open(file.Rel)
	if err != nil {
		return nil, err
	}
	return &diskFile{File: f, name: filename}, nil
}

func (fs *FilterFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

// Rename moves a file or filter under another filter. The base name must
// stay the same; filters and files are not renamed through the mount.
func (fs *FilterFS) Rename(oldpath, newpath string) error {
	oldpath, newpath = cleanPath(oldpath), cleanPath(newpath)
	if !fs.writable {
		return &os.PathError{Op: "rename", Path: oldpath, Err: errReadOnly}
	}
	node, err := fs.resolve(oldpath)
	if err != nil {
		return &os.PathError{Op: "rename", Path: oldpath, Err: os.ErrNotExist}
	}
	if path.Base(newpath) != node.Name() {
		return &os.PathError{Op: "rename", Path: newpath, Err: billy.ErrNotSupported}
	}
	destNode, err := fs.resolve(path.Dir(newpath))
	if err != nil {
		return &os.PathError{Op: "rename", Path: newpath, Err: os.ErrNotExist}
	}
	dest, ok := destNode.(*graph.Filter)
	if !ok {
		return &os.PathError{Op: "rename", Path: newpath, Err: fmt.Errorf("not a directory")}
	}

	switch n := node.(type) {
	case *graph.File:
		err = fs.backend.MoveFileToFilter(n.Location, dest)
	case *graph.Filter:
		if n.IsRoot() {
			return &os.PathError{Op: "rename", Path: oldpath, Err: os.ErrPermission}
		}
		_, err = fs.backend.MoveFilterToParent(n, dest)
	}
	if err != nil {
		logging.Warn("mount rename failed", zap.String("from", oldpath), zap.String("to", newpath), zap.Error(err))
		return &os.PathError{Op: "rename", Path: oldpath, Err: err}
	}
	return nil
}

// Remove deletes a filter. Files are never removed through the mount.
func (fs *FilterFS) Remove(filename string) error {
	filename = cleanPath(filename)
	if !fs.writable {
		return errReadOnly
	}
	node, err := fs.resolve(filename)
	if err != nil {
		return &os.PathError{Op: "remove", Path: filename, Err: os.ErrNotExist}
	}
	f, ok := node.(*graph.Filter)
	if !ok {
		return errReadOnly
	}
	if f.IsRoot() {
		return &os.PathError{Op: "remove", Path: filename, Err: os.ErrPermission}
	}
	if err := fs.backend.DeleteFilter(f); err != nil {
		return &os.PathError{Op: "remove", Path: filename, Err: err}
	}
	return nil
}

func (fs *FilterFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *FilterFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *FilterFS) ReadDir(p string) ([]os.FileInfo, error) {
	p = cleanPath(p)
	node, err := fs.resolve(p)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: os.ErrNotExist}
	}
	f, ok := node.(*graph.Filter)
	if !ok {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: fmt.Errorf("not a directory")}
	}

	infos := make([]os.FileInfo, 0, len(f.Children)+1)
	if f.IsRoot() {
		infos = append(infos, fs.exportInfo())
	}
	for _, c := range visibleChildren(f) {
		info, err := fs.info(c)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// MkdirAll creates every missing filter along p.
func (fs *FilterFS) MkdirAll(p string, perm os.FileMode) error {
	p = cleanPath(p)
	if !fs.writable {
		return &os.PathError{Op: "mkdir", Path: p, Err: errReadOnly}
	}
	tree, err := fs.backend.Tree(fs.workspace)
	if err != nil {
		return err
	}
	parent := tree.Root
	for _, seg := range splitPath(p) {
		if c, ok := child(parent, seg); ok {
			sub, isFilter := c.(*graph.Filter)
			if !isFilter {
				return &os.PathError{Op: "mkdir", Path: p, Err: os.ErrExist}
			}
			parent = sub
			continue
		}
		newPath, err := fs.backend.CreateFilter(parent, seg)
		if err != nil {
			return &os.PathError{Op: "mkdir", Path: p, Err: err}
		}
		parent = &graph.Filter{Path: newPath, Workspace: fs.workspace, Populated: true}
	}
	return nil
}

// --- billy.Symlink ---

func (fs *FilterFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if filename == "/"+exportName {
		return fs.exportInfo(), nil
	}
	node, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	if f, ok := node.(*graph.Filter); ok && f.IsRoot() {
		return &staticFileInfo{name: "/", mode: os.ModeDir | 0o755, modTime: fs.mountTime}, nil
	}
	return fs.info(node)
}

func (fs *FilterFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *FilterFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *FilterFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(fs, p), nil
}

func (fs *FilterFS) Root() string {
	return "/"
}

// --- billy.Capable ---

// Capabilities advertises WriteCapability only for a writable mount; the
// NFS handler refuses MKDIR, REMOVE and RENAME without it.
func (fs *FilterFS) Capabilities() billy.Capability {
	caps := billy.ReadCapability | billy.SeekCapability
	if fs.writable {
		caps |= billy.WriteCapability
	}
	return caps
}

// --- internals ---

// resolve walks the current tree along p.
func (fs *FilterFS) resolve(p string) (graph.Node, error) {
	tree, err := fs.backend.Tree(fs.workspace)
	if err != nil {
		return nil, err
	}
	var cur graph.Node = tree.Root
	for _, seg := range splitPath(p) {
		f, ok := cur.(*graph.Filter)
		if !ok {
			return nil, graph.ErrNotFound
		}
		next, ok := child(f, seg)
		if !ok {
			return nil, graph.ErrNotFound
		}
		cur = next
	}
	return cur, nil
}

func (fs *FilterFS) info(n graph.Node) (os.FileInfo, error) {
	switch v := n.(type) {
	case *graph.Filter:
		return &staticFileInfo{name: v.Name(), mode: os.ModeDir | 0o755, modTime: fs.mountTime}, nil
	case *graph.File:
		st, err := fs.disk.Stat(v.Rel)
		if err != nil {
			return nil, err
		}
		return &staticFileInfo{name: v.Name(), size: st.Size(), mode: 0o444, modTime: st.ModTime()}, nil
	}
	return nil, graph.ErrNotFound
}

func (fs *FilterFS) export() ([]byte, error) {
	tree, err := fs.backend.Tree(fs.workspace)
	if err != nil {
		return nil, err
	}
	return []byte(graph.JSON(tree.Root, 2) + "\n"), nil
}

func (fs *FilterFS) exportInfo() os.FileInfo {
	var size int64
	if data, err := fs.export(); err == nil {
		size = int64(len(data))
	}
	return &staticFileInfo{name: exportName, size: size, mode: 0o444, modTime: fs.mountTime}
}

// visibleChildren drops children whose name is already taken in f. Two
// files with the same base name can share a filter; only the first shows.
func visibleChildren(f *graph.Filter) []graph.Node {
	seen := make(map[string]bool, len(f.Children))
	out := make([]graph.Node, 0, len(f.Children))
	for _, c := range f.Children {
		if seen[c.Name()] {
			logging.Debug("name collision hidden from mount", zap.String("filter", f.Path), zap.String("name", c.Name()))
			continue
		}
		seen[c.Name()] = true
		out = append(out, c)
	}
	return out
}

func child(f *graph.Filter, name string) (graph.Node, bool) {
	for _, c := range f.Children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(p string) string {
	return path.Clean("/" + filepath.ToSlash(p))
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*FilterFS)(nil)
	_ billy.Capable    = (*FilterFS)(nil)
	_ billy.File       = (*diskFile)(nil)
	_ billy.File       = (*exportFile)(nil)
)
