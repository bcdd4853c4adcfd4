package graph

import (
	"cmp"
	"errors"
	"path"
	"slices"
	"strings"
)

var ErrNotFound = errors.New("node not found")

// Node is either a *Filter or a *File.
type Node interface {
	// Name is the display name: the last filter segment or the file base name.
	Name() string
	IsFilter() bool
}

// Filter is a logical grouping. The root filter has an empty Path and stands
// for the workspace root itself.
type Filter struct {
	Path      string // FilterPath, segments joined by Separator
	Workspace string // absolute workspace root this tree belongs to
	Children  []Node
	// Populated is false for stubs handed out before the owning tree is built.
	Populated bool
}

// NewRoot returns an unpopulated root stub for workspace.
func NewRoot(workspace string) *Filter {
	return &Filter{Workspace: workspace}
}

func (f *Filter) Name() string {
	if f.Path == "" {
		return path.Base(strings.ReplaceAll(f.Workspace, `\`, "/"))
	}
	return Base(f.Path)
}

func (f *Filter) IsFilter() bool { return true }

// IsRoot reports whether f is the workspace root.
func (f *Filter) IsRoot() bool { return f.Path == "" }

// Filters returns the filter children of f.
func (f *Filter) Filters() []*Filter {
	var out []*Filter
	for _, c := range f.Children {
		if sub, ok := c.(*Filter); ok {
			out = append(out, sub)
		}
	}
	return out
}

// Files returns the file children of f.
func (f *Filter) Files() []*File {
	var out []*File
	for _, c := range f.Children {
		if file, ok := c.(*File); ok {
			out = append(out, file)
		}
	}
	return out
}

// File is a physical file shown in the tree. Its parent is decided at build
// time and is not stored on the node.
type File struct {
	Location  string // absolute path on disk
	Rel       string // workspace-relative, slash-separated
	Workspace string
}

func (f *File) Name() string   { return path.Base(f.Rel) }
func (f *File) IsFilter() bool { return false }

// Tree indexes every filter of one workspace by path.
type Tree struct {
	Root    *Filter
	filters map[string]*Filter
	files   map[string]map[string]struct{} // filter path -> lower-cased rel paths
}

// NewTree returns an empty, populated tree for workspace.
func NewTree(workspace string) *Tree {
	root := &Filter{Workspace: workspace, Populated: true}
	return &Tree{
		Root:    root,
		filters: map[string]*Filter{"": root},
		files:   make(map[string]map[string]struct{}),
	}
}

// Ensure returns the filter at p, synthesizing it and every missing
// ancestor. Existing nodes are never replaced.
func (t *Tree) Ensure(p string) *Filter {
	if f, ok := t.filters[p]; ok {
		return f
	}
	parent := t.Ensure(Parent(p))
	f := &Filter{Path: p, Workspace: t.Root.Workspace, Populated: true}
	parent.Children = append(parent.Children, f)
	t.filters[p] = f
	return f
}

// Lookup returns the filter at p.
func (t *Tree) Lookup(p string) (*Filter, error) {
	f, ok := t.filters[p]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

// AddFile attaches file under the filter at p (synthesized if needed).
// A file already listed under the same filter is ignored.
func (t *Tree) AddFile(p string, file *File) bool {
	parent := t.Ensure(p)
	key := strings.ToLower(file.Rel)
	seen, ok := t.files[p]
	if !ok {
		seen = make(map[string]struct{})
		t.files[p] = seen
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}
	parent.Children = append(parent.Children, file)
	return true
}

// Len returns the number of filters, root included.
func (t *Tree) Len() int { return len(t.filters) }

// Paths returns every non-root filter path in ascending order.
func (t *Tree) Paths() []string {
	out := make([]string, 0, len(t.filters))
	for p := range t.filters {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// Sort orders every filter's children: filters before files, each group by
// ascending display name.
func (t *Tree) Sort() {
	SortChildren(t.Root)
}

// SortChildren sorts f and its descendants in place.
func SortChildren(f *Filter) {
	slices.SortStableFunc(f.Children, compareNodes)
	for _, sub := range f.Filters() {
		SortChildren(sub)
	}
}

func compareNodes(a, b Node) int {
	if a.IsFilter() != b.IsFilter() {
		if a.IsFilter() {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Name(), b.Name())
}

// Walk visits every node below f depth-first in child order.
// Returning false from fn stops descent into that node.
func Walk(f *Filter, fn func(n Node, depth int) bool) {
	walk(f, 0, fn)
}

func walk(f *Filter, depth int, fn func(n Node, depth int) bool) {
	for _, c := range f.Children {
		if !fn(c, depth) {
			continue
		}
		if sub, ok := c.(*Filter); ok {
			walk(sub, depth+1, fn)
		}
	}
}

// Find resolves a filter path below root by walking children. Used on trees
// that were not built through a Tree index.
func Find(root *Filter, p string) (*Filter, error) {
	if p == "" {
		return root, nil
	}
	cur := root
	for _, seg := range Split(p) {
		var next *Filter
		for _, sub := range cur.Filters() {
			if sub.Name() == seg {
				next = sub
				break
			}
		}
		if next == nil {
			return nil, ErrNotFound
		}
		cur = next
	}
	return cur, nil
}
