package ingest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/api"
	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/sidecar"
	"github.com/agentic-research/filtertree/internal/writeback"
)

var errCeiling = errors.New("file ceiling reached")

// Engine builds filter trees by reconciling a workspace's sidecar with what
// is on disk.
type Engine struct {
	Config   api.Config
	Excluder *Excluder
	// ReadOnly turns off the stale-reference cleanup write during Build.
	ReadOnly bool
}

func NewEngine(cfg api.Config) (*Engine, error) {
	cfg = cfg.Normalize()
	excl, err := NewExcluder(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &Engine{Config: cfg, Excluder: excl}, nil
}

// Result is the outcome of one reconciliation.
type Result struct {
	Tree      *graph.Tree
	Sidecar   string   // relative sidecar path, "" when there is none
	Stale     []string // Include values whose files are gone
	Healed    bool     // stale entries were removed from the sidecar
	Scanned   int      // files counted against the ceiling
	Truncated bool     // enumeration stopped at MaxFiles
}

// Build returns the root of workspace's filter tree.
func (e *Engine) Build(workspace string) (*graph.Filter, error) {
	res, err := e.Reconcile(osfs.New(workspace), workspace)
	if err != nil {
		return nil, err
	}
	return res.Tree.Root, nil
}

// Reconcile builds the tree for the workspace rooted at fs. A missing
// sidecar yields a tree of unfiltered files; a malformed one fails the
// whole build.
func (e *Engine) Reconcile(fs billy.Filesystem, workspace string) (*Result, error) {
	return e.ReconcileWith(writeback.NewEditor(fs, workspace, e.Config, e.Excluder))
}

// ReconcileWith is Reconcile for the workspace ed edits. Stale entries are
// removed through ed so the cleanup write is serialized with mutations.
func (e *Engine) ReconcileWith(ed *writeback.Editor) (*Result, error) {
	fs, workspace := ed.FS, ed.Workspace
	res := &Result{Tree: graph.NewTree(workspace)}

	name, err := sidecar.Locate(fs, e.Config.SidecarPattern, e.Excluder)
	if err != nil {
		return nil, fmt.Errorf("locate sidecar in %s: %w", workspace, err)
	}
	res.Sidecar = name

	known := make(map[string]bool)
	var doc *sidecar.Document
	if name != "" {
		doc, err = sidecar.Load(fs, name)
		if err != nil {
			return nil, err
		}
		if stale := e.applySidecar(fs, doc, res, known); len(stale) > 0 {
			e.heal(ed, res)
		}
	}

	if err := e.enumerate(fs, res, known); err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", workspace, err)
	}

	res.Tree.Sort()
	return res, nil
}

// applySidecar adds the sidecar's filters and existing files to the tree and
// returns the entries whose files are missing.
func (e *Engine) applySidecar(fs billy.Filesystem, doc *sidecar.Document, res *Result, known map[string]bool) []*sidecar.Entry {
	tree := res.Tree
	for _, f := range doc.Filters() {
		if p := graph.Clean(f.Include); p != "" {
			tree.Ensure(p)
		}
	}

	var stale []*sidecar.Entry
	for _, f := range doc.Files() {
		if strings.TrimSpace(f.Include) == "" {
			continue
		}
		filter := graph.Clean(f.Filter)
		tree.Ensure(filter)
		known[strings.ToLower(graph.IncludeToRel(f.Include))] = true

		rel, ok, err := sidecar.Resolve(fs, f.Include)
		if err != nil {
			logging.Warn("cannot check sidecar entry", zap.String("include", f.Include), zap.Error(err))
			continue
		}
		if !ok {
			stale = append(stale, f)
			res.Stale = append(res.Stale, f.Include)
			continue
		}
		known[strings.ToLower(rel)] = true
		tree.AddFile(filter, &graph.File{
			Location:  filepath.Join(tree.Root.Workspace, filepath.FromSlash(rel)),
			Rel:       rel,
			Workspace: tree.Root.Workspace,
		})
		logging.Debug("filtered file", zap.String("rel", rel), zap.String("filter", filter))
	}
	return stale
}

// heal drops stale entries from the sidecar. The editor re-reads the
// document under its lock, so a mutation committed since the read above is
// kept. Failure is logged and never fails the build.
func (e *Engine) heal(ed *writeback.Editor, res *Result) {
	if e.ReadOnly {
		logging.Info("stale sidecar entries left in place", zap.String("sidecar", res.Sidecar), zap.Int("count", len(res.Stale)))
		return
	}
	n, err := ed.Prune()
	if err != nil {
		logging.Warn("stale reference cleanup failed", zap.String("sidecar", res.Sidecar), zap.Error(err))
		return
	}
	res.Healed = n > 0
	logging.Info("removed stale sidecar entries", zap.String("sidecar", res.Sidecar), zap.Int("count", n), zap.Strings("includes", res.Stale))
}

// enumerate walks the workspace and lists every file the sidecar does not
// know under the root, stopping silently once MaxFiles files were seen.
func (e *Engine) enumerate(fs billy.Filesystem, res *Result, known map[string]bool) error {
	err := e.walk(fs, "", func(rel string) error {
		if rel == res.Sidecar {
			return nil
		}
		if res.Scanned >= e.Config.MaxFiles {
			res.Truncated = true
			return errCeiling
		}
		res.Scanned++
		if known[strings.ToLower(rel)] {
			return nil
		}
		res.Tree.AddFile("", &graph.File{
			Location:  filepath.Join(res.Tree.Root.Workspace, filepath.FromSlash(rel)),
			Rel:       rel,
			Workspace: res.Tree.Root.Workspace,
		})
		return nil
	})
	if errors.Is(err, errCeiling) {
		logging.Debug("enumeration truncated", zap.Int("max_files", e.Config.MaxFiles))
		return nil
	}
	return err
}

// walk visits regular files below dir in lexical order, skipping excluded
// paths.
func (e *Engine) walk(fs billy.Filesystem, dir string, fn func(rel string) error) error {
	name := dir
	if name == "" {
		name = "."
	}
	infos, err := fs.ReadDir(name)
	if err != nil {
		if dir != "" && os.IsNotExist(err) {
			return nil
		}
		return err
	}
	slices.SortFunc(infos, func(a, b os.FileInfo) int { return strings.Compare(a.Name(), b.Name()) })

	for _, fi := range infos {
		rel := path.Join(dir, fi.Name())
		if e.Excluder.Excluded(rel, fi.IsDir()) {
			continue
		}
		switch {
		case fi.IsDir():
			if err := e.walk(fs, rel, fn); err != nil {
				return err
			}
		case fi.Mode().IsRegular():
			if err := fn(rel); err != nil {
				return err
			}
		}
	}
	return nil
}
