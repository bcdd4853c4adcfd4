package writeback

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/api"
	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/sidecar"
)

// Editor applies mutations to the sidecar of one workspace root. Every
// operation reads the whole document, changes it in memory and writes it
// back in one piece. Calls on one Editor are serialized.
type Editor struct {
	FS        billy.Filesystem
	Workspace string // absolute path the filesystem is rooted at
	Pattern   string
	Excluder  sidecar.Excluder

	mu sync.Mutex
}

func NewEditor(fs billy.Filesystem, workspace string, cfg api.Config, excl sidecar.Excluder) *Editor {
	return &Editor{
		FS:        fs,
		Workspace: workspace,
		Pattern:   cfg.Normalize().SidecarPattern,
		Excluder:  excl,
	}
}

// session is one read-modify-write of the sidecar.
type session struct {
	op   string
	name string
	doc  *sidecar.Document
}

// open loads the sidecar. When none exists and create is set, a skeleton
// document is returned that will be written under the default name;
// otherwise the session is nil.
func (e *Editor) open(op string, create bool) (*session, error) {
	name, err := sidecar.Locate(e.FS, e.Pattern, e.Excluder)
	if err != nil {
		return nil, &OpError{Op: op, Err: err}
	}
	if name == "" {
		if !create {
			return nil, nil
		}
		doc, err := sidecar.Decode([]byte(sidecar.Skeleton))
		if err != nil {
			return nil, &OpError{Op: op, Err: err}
		}
		name = sidecar.DefaultName(e.FS, filepath.Base(e.Workspace))
		logging.Info("creating sidecar", zap.String("op", op), zap.String("path", name))
		return &session{op: op, name: name, doc: doc}, nil
	}
	doc, err := sidecar.Load(e.FS, name)
	if err != nil {
		return nil, &OpError{Op: op, Path: name, Err: err}
	}
	return &session{op: op, name: name, doc: doc}, nil
}

func (s *session) commit(fs billy.Filesystem) error {
	if !s.doc.Changed() {
		logging.Debug("sidecar unchanged", zap.String("op", s.op), zap.String("path", s.name))
		return nil
	}
	if err := Save(fs, s.name, s.doc); err != nil {
		return &OpError{Op: s.op, Path: s.name, Err: err}
	}
	logging.Info("sidecar written", zap.String("op", s.op), zap.String("path", s.name))
	return nil
}

// CreateFilter defines name under parent and returns the new filter path.
// An existing definition is left as is.
func (e *Editor) CreateFilter(parent, name string) (string, error) {
	const op = "create filter"
	if name == "" || strings.Contains(name, graph.Separator) {
		return "", invalid(op, ErrInvalidName)
	}
	newPath := graph.Join(parent, name)
	if !graph.Valid(newPath) {
		return "", invalid(op, ErrInvalidName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, true)
	if err != nil {
		return "", err
	}
	if s.doc.FindFilter(newPath) == nil {
		s.doc.AddFilter(newPath, sidecar.NewUniqueIdentifier())
	}
	return newPath, s.commit(e.FS)
}

// DeleteFilter removes the definition of p and of everything nested under
// it, and drops the filter reference of every file in that subtree. Files
// stay on disk and become unfiltered.
func (e *Editor) DeleteFilter(p string) error {
	const op = "delete filter"
	p = graph.Clean(p)
	if p == "" {
		return invalid(op, ErrRootFilter)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return err
	}
	for _, f := range s.doc.Filters() {
		if graph.IsWithin(graph.Clean(f.Include), p) {
			s.doc.Remove(f)
		}
	}
	for _, f := range s.doc.Files() {
		if graph.IsWithin(graph.Clean(f.Filter), p) {
			f.SetFilter("")
		}
	}
	return s.commit(e.FS)
}

// MoveFile associates location with dest. An empty dest makes the file
// unfiltered. Files the sidecar does not list yet get a new entry typed by
// extension.
func (e *Editor) MoveFile(location, dest string) error {
	const op = "move file"
	rel, err := e.rel(location)
	if err != nil {
		return invalid(op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, true)
	if err != nil {
		return err
	}
	include := graph.RelToInclude(rel)
	entries := s.doc.FindFiles(include)
	if len(entries) == 0 {
		s.doc.AddFile(sidecar.EntryType(rel), include, dest)
	}
	for _, f := range entries {
		f.SetFilter(dest)
	}
	return s.commit(e.FS)
}

// MoveFilter re-parents src under destParent and returns its new path.
// Definitions and file references in the moved subtree are rebased. When
// the destination already defines the same path the definitions merge.
func (e *Editor) MoveFilter(src, destParent string) (string, error) {
	const op = "move filter"
	src, destParent = graph.Clean(src), graph.Clean(destParent)
	if src == "" {
		return "", invalid(op, ErrRootFilter)
	}
	if destParent == src || graph.IsWithin(destParent, src) {
		return "", invalid(op, ErrCycle)
	}
	newPath := graph.Join(destParent, graph.Base(src))
	if newPath == src {
		return src, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return newPath, err
	}
	// References are matched and rewritten in canonical form, so sloppy
	// spellings such as `Src\\Module\` move along with the subtree.
	for _, f := range s.doc.Filters() {
		if p, ok := graph.Rebase(graph.Clean(f.Include), src, newPath); ok {
			f.SetInclude(p)
		}
	}
	for _, f := range s.doc.Files() {
		if p, ok := graph.Rebase(graph.Clean(f.Filter), src, newPath); ok {
			f.SetFilter(p)
		}
	}
	dedupeFilters(s.doc)
	return newPath, s.commit(e.FS)
}

// dedupeFilters keeps the first definition of every filter path.
func dedupeFilters(doc *sidecar.Document) {
	seen := make(map[string]bool)
	for _, f := range doc.Filters() {
		if seen[graph.Clean(f.Include)] {
			doc.Remove(f)
			continue
		}
		seen[graph.Clean(f.Include)] = true
	}
}

// RenameFile points entries for oldLocation at newLocation. Renaming a
// directory rewrites every entry below it.
func (e *Editor) RenameFile(oldLocation, newLocation string) error {
	const op = "rename file"
	oldRel, err := e.rel(oldLocation)
	if err != nil {
		return invalid(op, err)
	}
	newRel, err := e.rel(newLocation)
	if err != nil {
		return invalid(op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return err
	}
	oldInclude := graph.RelToInclude(oldRel)
	for _, f := range s.doc.Files() {
		switch {
		case graph.SameInclude(f.Include, oldInclude):
			f.SetInclude(graph.RelToInclude(newRel))
		case graph.IncludeWithin(f.Include, oldInclude):
			// Case folding can change byte lengths, so the matched
			// directory is dropped by segment count.
			segs := strings.Split(graph.IncludeToRel(f.Include), "/")
			n := len(strings.Split(oldRel, "/"))
			f.SetInclude(graph.RelToInclude(newRel + "/" + strings.Join(segs[n:], "/")))
		}
	}
	return s.commit(e.FS)
}

// DeleteFile removes every entry for location, or below it when location
// was a directory.
func (e *Editor) DeleteFile(location string) error {
	const op = "delete file"
	rel, err := e.rel(location)
	if err != nil {
		return invalid(op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return err
	}
	include := graph.RelToInclude(rel)
	for _, f := range s.doc.Files() {
		if graph.SameInclude(f.Include, include) || graph.IncludeWithin(f.Include, include) {
			s.doc.Remove(f)
		}
	}
	return s.commit(e.FS)
}

// FilterOf returns the filter location is associated with. ok is false for
// unfiltered files and when there is no sidecar.
func (e *Editor) FilterOf(location string) (string, bool, error) {
	const op = "filter of"
	rel, err := e.rel(location)
	if err != nil {
		return "", false, invalid(op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return "", false, err
	}
	for _, f := range s.doc.FindFiles(graph.RelToInclude(rel)) {
		if f.Filter != "" {
			return f.Filter, true, nil
		}
	}
	return "", false, nil
}

// Prune drops entries for files that no longer exist and reports how many
// were removed. A second call with no disk changes removes nothing and
// writes nothing.
func (e *Editor) Prune() (int, error) {
	const op = "prune"

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.open(op, false)
	if err != nil || s == nil {
		return 0, err
	}
	stale := sidecar.Stale(e.FS, s.doc)
	for _, f := range stale {
		logging.Debug("pruning stale entry", zap.String("include", f.Include))
		s.doc.Remove(f)
	}
	return len(stale), s.commit(e.FS)
}

// rel turns a location into a slash-separated path relative to the
// workspace. Relative locations are taken as already relative.
func (e *Editor) rel(location string) (string, error) {
	if location == "" {
		return "", errors.New("empty location")
	}
	if !filepath.IsAbs(location) {
		return cleanRel(filepath.ToSlash(location))
	}
	r, err := filepath.Rel(e.Workspace, location)
	if err != nil {
		return "", ErrOutsideWorkspace
	}
	return cleanRel(filepath.ToSlash(r))
}

func cleanRel(rel string) (string, error) {
	rel = graph.IncludeToRel(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrOutsideWorkspace
	}
	return rel, nil
}
