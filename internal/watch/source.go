package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/logging"
)

// Excluder reports whether a workspace-relative, slash-separated path is
// excluded.
type Excluder interface {
	Excluded(rel string, dir bool) bool
}

// Event is a classified change inside one workspace.
type Event struct {
	Kind      Kind
	Workspace string
	Location  string // absolute
}

// Source turns fsnotify events under a workspace into Events. Excluded paths
// never produce an Event, and writes only count for the sidecar.
type Source struct {
	workspace string
	pattern   string
	excl      Excluder
	w         *fsnotify.Watcher
	watched   map[string]bool
}

// NewSource watches every non-excluded directory under workspace.
func NewSource(workspace, sidecarPattern string, excl Excluder) (*Source, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &Source{
		workspace: workspace,
		pattern:   sidecarPattern,
		excl:      excl,
		w:         w,
		watched:   make(map[string]bool),
	}
	if err := s.addTree(workspace); err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := s.rel(p); ok && s.excl != nil && s.excl.Excluded(rel, true) {
			return filepath.SkipDir
		}
		if s.watched[p] {
			return nil
		}
		if err := s.w.Add(p); err != nil {
			return err
		}
		s.watched[p] = true
		return nil
	})
}

func (s *Source) rel(p string) (string, bool) {
	r, err := filepath.Rel(s.workspace, p)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// Classify maps a raw fsnotify event to an Event. ok is false when the
// event must not schedule a rebuild.
func (s *Source) Classify(ev fsnotify.Event) (Event, bool) {
	rel, inside := s.rel(ev.Name)
	if !inside {
		return Event{}, false
	}
	out := Event{Workspace: s.workspace, Location: ev.Name}
	isSidecar, _ := doublestar.Match(s.pattern, filepath.Base(ev.Name))

	fi, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && fi.IsDir()
	if s.excl != nil && s.excl.Excluded(rel, isDir) {
		return Event{}, false
	}

	switch {
	case isSidecar && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0:
		out.Kind = SidecarChanged
	case ev.Op&fsnotify.Create != 0:
		out.Kind = FileCreated
	case ev.Op&fsnotify.Remove != 0:
		out.Kind = FileDeleted
	case ev.Op&fsnotify.Rename != 0:
		out.Kind = Renamed
	default:
		return Event{}, false
	}
	return out, true
}

// Run delivers events to fn until ctx is done or the watcher closes. New
// directories are watched as they appear.
func (s *Source) Run(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.w.Events:
			if !ok {
				return nil
			}
			out, ok := s.Classify(ev)
			if !ok {
				continue
			}
			if out.Kind == FileCreated {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := s.addTree(ev.Name); err != nil {
						logging.Warn("cannot watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			logging.Debug("change event", zap.Stringer("kind", out.Kind), zap.String("location", out.Location))
			fn(out)
		case err, ok := <-s.w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", zap.String("workspace", s.workspace), zap.Error(err))
		}
	}
}

func (s *Source) Close() error {
	return s.w.Close()
}
