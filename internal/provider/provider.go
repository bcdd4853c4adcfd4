package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/filtertree/internal/graph"
	"github.com/agentic-research/filtertree/internal/ingest"
	"github.com/agentic-research/filtertree/internal/logging"
	"github.com/agentic-research/filtertree/internal/watch"
	"github.com/agentic-research/filtertree/internal/writeback"
)

var (
	ErrUnknownRoot = errors.New("location is not inside any workspace root")
	ErrCrossRoot   = errors.New("source and destination belong to different workspace roots")
)

// root is the state kept for one workspace root. Its tree is built on first
// use and replaced wholesale after every invalidation.
type root struct {
	workspace string
	slot      *graph.HotSwapTree
	editor    *writeback.Editor
}

// Provider is the interface a host UI drives: lazy per-root trees, the
// mutation operations and change notification.
type Provider struct {
	engine    *ingest.Engine
	roots     []*root
	debouncer *watch.Debouncer

	buildMu sync.Mutex // one reconciliation at a time

	mu      sync.Mutex
	pending map[string]bool
	subs    map[int]chan string
	nextSub int
}

// New creates a provider for the given workspace roots. Nothing is read
// from disk until a root is expanded.
func New(engine *ingest.Engine, workspaces ...string) (*Provider, error) {
	p := &Provider{
		engine:  engine,
		pending: make(map[string]bool),
		subs:    make(map[int]chan string),
	}
	seen := make(map[string]bool)
	for _, ws := range workspaces {
		abs, err := filepath.Abs(ws)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace %s: %w", ws, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		p.roots = append(p.roots, &root{
			workspace: abs,
			slot:      graph.NewHotSwapTree(),
			editor:    writeback.NewEditor(osfs.New(abs), abs, engine.Config, engine.Excluder),
		})
	}
	p.debouncer = watch.NewDebouncer(engine.Config.Debounce, p.flushPending)
	return p, nil
}

// Close stops change handling.
func (p *Provider) Close() {
	p.debouncer.Stop()
}

// Roots returns one unpopulated handle per workspace root, in the order the
// roots were given.
func (p *Provider) Roots() []*graph.Filter {
	out := make([]*graph.Filter, 0, len(p.roots))
	for _, r := range p.roots {
		out = append(out, graph.NewRoot(r.workspace))
	}
	return out
}

// Children returns the sorted children of n, building n's tree if needed.
// A root that fails to build reports its error without affecting others.
func (p *Provider) Children(n *graph.Filter) ([]graph.Node, error) {
	r, err := p.rootOf(n)
	if err != nil {
		return nil, err
	}
	tree, err := p.tree(r)
	if err != nil {
		return nil, err
	}
	f, err := tree.Lookup(n.Path)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", n.Path, err)
	}
	return f.Children, nil
}

// Tree returns the current tree of workspace.
func (p *Provider) Tree(workspace string) (*graph.Tree, error) {
	r, err := p.rootFor(workspace)
	if err != nil {
		return nil, err
	}
	return p.tree(r)
}

func (p *Provider) tree(r *root) (*graph.Tree, error) {
	if t, err, ok := r.slot.Load(); ok {
		return t, err
	}
	p.buildMu.Lock()
	defer p.buildMu.Unlock()
	if t, err, ok := r.slot.Load(); ok {
		return t, err
	}

	res, err := p.engine.ReconcileWith(r.editor)
	if err != nil {
		logging.Warn("workspace root failed to build", zap.String("workspace", r.workspace), zap.Error(err))
		r.slot.Swap(nil, err)
		return nil, err
	}
	logging.Info("built filter tree",
		zap.String("workspace", r.workspace),
		zap.String("sidecar", res.Sidecar),
		zap.Int("filters", res.Tree.Len()-1),
		zap.Int("scanned", res.Scanned),
		zap.Bool("truncated", res.Truncated))
	r.slot.Swap(res.Tree, nil)
	return res.Tree, nil
}

// Refresh drops the cached tree of workspace, or of every root when
// workspace is empty, and tells subscribers.
func (p *Provider) Refresh(workspace string) {
	for _, r := range p.roots {
		if workspace == "" || r.workspace == workspace {
			r.slot.Invalidate()
			p.publish(r.workspace)
		}
	}
}

func (p *Provider) CreateFilter(parent *graph.Filter, name string) (string, error) {
	r, err := p.rootOf(parent)
	if err != nil {
		return "", err
	}
	newPath, err := r.editor.CreateFilter(parent.Path, name)
	if err != nil {
		return "", err
	}
	p.changed(r.workspace)
	return newPath, nil
}

func (p *Provider) DeleteFilter(n *graph.Filter) error {
	r, err := p.rootOf(n)
	if err != nil {
		return err
	}
	if err := r.editor.DeleteFilter(n.Path); err != nil {
		return err
	}
	p.changed(r.workspace)
	return nil
}

// MoveFileToFilter files location under dest. A nil or root dest makes the
// file unfiltered.
func (p *Provider) MoveFileToFilter(location string, dest *graph.Filter) error {
	r, location, err := p.rootForLocation(location)
	if err != nil {
		return err
	}
	destPath := ""
	if dest != nil {
		if d, err := p.rootOf(dest); err != nil || d != r {
			return ErrCrossRoot
		}
		destPath = dest.Path
	}
	if err := r.editor.MoveFile(location, destPath); err != nil {
		return err
	}
	p.changed(r.workspace)
	return nil
}

func (p *Provider) MoveFilterToParent(src, dest *graph.Filter) (string, error) {
	r, err := p.rootOf(src)
	if err != nil {
		return "", err
	}
	if d, err := p.rootOf(dest); err != nil || d != r {
		return "", ErrCrossRoot
	}
	newPath, err := r.editor.MoveFilter(src.Path, dest.Path)
	if err != nil {
		return "", err
	}
	p.changed(r.workspace)
	return newPath, nil
}

// WorkspaceOf returns the innermost root that contains location.
func (p *Provider) WorkspaceOf(location string) (string, error) {
	r, _, err := p.rootForLocation(location)
	if err != nil {
		return "", err
	}
	return r.workspace, nil
}

func (p *Provider) FilterOf(location string) (string, bool, error) {
	r, location, err := p.rootForLocation(location)
	if err != nil {
		return "", false, err
	}
	return r.editor.FilterOf(location)
}

func (p *Provider) RenameFileInFilters(oldLocation, newLocation string) error {
	r, oldLocation, err := p.rootForLocation(oldLocation)
	if err != nil {
		return err
	}
	if newLocation, err = filepath.Abs(newLocation); err != nil {
		return err
	}
	if err := r.editor.RenameFile(oldLocation, newLocation); err != nil {
		return err
	}
	p.changed(r.workspace)
	return nil
}

func (p *Provider) DeleteFileFromFilters(location string) error {
	r, location, err := p.rootForLocation(location)
	if err != nil {
		return err
	}
	if err := r.editor.DeleteFile(location); err != nil {
		return err
	}
	p.changed(r.workspace)
	return nil
}

// Prune removes stale entries from workspace's sidecar.
func (p *Provider) Prune(workspace string) (int, error) {
	r, err := p.rootFor(workspace)
	if err != nil {
		return 0, err
	}
	n, err := r.editor.Prune()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.changed(r.workspace)
	}
	return n, nil
}

// Subscribe returns a channel that receives a workspace path whenever that
// root's tree was invalidated. The returned func unsubscribes.
func (p *Provider) Subscribe() (<-chan string, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan string, 16)
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Provider) publish(workspace string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- workspace:
		default:
		}
	}
}

// Notify feeds a change trigger into the debouncer. Locations outside every
// root or matching an exclusion pattern are dropped before scheduling.
func (p *Provider) Notify(kind watch.Kind, location string) {
	r, location, err := p.rootForLocation(location)
	if err != nil {
		return
	}
	if kind != watch.SidecarChanged {
		rel, err := filepath.Rel(r.workspace, location)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		fi, statErr := os.Stat(location)
		if p.engine.Excluder.Excluded(rel, statErr == nil && fi.IsDir()) {
			return
		}
	}
	p.mu.Lock()
	p.pending[r.workspace] = true
	p.mu.Unlock()
	if p.debouncer.Trigger() {
		logging.Debug("rebuild scheduled", zap.Stringer("kind", kind), zap.String("location", location))
	}
}

// BeginDrag suppresses rebuilds until EndDrag.
func (p *Provider) BeginDrag() { p.debouncer.BeginDrag() }

// EndDrag ends a drag gesture; a drop rebuilds immediately.
func (p *Provider) EndDrag(dropped bool) { p.debouncer.EndDrag(dropped) }

// changed invalidates a root after one of its sidecar mutations. During a
// drag the notification waits for the drop.
func (p *Provider) changed(workspace string) {
	for _, r := range p.roots {
		if r.workspace == workspace {
			r.slot.Invalidate()
		}
	}
	if p.debouncer.DragActive() {
		p.mu.Lock()
		p.pending[workspace] = true
		p.mu.Unlock()
		return
	}
	p.publish(workspace)
}

// flushPending is the debouncer's rebuild action. With nothing pending, as
// after a bare drop, every root is refreshed.
func (p *Provider) flushPending() {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]bool)
	p.mu.Unlock()

	if len(pending) == 0 {
		p.Refresh("")
		return
	}
	for ws := range pending {
		p.Refresh(ws)
	}
}

// Watch runs a filesystem watcher for every root until ctx is done.
func (p *Provider) Watch(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(p.roots))
	for _, r := range p.roots {
		src, err := watch.NewSource(r.workspace, p.engine.Config.SidecarPattern, p.engine.Excluder)
		if err != nil {
			logging.Warn("cannot watch workspace root", zap.String("workspace", r.workspace), zap.Error(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer src.Close()
			if err := src.Run(ctx, func(ev watch.Event) { p.Notify(ev.Kind, ev.Location) }); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	return errors.Join(collect(errs)...)
}

func collect(ch <-chan error) []error {
	var out []error
	for err := range ch {
		out = append(out, err)
	}
	return out
}

func (p *Provider) rootOf(n *graph.Filter) (*root, error) {
	if n == nil {
		return nil, errors.New("nil filter")
	}
	return p.rootFor(n.Workspace)
}

func (p *Provider) rootFor(workspace string) (*root, error) {
	for _, r := range p.roots {
		if r.workspace == workspace {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, workspace)
}

// rootForLocation picks the innermost root containing location and
// returns the location made absolute.
func (p *Provider) rootForLocation(location string) (*root, string, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, "", err
	}
	var best *root
	for _, r := range p.roots {
		if abs == r.workspace || strings.HasPrefix(abs, r.workspace+string(filepath.Separator)) {
			if best == nil || len(r.workspace) > len(best.workspace) {
				best = r
			}
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownRoot, location)
	}
	return best, abs, nil
}
