package graph

import (
	"sync"
)

// HotSwapTree holds the current tree of one workspace. Rebuilds swap in a
// whole new tree; nothing patches a published tree in place.
type HotSwapTree struct {
	mu      sync.RWMutex
	current *Tree
	err     error
	version uint64
}

func NewHotSwapTree() *HotSwapTree {
	return &HotSwapTree{}
}

// Swap publishes a freshly built tree, or the error that prevented building.
func (h *HotSwapTree) Swap(t *Tree, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = t
	h.err = err
	h.version++
}

// Invalidate drops the published tree so the next Load reports a miss.
func (h *HotSwapTree) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
	h.err = nil
}

// Load returns the published tree or build error. ok is false when nothing
// has been published since the last invalidation.
func (h *HotSwapTree) Load() (t *Tree, err error, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil && h.err == nil {
		return nil, nil, false
	}
	return h.current, h.err, true
}

// Version counts swaps; it lets callers tell whether a rebuild happened.
func (h *HotSwapTree) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}
