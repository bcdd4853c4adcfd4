package watch

import (
	"sync"
	"time"
)

// Kind classifies a change trigger.
type Kind int

const (
	SidecarChanged Kind = iota
	FileCreated
	FileDeleted
	Renamed
)

func (k Kind) String() string {
	switch k {
	case SidecarChanged:
		return "sidecar-changed"
	case FileCreated:
		return "file-created"
	case FileDeleted:
		return "file-deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// State is the debouncer's scheduling state.
type State int

const (
	Idle State = iota
	Pending
)

// Debouncer coalesces triggers into one trailing-edge rebuild. A trigger
// while Pending restarts the quiet interval. While a drag is active triggers
// are dropped; a completed drop rebuilds at once.
type Debouncer struct {
	interval time.Duration
	fire     func()

	mu    sync.Mutex
	state State
	drag  bool
	timer *time.Timer
	gen   uint64
	stop  bool
}

func NewDebouncer(interval time.Duration, fire func()) *Debouncer {
	return &Debouncer{interval: interval, fire: fire}
}

// Trigger moves to Pending and (re)starts the quiet interval. It reports
// whether the trigger was accepted.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drag || d.stop {
		return false
	}
	d.cancelLocked()
	d.state = Pending
	gen := d.gen
	d.timer = time.AfterFunc(d.interval, func() { d.expire(gen) })
	return true
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.state != Pending || d.stop {
		d.mu.Unlock()
		return
	}
	d.state = Idle
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}

// cancelLocked stops any pending timer and invalidates its callback.
func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.state = Idle
}

// BeginDrag gates all triggers until EndDrag. A pending rebuild is
// discarded.
func (d *Debouncer) BeginDrag() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drag = true
	d.cancelLocked()
}

// EndDrag lifts the gate. A completed drop fires immediately.
func (d *Debouncer) EndDrag(dropped bool) {
	d.mu.Lock()
	d.drag = false
	if !dropped || d.stop {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	d.mu.Unlock()
	d.fire()
}

// Flush fires now if a rebuild is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.state != Pending || d.stop {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	d.mu.Unlock()
	d.fire()
}

// Stop discards any pending rebuild and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stop = true
}

func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Debouncer) DragActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drag
}
