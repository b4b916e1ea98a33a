// Package watch implements the watcher and batcher (C10, C11): an
// fsnotify-based watcher generalized from the teacher's one-project
// CodeWatcher to N repositories, a per-path debouncer, and a generic
// size+timeout batcher, grounded on internal/indexer/code_watcher.go.
package watch

import (
	"sync"
	"time"
)

// EventKind mirrors the three filesystem event kinds the debouncer
// aggregates (§4.9).
type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventDelete
)

// Event is a single filesystem change for one path.
type Event struct {
	Path string
	Kind EventKind
}

// Debouncer holds one pending event per path, re-arming a window timer on
// every update and applying the aggregation rules in §4.9: Create followed
// by Modify collapses into Create; Delete followed by anything clears the
// pending state.
type Debouncer struct {
	window time.Duration
	emit   func(Event)

	mu      sync.Mutex
	pending map[string]Event
	timers  map[string]*time.Timer
}

// NewDebouncer builds a Debouncer that calls emit with the coalesced event
// for a path once window has elapsed since its last update.
func NewDebouncer(window time.Duration, emit func(Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		emit:    emit,
		pending: make(map[string]Event),
		timers:  make(map[string]*time.Timer),
	}
}

// Push records evt for its path, updating or clearing the pending state per
// the aggregation rules, and (re)arms the path's timer.
func (d *Debouncer) Push(evt Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if evt.Kind == EventDelete {
		d.pending[evt.Path] = evt
	} else if prev, ok := d.pending[evt.Path]; ok && prev.Kind == EventCreate && evt.Kind == EventModify {
		// Create + Modify collapses into Create: the file is still "new"
		// from the caller's point of view.
		d.pending[evt.Path] = Event{Path: evt.Path, Kind: EventCreate}
	} else {
		d.pending[evt.Path] = evt
	}

	if t, ok := d.timers[evt.Path]; ok {
		t.Stop()
	}
	path := evt.Path
	d.timers[path] = time.AfterFunc(d.window, func() { d.fire(path) })
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	evt, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
		delete(d.timers, path)
	}
	d.mu.Unlock()

	if ok {
		d.emit(evt)
	}
}

// Stop cancels every armed timer without emitting their pending events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = make(map[string]*time.Timer)
	d.pending = make(map[string]Event)
}
