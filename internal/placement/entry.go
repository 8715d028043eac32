package placement

import (
	"sync"
	"time"
)

// NodeEntry records the use of one role on one host. All entries of a NodeInstance share the
// instance's lock, so mutations to the slots of one host are serialised while different hosts
// proceed independently.
type NodeEntry struct {
	mu *sync.Mutex

	requested   int
	starting    int
	startFailed int
	live        int
	releasing   int
	completed   int
	failed      int
	lastUsed    time.Time
}

// EntryStatus is a point-in-time copy of a NodeEntry.
type EntryStatus struct {
	Requested   int
	Starting    int
	StartFailed int
	Live        int
	Releasing   int
	Completed   int
	Failed      int
	LastUsed    time.Time
}

// NewNodeEntry returns a detached entry, typically used to merge external state in via Set.
func NewNodeEntry(live int, lastUsed time.Time) *NodeEntry {
	return &NodeEntry{
		mu:       &sync.Mutex{},
		live:     live,
		lastUsed: lastUsed,
	}
}

// entryFrom returns an entry guarded by mu holding the counters of status.
func entryFrom(mu *sync.Mutex, status EntryStatus) *NodeEntry {
	return &NodeEntry{
		mu:          mu,
		requested:   status.Requested,
		starting:    status.Starting,
		startFailed: status.StartFailed,
		live:        status.Live,
		releasing:   status.Releasing,
		completed:   status.Completed,
		failed:      status.Failed,
		lastUsed:    status.LastUsed,
	}
}

func (e *NodeEntry) OnRequested() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requested++
}

// OnStarting moves an outstanding request to the starting state.
func (e *NodeEntry) OnStarting() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.requested > 0 {
		e.requested--
	}
	e.starting++
}

func (e *NodeEntry) OnStartCompleted(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.starting > 0 {
		e.starting--
	}
	e.live++
	e.lastUsed = now
}

func (e *NodeEntry) OnStartFailed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.starting > 0 {
		e.starting--
	}
	e.startFailed++
}

// OnRelease marks one live instance as being released. It returns false if nothing is left to release.
func (e *NodeEntry) OnRelease() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live-e.releasing <= 0 {
		return false
	}
	e.releasing++
	return true
}

// OnCompleted records the end of a live instance; the entry counts as used up to now.
func (e *NodeEntry) OnCompleted(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endInstance(now)
	e.completed++
}

func (e *NodeEntry) OnFailed(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endInstance(now)
	e.failed++
}

func (e *NodeEntry) endInstance(now time.Time) {
	if e.live > 0 {
		e.live--
	}
	if e.releasing > 0 {
		e.releasing--
	}
	e.lastUsed = now
}

// Touch records use at now without changing any counters.
func (e *NodeEntry) Touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = now
}

// Active is the number of live instances not being released.
func (e *NodeEntry) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active()
}

func (e *NodeEntry) active() int {
	return e.live - e.releasing
}

// Available reports whether nothing is running, starting or requested for this role on the host.
func (e *NodeEntry) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available()
}

func (e *NodeEntry) available() bool {
	return e.active() == 0 && e.requested == 0 && e.starting == 0
}

func (e *NodeEntry) LastUsed() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// NotUsedSince is true for an available entry last used strictly before t.
func (e *NodeEntry) NotUsedSince(t time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notUsedSince(t)
}

func (e *NodeEntry) notUsedSince(t time.Time) bool {
	return e.available() && e.lastUsed.Before(t)
}

func (e *NodeEntry) Status() EntryStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status()
}

func (e *NodeEntry) status() EntryStatus {
	return EntryStatus{
		Requested:   e.requested,
		Starting:    e.starting,
		StartFailed: e.startFailed,
		Live:        e.live,
		Releasing:   e.releasing,
		Completed:   e.completed,
		Failed:      e.failed,
		LastUsed:    e.lastUsed,
	}
}
