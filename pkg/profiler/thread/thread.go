// Package thread implements the GIL-scheduling state machine: one
// Thread per host.ThreadHandle, tracked by a single Table that also
// owns the lock ordered ahead of everything else in the collector.
package thread

import (
	"sync"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
)

// State enumerates the GIL-scheduling states a thread passes through.
// Stopped is terminal.
type State int

const (
	Initial State = iota
	Started
	Running
	Ready
	Suspended
	Stopped
)

// Thread is one tracked GIL-managed thread. StackOnSuspend is the
// StackID captured at the instant the thread last transitioned into
// Ready or Suspended — the stack at the moment it stopped running —
// and is the stack TimeCollector charges its IDLE/STALLED samples to.
type Thread struct {
	Handle   host.ThreadHandle
	OSHandle host.OSThreadHandle

	mu             sync.Mutex
	state          State
	stackOnSuspend stack.StackID
	lastChange     clock.Stamp
}

// Transition is the side effect a state change produces, consumed by
// TimeCollector to append markers. FromAt is when the thread entered
// From, and together with At bounds the interval Marker covers.
type Transition struct {
	From, To State
	Marker   TransitionMarker
	FromAt   clock.Stamp
	At       clock.Stamp
}

// TransitionMarker names which marker (if any) a transition should
// emit. MarkerNone means the transition is silent.
type TransitionMarker int

const (
	MarkerNone TransitionMarker = iota
	MarkerThreadRunning
	MarkerThreadStalled
	MarkerThreadSuspended
)

func newThread(h host.ThreadHandle, os host.OSThreadHandle, now clock.Stamp) *Thread {
	return &Thread{Handle: h, OSHandle: os, state: Initial, stackOnSuspend: stack.Root, lastChange: now}
}

// State returns the thread's current state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StackOnSuspend returns the stack captured at the last Ready/Suspended
// transition.
func (t *Thread) StackOnSuspend() stack.StackID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stackOnSuspend
}

// setState applies the GIL-scheduling transition table and returns the
// marker side effect, if any. Must be called with t.mu held.
func (t *Thread) setState(to State, now clock.Stamp, captureStack func() stack.StackID) Transition {
	from := t.state
	fromAt := t.lastChange

	switch to {
	case Started:
		if isLive(from) {
			// Idempotent: a second START hook must not clobber a
			// thread that's already Running/Ready/Suspended.
			return Transition{From: from, To: from, At: now}
		}
		t.state = Running
		t.lastChange = now
		return Transition{From: from, To: Running, At: now}

	case Running:
		t.state = Running
		t.lastChange = now
		return Transition{From: from, To: Running, Marker: markerFor(from), FromAt: fromAt, At: now}

	case Ready:
		if from == Suspended || from == Ready {
			// Coalesce: already stopped running, stays put.
			t.state = Ready
			return Transition{From: from, To: Ready, At: now}
		}
		t.stackOnSuspend = captureStack()
		t.state = Ready
		t.lastChange = now
		return Transition{From: from, To: Ready, Marker: MarkerThreadStalled, FromAt: fromAt, At: now}

	case Suspended:
		if from == Suspended {
			// SUSPENDED -> SUSPENDED coalesces into a single interval.
			return Transition{From: from, To: Suspended, At: now}
		}
		t.stackOnSuspend = captureStack()
		t.state = Suspended
		t.lastChange = now
		return Transition{From: from, To: Suspended, Marker: MarkerThreadSuspended, FromAt: fromAt, At: now}

	case Stopped:
		t.state = Stopped
		t.lastChange = now
		return Transition{From: from, To: Stopped, Marker: MarkerThreadRunning, FromAt: fromAt, At: now}
	}

	return Transition{From: from, To: from, At: now}
}

func isLive(s State) bool {
	return s == Running || s == Ready || s == Suspended
}

func markerFor(from State) TransitionMarker {
	switch from {
	case Ready:
		return MarkerThreadStalled
	case Suspended:
		return MarkerThreadRunning
	default:
		return MarkerNone
	}
}

// Table is the set of every thread the profiler has observed, guarded
// by one mutex that covers both membership and every thread's state
// transition. This mutex is outermost in the collector's lock order,
// ahead of the sample rendezvous coordinator and the stack table.
type Table struct {
	mu   sync.Mutex
	byID map[host.ThreadHandle]*Thread
	list []*Thread
}

// New returns an empty Table.
func New() *Table {
	return &Table{byID: make(map[host.ThreadHandle]*Thread)}
}

// Ensure returns the Thread for handle, creating and registering it in
// Initial state if this is the first time it's been seen.
func (tb *Table) Ensure(handle host.ThreadHandle, os host.OSThreadHandle, now clock.Stamp) *Thread {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if th, ok := tb.byID[handle]; ok {
		return th
	}
	th := newThread(handle, os, now)
	tb.byID[handle] = th
	tb.list = append(tb.list, th)
	return th
}

// SetState looks up (creating if necessary) the Thread for handle and
// applies a state transition, returning the Transition for the caller
// to turn into a marker.
func (tb *Table) SetState(handle host.ThreadHandle, os host.OSThreadHandle, to State, now clock.Stamp, captureStack func() stack.StackID) Transition {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	th, ok := tb.byID[handle]
	if !ok {
		th = newThread(handle, os, now)
		tb.byID[handle] = th
		tb.list = append(tb.list, th)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	return th.setState(to, now, captureStack)
}

// Snapshot returns every tracked thread. Used when seeding a sample
// round over LiveThreads.
func (tb *Table) Snapshot() []*Thread {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := make([]*Thread, len(tb.list))
	copy(out, tb.list)
	return out
}

// Lookup returns the Thread for handle, if known.
func (tb *Table) Lookup(handle host.ThreadHandle) (*Thread, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	th, ok := tb.byID[handle]
	return th, ok
}

// Len reports how many threads have ever been observed.
func (tb *Table) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.list)
}
