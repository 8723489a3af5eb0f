// Package marker implements the append-only event/interval log used for
// GC phases, GVL transitions, and fiber switches.
package marker

import (
	"sync"

	"github.com/jhawthorn/vernier/internal/clock"
)

// Type enumerates marker kinds. Values are stable across the engine's
// lifetime.
type Type int

const (
	GVLThreadStarted Type = iota
	GVLThreadExited

	GCStart
	GCEndMark
	GCEndSweep
	GCEnter
	GCExit
	GCPause

	ThreadRunning
	ThreadStalled
	ThreadSuspended

	FiberSwitch
)

// Phase enumerates marker phases. Values must match the downstream
// visualizer's expectations — INSTANT=0, INTERVAL=1, INTERVAL_START=2,
// INTERVAL_END=3.
type Phase int

const (
	Instant Phase = iota
	Interval
	IntervalStart
	IntervalEnd
)

// Extra carries the optional typed fields a marker may attach.
type Extra struct {
	GCCause  string
	GCState  string
	FiberID  uint64
	HasExtra bool
}

// Marker is one entry in a Table. StackIdx is -1 when no stack is
// attached.
type Marker struct {
	Type     Type
	Phase    Phase
	Start    clock.Stamp
	End      clock.Stamp
	HasEnd   bool
	StackIdx int32
	HasStack bool
	Extra    Extra
}

// Table is a per-thread append-only marker log guarded by its own
// mutex, taken only for the duration of an append.
type Table struct {
	mu   sync.Mutex
	List []Marker
}

// RecordInstant appends an INSTANT marker at now.
func (t *Table) RecordInstant(typ Type, now clock.Stamp) {
	t.append(Marker{Type: typ, Phase: Instant, Start: now, StackIdx: -1})
}

// RecordInstantWithStack appends an INSTANT marker carrying a stack
// attribution, used for fiber switches.
func (t *Table) RecordInstantWithStack(typ Type, now clock.Stamp, stackIdx int32, extra Extra) {
	t.append(Marker{Type: typ, Phase: Instant, Start: now, StackIdx: stackIdx, HasStack: true, Extra: extra})
}

// RecordInterval appends an INTERVAL marker spanning [from, to].
func (t *Table) RecordInterval(typ Type, from, to clock.Stamp) {
	t.append(Marker{Type: typ, Phase: Interval, Start: from, End: to, HasEnd: true, StackIdx: -1})
}

// RecordIntervalWithExtra appends an INTERVAL marker with attached
// Extra fields (GC cause/phase).
func (t *Table) RecordIntervalWithExtra(typ Type, from, to clock.Stamp, extra Extra) {
	t.append(Marker{Type: typ, Phase: Interval, Start: from, End: to, HasEnd: true, StackIdx: -1, Extra: extra})
}

func (t *Table) append(m Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.List = append(t.List, m)
}

// Snapshot returns a copy of the current marker list.
func (t *Table) Snapshot() []Marker {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Marker, len(t.List))
	copy(out, t.List)
	return out
}

// GCTable adds the GC_ENTER/GC_EXIT → GC_PAUSE derivation on top of a
// plain Table.
type GCTable struct {
	Table

	mu          sync.Mutex
	lastGCEntry clock.Stamp
}

// RecordGCEnter stashes the enter timestamp for the matching GC_EXIT.
func (g *GCTable) RecordGCEnter(now clock.Stamp) {
	g.mu.Lock()
	g.lastGCEntry = now
	g.mu.Unlock()
}

// RecordGCLeave emits a GC_PAUSE interval from the stashed GC_ENTER to
// now, annotated with the runtime's reported cause/phase.
func (g *GCTable) RecordGCLeave(now clock.Stamp, cause, state string) {
	g.mu.Lock()
	from := g.lastGCEntry
	g.mu.Unlock()

	g.RecordIntervalWithExtra(GCPause, from, now, Extra{GCCause: cause, GCState: state, HasExtra: true})
}
