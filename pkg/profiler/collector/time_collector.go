// Package collector implements the three sampling/tracing collectors
// (TimeCollector, RetainedCollector, AllocationCollector), the
// MemoryTracker, and the Result type they all feed into.
package collector

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/internal/periodic"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/marker"
	"github.com/jhawthorn/vernier/pkg/profiler/rendezvous"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
	"github.com/jhawthorn/vernier/pkg/profiler/thread"
)

// Category classifies a timeSample by what the sampled thread was
// doing when it was taken, matching the scheduling state observed at
// sample time.
type Category int

const (
	CategoryNormal Category = iota
	CategoryIdle
	CategoryStalled
)

// timeSample is one sampled stack for one thread at one tick. Weight
// counts how many consecutive ticks collapsed into this entry.
type timeSample struct {
	Thread   host.ThreadHandle
	At       clock.Stamp
	Stack    stack.StackID
	Category Category
	Weight   int64
}

// TimeCollector runs a periodic sampler thread that, every tick, takes
// a stack sample of each live managed thread and records GIL
// scheduling/GC markers.
type TimeCollector struct {
	opts *TimeOptions
	rt   host.Runtime

	stacks  *stack.Table
	threads *thread.Table
	coord   *rendezvous.Coordinator

	mu          sync.Mutex
	running     bool
	samples     []timeSample
	translators map[host.ThreadHandle]*stack.Translator
	liveBuf     map[host.ThreadHandle]*stack.RawSample

	markersMu sync.Mutex
	markers   map[host.ThreadHandle]*marker.GCTable

	sampler          *periodic.Thread
	uninstallSched   func() error
	uninstallEvents  func() error
}

// NewTimeCollector constructs a TimeCollector bound to rt. It does not
// install any hooks until Start.
func NewTimeCollector(rt host.Runtime, opt ...TimeOption) (*TimeCollector, error) {
	opts := defaultTimeOptions()
	for _, o := range opt {
		o(opts)
	}
	if opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}

	tc := &TimeCollector{
		opts:        opts,
		rt:          rt,
		stacks:      stack.New(),
		threads:     thread.New(),
		coord:       rendezvous.New(rt),
		translators: make(map[host.ThreadHandle]*stack.Translator),
		liveBuf:     make(map[host.ThreadHandle]*stack.RawSample),
		markers:     make(map[host.ThreadHandle]*marker.GCTable),
	}
	tc.sampler = &periodic.Thread{Interval: opts.Interval, Worker: tc, Name: "vernier-sampler", Logger: opts.Logger}
	return tc, nil
}

// Stacks exposes the interned StackTable, primarily for Result
// building and tests.
func (tc *TimeCollector) Stacks() *stack.Table { return tc.stacks }

// Start seeds the thread table from host.Runtime.LiveThreads, installs
// the scheduling/event hooks, and launches the sampler thread.
func (tc *TimeCollector) Start() error {
	tc.mu.Lock()
	if tc.running {
		tc.mu.Unlock()
		return ErrAlreadyRunning
	}
	tc.running = true
	tc.mu.Unlock()

	now := clock.Now()
	for _, h := range tc.rt.LiveThreads() {
		tc.threads.Ensure(h, 0, now)
	}

	uninstallSched, err := tc.rt.InstallThreadSchedulingHooks(tc.onSchedulingEvent)
	if err != nil {
		return errors.Wrap(err, "time collector: install scheduling hooks")
	}
	tc.uninstallSched = uninstallSched

	uninstallEvents, err := tc.rt.InstallEventHooks(tc.onEvent)
	if err != nil {
		return errors.Wrap(err, "time collector: install event hooks")
	}
	tc.uninstallEvents = uninstallEvents

	tc.coord.Install()
	tc.sampler.Start()
	return nil
}

// Stop halts the sampler thread and removes the installed hooks,
// aggregating any uninstall failures without losing a pending sample.
func (tc *TimeCollector) Stop() error {
	tc.mu.Lock()
	if !tc.running {
		tc.mu.Unlock()
		return ErrNotRunning
	}
	tc.running = false
	tc.mu.Unlock()

	tc.sampler.Stop()
	tc.coord.Uninstall()

	var result *multierror.Error
	if tc.uninstallSched != nil {
		if err := tc.uninstallSched(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "uninstall scheduling hooks"))
		}
	}
	if tc.uninstallEvents != nil {
		if err := tc.uninstallEvents(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "uninstall event hooks"))
		}
	}
	return result.ErrorOrNil()
}

// RunIteration implements periodic.Worker: one sampling tick over every
// tracked thread. A Running thread gets a live stack sample; a
// Suspended or Ready thread gets charged the stack it was last running
// on (stack_on_suspend) under the IDLE/STALLED category, so time spent
// off-CPU still shows up in the profile.
func (tc *TimeCollector) RunIteration() {
	now := clock.Now()
	for _, th := range tc.threads.Snapshot() {
		switch th.State() {
		case thread.Running:
			tc.sampleThread(th, now)
		case thread.Suspended:
			tc.appendSample(th.Handle, now, th.StackOnSuspend(), CategoryIdle)
		case thread.Ready:
			tc.appendSample(th.Handle, now, th.StackOnSuspend(), CategoryStalled)
		}
	}
	tc.stacks.Finalize(tc.rt)
}

// appendSample records one sample, collapsing it into the same thread's
// previous entry when that entry has the same stack and category — the
// weight then counts the occurrences instead of emitting a run of
// identical records.
func (tc *TimeCollector) appendSample(h host.ThreadHandle, now clock.Stamp, id stack.StackID, cat Category) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for i := len(tc.samples) - 1; i >= 0; i-- {
		last := &tc.samples[i]
		if last.Thread != h {
			continue
		}
		if last.Stack == id && last.Category == cat {
			last.Weight++
			return
		}
		break
	}
	tc.samples = append(tc.samples, timeSample{Thread: h, At: now, Stack: id, Category: cat, Weight: 1})
}

func (tc *TimeCollector) sampleThread(th *thread.Thread, now clock.Stamp) {
	tc.mu.Lock()
	raw, ok := tc.liveBuf[th.Handle]
	if !ok {
		raw = &stack.RawSample{}
		tc.liveBuf[th.Handle] = raw
	}
	tr, ok := tc.translators[th.Handle]
	if !ok {
		tr = stack.NewTranslator()
		tc.translators[th.Handle] = tr
	}
	tc.mu.Unlock()

	live := rendezvous.NewLiveSample(func() { raw.Sample(tc.rt, 0) })
	ok, err := tc.coord.RecordSample(live, th.OSHandle)
	if err != nil {
		tc.opts.Logger.Warn().Err(err).Msg("sample request failed")
		return
	}
	if !ok {
		// target thread died between snapshot and rendezvous; transient.
		return
	}
	if raw.Empty() {
		return
	}

	id := tr.Translate(tc.stacks, raw)
	tc.appendSample(th.Handle, now, id, CategoryNormal)
}

func (tc *TimeCollector) onSchedulingEvent(ev host.ThreadSchedulingEvent, h host.ThreadHandle, os host.OSThreadHandle) {
	now := clock.Now()

	captureStack := func() stack.StackID {
		var raw stack.RawSample
		raw.Sample(tc.rt, 0)
		if raw.Empty() {
			return stack.Root
		}
		tc.mu.Lock()
		tr, ok := tc.translators[h]
		if !ok {
			tr = stack.NewTranslator()
			tc.translators[h] = tr
		}
		tc.mu.Unlock()
		return tr.Translate(tc.stacks, &raw)
	}

	var to thread.State
	switch ev {
	case host.ThreadSchedStarted:
		to = thread.Started
	case host.ThreadSchedReady:
		to = thread.Ready
	case host.ThreadSchedResumed:
		to = thread.Running
	case host.ThreadSchedSuspended:
		to = thread.Suspended
	case host.ThreadSchedExited:
		to = thread.Stopped
	default:
		return
	}

	tr := tc.threads.SetState(h, os, to, now, captureStack)
	if tr.Marker == thread.MarkerNone {
		return
	}

	mt := tc.markerTableFor(h)
	switch tr.Marker {
	case thread.MarkerThreadRunning:
		mt.RecordInterval(marker.ThreadRunning, tr.FromAt, now)
	case thread.MarkerThreadStalled:
		mt.RecordInterval(marker.ThreadStalled, tr.FromAt, now)
	case thread.MarkerThreadSuspended:
		mt.RecordInterval(marker.ThreadSuspended, tr.FromAt, now)
	}
}

func (tc *TimeCollector) onEvent(ev host.EventKind, h host.ThreadHandle, fiberID uint64, gcCause, gcState string) {
	now := clock.Now()
	mt := tc.markerTableFor(h)

	switch ev {
	case host.EventThreadBegin:
		mt.RecordInstant(marker.GVLThreadStarted, now)
	case host.EventThreadEnd:
		mt.RecordInstant(marker.GVLThreadExited, now)
	case host.EventFiberSwitch:
		stackIdx := int32(stack.Root)
		var raw stack.RawSample
		raw.Sample(tc.rt, 0)
		if id, err := tc.stacks.StackIndex(&raw); err == nil {
			stackIdx = int32(id)
		}
		mt.RecordInstantWithStack(marker.FiberSwitch, now, stackIdx, marker.Extra{FiberID: fiberID, HasExtra: true})
	case host.EventGCStart:
		mt.RecordInstant(marker.GCStart, now)
	case host.EventGCEndMark:
		mt.RecordInstant(marker.GCEndMark, now)
	case host.EventGCEndSweep:
		mt.RecordInstant(marker.GCEndSweep, now)
	case host.EventGCEnter:
		mt.RecordGCEnter(now)
	case host.EventGCExit:
		mt.RecordGCLeave(now, gcCause, gcState)
	}
}

func (tc *TimeCollector) markerTableFor(h host.ThreadHandle) *marker.GCTable {
	tc.markersMu.Lock()
	defer tc.markersMu.Unlock()
	mt, ok := tc.markers[h]
	if !ok {
		mt = &marker.GCTable{}
		tc.markers[h] = mt
	}
	return mt
}

// Markers returns the per-thread marker tables collected so far.
func (tc *TimeCollector) Markers() map[host.ThreadHandle]*marker.GCTable {
	tc.markersMu.Lock()
	defer tc.markersMu.Unlock()
	out := make(map[host.ThreadHandle]*marker.GCTable, len(tc.markers))
	for k, v := range tc.markers {
		out[k] = v
	}
	return out
}

// Threads exposes the ThreadTable, for Result building and tests.
func (tc *TimeCollector) Threads() *thread.Table { return tc.threads }

// Samples returns a copy of the samples recorded so far.
func (tc *TimeCollector) Samples() []timeSample {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]timeSample, len(tc.samples))
	copy(out, tc.samples)
	return out
}
