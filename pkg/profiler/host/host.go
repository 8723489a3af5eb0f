// Package host defines the boundary between the profiler engine and the
// embedding managed runtime. Everything on the other side of this
// interface — the C extension glue, a real VM's GIL, its signal
// delivery, its object model — is an external collaborator and
// explicitly out of scope for this repository; what's in scope is the
// contract the engine is written against, plus a reference
// implementation used by this repo's own tests.
package host

import (
	"time"

	"github.com/pkg/errors"
)

// FrameHandle is the runtime's opaque identifier for a method/iseq. It
// is only meaningful when passed back to the same Runtime that produced
// it.
type FrameHandle uint64

// ThreadHandle identifies a managed-runtime thread object. This is the
// stable identity Thread/ThreadTable key on — never an OS thread id,
// which can be reused after the thread exits.
type ThreadHandle uint64

// OSThreadHandle is the underlying OS-level thread the signal/sample
// rendezvous is delivered to. It is recorded by Thread only while the
// GIL-holding thread itself is transitioning into Running, never
// derived from the sampler goroutine.
type OSThreadHandle uint64

// ObjectID identifies a managed-runtime object, used by the allocation
// collectors. Values may become stale when the runtime moves objects
// (see Compactor).
type ObjectID uint64

// ErrThreadGone is the Go analogue of pthread_kill's ESRCH: the target
// OS thread died between the sampler observing it RUNNING and the
// rendezvous attempt. This is transient, not fatal.
var ErrThreadGone = errors.New("host: target thread no longer exists")

// ErrRSSUnavailable is returned by MemoryReader.RSSBytes when the
// current platform has no implementation wired up.
var ErrRSSUnavailable = errors.New("host: RSS reader not available on this platform")

// FuncInfo is the symbolicated form of a FrameHandle. It is only
// obtained during StackTable finalization, never on the sampler or
// signal path, because resolving it may allocate and call back into the
// runtime.
type FuncInfo struct {
	Label        string
	File         string
	AbsPath      string
	MethodName   string
	ClassPath    string
	FirstLineno  int
	IsSingleton  bool
}

// Runtime is the set of capabilities the profiler engine needs from the
// embedding managed runtime. Implementations split cleanly along a
// signal-handler-safety line:
//
//   - CurrentStack, InGC, IsManagedThread: must be safe to call from
//     whatever stands in for a signal handler on the target platform —
//     no allocation, no locks, tolerant of running while the holder of
//     CurrentStack's own internals is in an inconsistent state.
//   - everything else may allocate and may take locks.
type Runtime interface {
	// CurrentStack fills handles/lines for the calling thread's current
	// call stack, outermost frame first, up to len(handles). It returns
	// the number of frames written. Must be safe to call from the
	// signal/sample-request path (see RawSample.Sample).
	CurrentStack(handles []FrameHandle, lines []int) int

	// InGC reports whether the calling thread is currently inside a GC
	// pause. Signal-handler-safe.
	InGC() bool

	// IsManagedThread reports whether the calling OS thread is a thread
	// the managed runtime knows about. Signal-handler-safe.
	IsManagedThread() bool

	// RequestSample asks the runtime to interrupt target and have it
	// call back into the profiler's sample-capture path (RawSample.Sample)
	// on that thread, as if from a signal handler, then call ready
	// exactly once when the capture has completed. Returns
	// ErrThreadGone if target no longer exists.
	RequestSample(target OSThreadHandle, capture func(), ready func()) error

	// Symbolicate resolves a frame handle into its FuncInfo. May
	// allocate; must never be called while any profiler-internal mutex
	// is held.
	Symbolicate(h FrameHandle) (FuncInfo, error)

	// ObjectSize returns the size in bytes of a still-live object.
	// Non-signal-safe.
	ObjectSize(id ObjectID) (uint64, error)

	// InstallThreadSchedulingHooks subscribes to GIL scheduling
	// transitions; callbacks may run on any OS thread.
	InstallThreadSchedulingHooks(cb ThreadSchedulingCallback) (uninstall func() error, err error)

	// InstallEventHooks subscribes to GC-phase and thread/fiber
	// begin/end events; callbacks run on the GIL-holding thread.
	InstallEventHooks(cb EventCallback) (uninstall func() error, err error)

	// InstallAllocHooks subscribes to NEWOBJ/FREEOBJ notifications,
	// synchronous, GIL-holding.
	InstallAllocHooks(cb AllocCallback) (uninstall func() error, err error)

	// GC triggers a full collection, used by RetainedCollector.Stop.
	GC()

	// LiveThreads lists every interpreter thread known right now, used
	// to seed ThreadTable at TimeCollector.Start.
	LiveThreads() []ThreadHandle

	// CurrentThread returns the calling goroutine's ThreadHandle and
	// OSThreadHandle.
	CurrentThread() (ThreadHandle, OSThreadHandle)
}

// ThreadSchedulingEvent enumerates the GIL scheduling transitions a
// Runtime reports.
type ThreadSchedulingEvent int

const (
	ThreadSchedStarted ThreadSchedulingEvent = iota
	ThreadSchedReady
	ThreadSchedResumed
	ThreadSchedSuspended
	ThreadSchedExited
)

type ThreadSchedulingCallback func(ev ThreadSchedulingEvent, thread ThreadHandle, os OSThreadHandle)

// EventKind enumerates GC-phase and thread/fiber lifecycle events.
type EventKind int

const (
	EventThreadBegin EventKind = iota
	EventThreadEnd
	EventFiberSwitch
	EventGCStart
	EventGCEndMark
	EventGCEndSweep
	EventGCEnter
	EventGCExit
)

// gcCause and gcState are only meaningful for EventGCExit, carrying the
// runtime's reported GC reason and phase for GC_PAUSE's annotation;
// every other EventKind passes them empty.
type EventCallback func(ev EventKind, thread ThreadHandle, fiberID uint64, gcCause, gcState string)

// AllocEventKind distinguishes NEWOBJ from FREEOBJ.
type AllocEventKind int

const (
	AllocNewObj AllocEventKind = iota
	AllocFreeObj
)

type AllocCallback func(ev AllocEventKind, obj ObjectID)

// Compactor is implemented by a Runtime that may move objects during
// GC. RetainedCollector.Stop calls Relocate for every object id it
// still holds after each GC it triggers, dropping ids for which
// Relocate reports false.
type Compactor interface {
	Relocate(id ObjectID) (ObjectID, bool)
}

// MemoryReader is the interface boundary for RSS sampling. Only a
// Linux implementation ships in this repo (internal/proc reads
// /proc/self/statm); other platforms return ErrRSSUnavailable.
type MemoryReader interface {
	RSSBytes() (uint64, error)
}

// SampleTimeout bounds how long the sampler waits for a rendezvous to
// complete. Exceeding it indicates a fatal bug (a target thread that
// never delivers its sample), not a transient condition.
const SampleTimeout = 5 * time.Second
