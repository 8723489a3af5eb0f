// Package testhost implements host.Runtime as a plain in-process
// fake, driven entirely by explicit Set*/Fire* calls from test code.
// It stands in for the embedded VM's C extension glue, letting the
// rest of the engine be exercised without a real managed runtime
// underneath it.
package testhost

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// FakeRuntime is a single-process, single-goroutine-at-a-time
// host.Runtime double. "Current thread" is whatever SetCurrentThread
// last set; RequestSample moves it to target for the duration of the
// capture callback, the way a real signal handler would run on the
// target's own stack.
type FakeRuntime struct {
	mu sync.Mutex

	live    []host.ThreadHandle
	dead    map[host.OSThreadHandle]bool
	managed map[host.OSThreadHandle]bool
	inGC    map[host.OSThreadHandle]bool
	stacks  map[host.OSThreadHandle][]host.FrameHandle
	lines   map[host.OSThreadHandle][]int

	funcInfo map[host.FrameHandle]host.FuncInfo
	objSizes map[host.ObjectID]uint64
	relocate map[host.ObjectID]host.ObjectID

	gcCount int

	schedCB host.ThreadSchedulingCallback
	eventCB host.EventCallback
	allocCB host.AllocCallback

	currentThread host.ThreadHandle
	currentOS     host.OSThreadHandle
}

// New returns a FakeRuntime with no managed threads; an OS thread
// counts as managed once AddLiveThread or SetCurrentThread names it.
func New() *FakeRuntime {
	return &FakeRuntime{
		dead:     make(map[host.OSThreadHandle]bool),
		managed:  make(map[host.OSThreadHandle]bool),
		inGC:     make(map[host.OSThreadHandle]bool),
		stacks:   make(map[host.OSThreadHandle][]host.FrameHandle),
		lines:    make(map[host.OSThreadHandle][]int),
		funcInfo: make(map[host.FrameHandle]host.FuncInfo),
		objSizes: make(map[host.ObjectID]uint64),
		relocate: make(map[host.ObjectID]host.ObjectID),
	}
}

// --- test-side setup -------------------------------------------------

func (f *FakeRuntime) AddLiveThread(h host.ThreadHandle, os host.OSThreadHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = append(f.live, h)
	f.managed[os] = true
}

func (f *FakeRuntime) SetCurrentThread(h host.ThreadHandle, os host.OSThreadHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentThread, f.currentOS = h, os
	f.managed[os] = true
}

func (f *FakeRuntime) SetStack(os host.OSThreadHandle, handles []host.FrameHandle, lines []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stacks[os] = handles
	f.lines[os] = lines
}

func (f *FakeRuntime) SetInGC(os host.OSThreadHandle, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inGC[os] = v
}

func (f *FakeRuntime) MarkDead(os host.OSThreadHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[os] = true
}

func (f *FakeRuntime) SetFuncInfo(h host.FrameHandle, info host.FuncInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcInfo[h] = info
}

func (f *FakeRuntime) SetObjectSize(id host.ObjectID, size uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objSizes[id] = size
}

func (f *FakeRuntime) SetRelocation(from, to host.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relocate[from] = to
}

func (f *FakeRuntime) GCCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gcCount
}

// FireScheduling invokes the installed ThreadSchedulingCallback, if any.
func (f *FakeRuntime) FireScheduling(ev host.ThreadSchedulingEvent, h host.ThreadHandle, os host.OSThreadHandle) {
	f.mu.Lock()
	cb := f.schedCB
	f.mu.Unlock()
	if cb != nil {
		cb(ev, h, os)
	}
}

// FireEvent invokes the installed EventCallback, if any. gcCause and
// gcState are only meaningful for EventGCExit.
func (f *FakeRuntime) FireEvent(ev host.EventKind, h host.ThreadHandle, fiberID uint64, gcCause, gcState string) {
	f.mu.Lock()
	cb := f.eventCB
	f.mu.Unlock()
	if cb != nil {
		cb(ev, h, fiberID, gcCause, gcState)
	}
}

// FireAlloc invokes the installed AllocCallback, if any.
func (f *FakeRuntime) FireAlloc(ev host.AllocEventKind, obj host.ObjectID) {
	f.mu.Lock()
	cb := f.allocCB
	f.mu.Unlock()
	if cb != nil {
		cb(ev, obj)
	}
}

// --- host.Runtime ------------------------------------------------------

func (f *FakeRuntime) CurrentStack(handles []host.FrameHandle, lines []int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := f.stacks[f.currentOS]
	n := copy(handles, hs)
	copy(lines, f.lines[f.currentOS])
	return n
}

func (f *FakeRuntime) InGC() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inGC[f.currentOS]
}

func (f *FakeRuntime) IsManagedThread() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.managed[f.currentOS]
}

func (f *FakeRuntime) RequestSample(target host.OSThreadHandle, capture func(), ready func()) error {
	f.mu.Lock()
	if f.dead[target] {
		f.mu.Unlock()
		return host.ErrThreadGone
	}
	prevOS := f.currentOS
	f.currentOS = target
	f.mu.Unlock()

	capture()

	f.mu.Lock()
	f.currentOS = prevOS
	f.mu.Unlock()

	ready()
	return nil
}

func (f *FakeRuntime) Symbolicate(h host.FrameHandle) (host.FuncInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.funcInfo[h]
	if !ok {
		return host.FuncInfo{}, errors.New("testhost: unknown frame handle")
	}
	return info, nil
}

func (f *FakeRuntime) ObjectSize(id host.ObjectID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.objSizes[id]
	if !ok {
		return 0, errors.New("testhost: unknown object")
	}
	return size, nil
}

func (f *FakeRuntime) InstallThreadSchedulingHooks(cb host.ThreadSchedulingCallback) (func() error, error) {
	f.mu.Lock()
	f.schedCB = cb
	f.mu.Unlock()
	return func() error {
		f.mu.Lock()
		f.schedCB = nil
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *FakeRuntime) InstallEventHooks(cb host.EventCallback) (func() error, error) {
	f.mu.Lock()
	f.eventCB = cb
	f.mu.Unlock()
	return func() error {
		f.mu.Lock()
		f.eventCB = nil
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *FakeRuntime) InstallAllocHooks(cb host.AllocCallback) (func() error, error) {
	f.mu.Lock()
	f.allocCB = cb
	f.mu.Unlock()
	return func() error {
		f.mu.Lock()
		f.allocCB = nil
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *FakeRuntime) GC() {
	f.mu.Lock()
	f.gcCount++
	f.mu.Unlock()
}

func (f *FakeRuntime) LiveThreads() []host.ThreadHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]host.ThreadHandle, len(f.live))
	copy(out, f.live)
	return out
}

func (f *FakeRuntime) CurrentThread() (host.ThreadHandle, host.OSThreadHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentThread, f.currentOS
}

// Relocate implements host.Compactor.
func (f *FakeRuntime) Relocate(id host.ObjectID) (host.ObjectID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to, ok := f.relocate[id]; ok {
		return to, true
	}
	_, stillLive := f.objSizes[id]
	return id, stillLive
}

var _ host.Runtime = (*FakeRuntime)(nil)
var _ host.Compactor = (*FakeRuntime)(nil)
