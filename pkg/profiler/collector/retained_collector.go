package collector

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
)

// retainedEntry is the record kept for one still-live allocation.
type retainedEntry struct {
	Stack stack.StackID
	Size  uint64
	At    clock.Stamp
}

// RetainedCollector tracks every allocation still live at Stop. It
// subscribes to NEWOBJ/FREEOBJ, records each new object's allocation
// stack and drops the record on FREEOBJ; Stop forces GCRunsOnStop collections (typically
// two, to flush finalizer-pinned garbage) before reading out what's
// left.
type RetainedCollector struct {
	opts *RetainedOptions
	rt   host.Runtime

	stacks *stack.Table

	mu             sync.Mutex
	running        bool
	live           map[host.ObjectID]retainedEntry
	uninstallAlloc func() error
}

// NewRetainedCollector constructs a RetainedCollector bound to rt.
func NewRetainedCollector(rt host.Runtime, opt ...RetainedOption) *RetainedCollector {
	opts := defaultRetainedOptions()
	for _, o := range opt {
		o(opts)
	}
	return &RetainedCollector{
		opts:   opts,
		rt:     rt,
		stacks: stack.New(),
		live:   make(map[host.ObjectID]retainedEntry),
	}
}

// Stacks exposes the interned StackTable.
func (rc *RetainedCollector) Stacks() *stack.Table { return rc.stacks }

// Start installs the allocation hook.
func (rc *RetainedCollector) Start() error {
	rc.mu.Lock()
	if rc.running {
		rc.mu.Unlock()
		return ErrAlreadyRunning
	}
	rc.running = true
	rc.mu.Unlock()

	uninstall, err := rc.rt.InstallAllocHooks(rc.onAlloc)
	if err != nil {
		return errors.Wrap(err, "retained collector: install alloc hooks")
	}
	rc.uninstallAlloc = uninstall
	return nil
}

// Stop removes the allocation hook, forces GCRunsOnStop collections so
// anything only reachable via a finalizer gets a chance to die, and
// relocates any objects a movable-GC host reports as moved.
func (rc *RetainedCollector) Stop() error {
	rc.mu.Lock()
	if !rc.running {
		rc.mu.Unlock()
		return ErrNotRunning
	}
	rc.running = false
	rc.mu.Unlock()

	if rc.uninstallAlloc != nil {
		if err := rc.uninstallAlloc(); err != nil {
			return errors.Wrap(err, "retained collector: uninstall alloc hooks")
		}
	}

	for i := 0; i < rc.opts.GCRunsOnStop; i++ {
		rc.rt.GC()
		rc.compact()
	}

	rc.stacks.Finalize(rc.rt)
	return nil
}

// compact relocates every tracked object id through the runtime's
// Compactor, dropping entries the host reports as collected.
func (rc *RetainedCollector) compact() {
	compactor, ok := rc.rt.(host.Compactor)
	if !ok {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	relocated := make(map[host.ObjectID]retainedEntry, len(rc.live))
	for id, entry := range rc.live {
		newID, ok := compactor.Relocate(id)
		if !ok {
			continue
		}
		relocated[newID] = entry
	}
	rc.live = relocated
}

func (rc *RetainedCollector) onAlloc(ev host.AllocEventKind, obj host.ObjectID) {
	switch ev {
	case host.AllocNewObj:
		var raw stack.RawSample
		raw.Sample(rc.rt, 0)
		if raw.Empty() {
			return
		}
		id, err := rc.stacks.StackIndex(&raw)
		if err != nil {
			return
		}
		size, err := rc.rt.ObjectSize(obj)
		if err != nil {
			size = 0
		}

		rc.mu.Lock()
		rc.live[obj] = retainedEntry{Stack: id, Size: size, At: clock.Now()}
		rc.mu.Unlock()

	case host.AllocFreeObj:
		rc.mu.Lock()
		delete(rc.live, obj)
		rc.mu.Unlock()
	}
}

// Live returns a snapshot of every allocation still tracked.
func (rc *RetainedCollector) Live() map[host.ObjectID]retainedEntry {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[host.ObjectID]retainedEntry, len(rc.live))
	for k, v := range rc.live {
		out[k] = v
	}
	return out
}
