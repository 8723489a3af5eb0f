package collector

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
)

// allocSample is one recorded Nth allocation. Unlike RetainedCollector
// these are never removed on FREEOBJ: every sampled allocation stays
// in the record, live or not.
type allocSample struct {
	Stack stack.StackID
	Size  uint64
	At    clock.Stamp
}

// AllocationCollector records every SampleRate-th NEWOBJ's allocation
// stack, regardless of whether the object is later freed.
type AllocationCollector struct {
	opts *AllocationOptions
	rt   host.Runtime

	stacks *stack.Table

	counter int64

	mu             sync.Mutex
	running        bool
	samples        []allocSample
	uninstallAlloc func() error
}

// NewAllocationCollector constructs an AllocationCollector bound to rt.
func NewAllocationCollector(rt host.Runtime, opt ...AllocationOption) (*AllocationCollector, error) {
	opts := defaultAllocationOptions()
	for _, o := range opt {
		o(opts)
	}
	if opts.SampleRate < 1 {
		return nil, ErrInvalidSampleRate
	}
	return &AllocationCollector{
		opts:   opts,
		rt:     rt,
		stacks: stack.New(),
	}, nil
}

// Stacks exposes the interned StackTable.
func (ac *AllocationCollector) Stacks() *stack.Table { return ac.stacks }

// Start installs the allocation hook.
func (ac *AllocationCollector) Start() error {
	ac.mu.Lock()
	if ac.running {
		ac.mu.Unlock()
		return ErrAlreadyRunning
	}
	ac.running = true
	ac.mu.Unlock()

	uninstall, err := ac.rt.InstallAllocHooks(ac.onAlloc)
	if err != nil {
		return errors.Wrap(err, "allocation collector: install alloc hooks")
	}
	ac.uninstallAlloc = uninstall
	return nil
}

// Stop removes the allocation hook and finalizes the StackTable.
func (ac *AllocationCollector) Stop() error {
	ac.mu.Lock()
	if !ac.running {
		ac.mu.Unlock()
		return ErrNotRunning
	}
	ac.running = false
	ac.mu.Unlock()

	if ac.uninstallAlloc != nil {
		if err := ac.uninstallAlloc(); err != nil {
			return errors.Wrap(err, "allocation collector: uninstall alloc hooks")
		}
	}
	ac.stacks.Finalize(ac.rt)
	return nil
}

func (ac *AllocationCollector) onAlloc(ev host.AllocEventKind, obj host.ObjectID) {
	if ev != host.AllocNewObj {
		return
	}
	n := atomic.AddInt64(&ac.counter, 1)
	if (n-1)%int64(ac.opts.SampleRate) != 0 {
		return
	}

	var raw stack.RawSample
	raw.Sample(ac.rt, 0)
	if raw.Empty() {
		return
	}
	id, err := ac.stacks.StackIndex(&raw)
	if err != nil {
		return
	}
	size, err := ac.rt.ObjectSize(obj)
	if err != nil {
		size = 0
	}

	ac.mu.Lock()
	ac.samples = append(ac.samples, allocSample{Stack: id, Size: size, At: clock.Now()})
	ac.mu.Unlock()
}

// Samples returns a copy of the samples recorded so far.
func (ac *AllocationCollector) Samples() []allocSample {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	out := make([]allocSample, len(ac.samples))
	copy(out, ac.samples)
	return out
}
