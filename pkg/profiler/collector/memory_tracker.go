package collector

import (
	"sync"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/internal/periodic"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// memorySample is one RSS reading.
type memorySample struct {
	At    clock.Stamp
	Bytes uint64
}

// MemoryTracker periodically samples process RSS via a host.MemoryReader.
// A reading that errors (host.ErrRSSUnavailable on unsupported
// platforms) is silently dropped rather than stopping the tracker.
type MemoryTracker struct {
	opts   *MemoryOptions
	thread *periodic.Thread

	mu      sync.Mutex
	samples []memorySample
}

// NewMemoryTracker constructs a MemoryTracker. WithMemoryReader is
// optional: without a Reader, RunIteration records nothing.
func NewMemoryTracker(opt ...MemoryOption) *MemoryTracker {
	opts := defaultMemoryOptions()
	for _, o := range opt {
		o(opts)
	}
	mt := &MemoryTracker{opts: opts}
	mt.thread = &periodic.Thread{Interval: opts.Interval, Worker: mt, Name: "vernier-memory", Logger: opts.Logger}
	return mt
}

// Start launches the sampling goroutine.
func (mt *MemoryTracker) Start() { mt.thread.Start() }

// Stop halts the sampling goroutine.
func (mt *MemoryTracker) Stop() { mt.thread.Stop() }

// RunIteration implements periodic.Worker.
func (mt *MemoryTracker) RunIteration() {
	if mt.opts.Reader == nil {
		return
	}
	bytes, err := mt.opts.Reader.RSSBytes()
	if err != nil {
		mt.opts.Logger.Debug().Err(err).Msg("rss sample unavailable")
		return
	}

	mt.mu.Lock()
	mt.samples = append(mt.samples, memorySample{At: clock.Now(), Bytes: bytes})
	mt.mu.Unlock()
}

// Samples returns a copy of the RSS readings recorded so far.
func (mt *MemoryTracker) Samples() []memorySample {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	out := make([]memorySample, len(mt.samples))
	copy(out, mt.samples)
	return out
}

var _ host.MemoryReader = (*nopReader)(nil)

type nopReader struct{}

func (nopReader) RSSBytes() (uint64, error) { return 0, host.ErrRSSUnavailable }
