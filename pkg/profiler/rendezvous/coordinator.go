// Package rendezvous implements the sampler-thread/signal-handler
// handshake: the sampler asks the host runtime to interrupt a target
// thread; the target thread fills a shared sample buffer and posts
// completion; the sampler resumes.
package rendezvous

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/internal/semaphore"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// LiveSample is the shared buffer a rendezvous round fills. Capture is
// the signal-handler-safe callback that writes into it (normally
// RawSample.Sample bound to a *stack.RawSample); Done is posted exactly
// once per round.
type LiveSample struct {
	Capture func()
	Done    *semaphore.Semaphore
}

// NewLiveSample returns a LiveSample ready for one rendezvous round.
func NewLiveSample(capture func()) *LiveSample {
	return &LiveSample{Capture: capture, Done: semaphore.New(0)}
}

// Coordinator is a rendezvous point that serializes sampling rounds
// under its mutex and keeps a refcount of Install/Uninstall calls. It
// is not a process-wide singleton: every TimeCollector constructs its
// own with New, so the mutex serializes only that collector's rounds.
type Coordinator struct {
	mu    sync.Mutex
	count int

	rt host.Runtime
}

// New returns a Coordinator bound to a host.Runtime.
func New(rt host.Runtime) *Coordinator {
	return &Coordinator{rt: rt}
}

// Install increments the installation refcount.
func (c *Coordinator) Install() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

// Uninstall decrements the installation refcount.
func (c *Coordinator) Uninstall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		c.count--
	}
}

// RecordSample runs one rendezvous round against target: it asks the
// runtime to interrupt target, invoke live.Capture there, and signal
// readiness; then blocks until that happens or host.SampleTimeout
// elapses. It returns false (not an error) if the target thread no
// longer exists — that's a transient condition, not a failure.
func (c *Coordinator) RecordSample(live *LiveSample, target host.OSThreadHandle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.rt.RequestSample(target, live.Capture, live.Done.Post)
	if err != nil {
		if errors.Is(err, host.ErrThreadGone) {
			return false, nil
		}
		return false, errors.Wrap(err, "rendezvous: request sample")
	}

	if err := live.Done.Wait(host.SampleTimeout); err != nil {
		// Exceeding the bound is a fatal bug, not a condition to
		// recover from — it means a target thread is permanently
		// wedged inside the handshake.
		panic("vernier: sample rendezvous exceeded timeout, target thread did not respond")
	}

	return true, nil
}
