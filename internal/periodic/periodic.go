// Package periodic implements the drift-resistant periodic worker used
// by the sampler thread and MemoryTracker.
package periodic

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhawthorn/vernier/internal/clock"
)

// Worker is driven once per scheduled tick by a Thread.
type Worker interface {
	RunIteration()
}

// Thread runs a Worker on a dedicated goroutine at a fixed wall-clock
// cadence. Scheduling is absolute: after each iteration the next
// schedule advances by Interval; if the clock has already drifted more
// than one interval past that schedule, the schedule resets to now +
// interval rather than attempting to catch up (drop-behind policy).
type Thread struct {
	Interval time.Duration
	Worker   Worker
	Name     string
	Logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Start launches the worker goroutine. A second call while already
// running is a no-op.
func (t *Thread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.done = make(chan struct{})
	t.wg.Add(1)
	go t.run(t.done)
}

// Stop signals shutdown and joins the worker goroutine. It always lets
// the current iteration finish.
func (t *Thread) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Thread) run(done <-chan struct{}) {
	defer t.wg.Done()

	raisePriority()
	if t.Name != "" {
		t.Logger.Debug().Str("thread", t.Name).Msg("periodic thread started")
	}

	nextSchedule := clock.Now()
	for {
		t.Worker.RunIteration()

		completed := clock.Now()
		nextSchedule = nextSchedule.Add(clock.FromDuration(t.Interval))
		if nextSchedule.Add(clock.FromDuration(t.Interval)).Before(completed) {
			nextSchedule = completed.Add(clock.FromDuration(t.Interval))
		}

		sleep := nextSchedule.Sub(completed).Duration()
		timer := time.NewTimer(sleep)
		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// raisePriority is a portable no-op hook for raising the sampler
// thread's scheduling priority where the OS permits. A real host
// integration would provide a build-tagged variant (e.g.
// unix.Setpriority on Linux).
func raisePriority() {}
