package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/internal/clock"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
)

func TestTableSetStateStartedIsIdempotent(t *testing.T) {
	tb := New()
	now := clock.Now()

	tr := tb.SetState(1, 100, Started, now, nil)
	assert.Equal(t, Initial, tr.From)
	assert.Equal(t, Running, tr.To)

	tr = tb.SetState(1, 100, Started, now, nil)
	assert.Equal(t, Running, tr.From)
	assert.Equal(t, Running, tr.To)

	th, ok := tb.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, Running, th.State())
}

func TestTableSetStateStartedDoesNotClobberLiveThread(t *testing.T) {
	tb := New()
	now := clock.Now()
	capture := func() stack.StackID { return stack.StackID(3) }

	tb.SetState(1, 100, Started, now, nil)
	tb.SetState(1, 100, Ready, now, capture)

	tr := tb.SetState(1, 100, Started, now, nil)
	assert.Equal(t, Ready, tr.From)
	assert.Equal(t, Ready, tr.To)
	assert.Equal(t, MarkerNone, tr.Marker)

	th, ok := tb.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, Ready, th.State(), "a second START must not force an already-live thread back to RUNNING")
}

func TestTableSetStateSuspendedCoalesces(t *testing.T) {
	tb := New()
	now := clock.Now()
	captured := stack.StackID(0)
	capture := func() stack.StackID { return captured }

	tb.SetState(1, 100, Started, now, nil)
	tr := tb.SetState(1, 100, Suspended, now, capture)
	assert.Equal(t, MarkerThreadSuspended, tr.Marker)

	tr = tb.SetState(1, 100, Suspended, now, capture)
	assert.Equal(t, MarkerNone, tr.Marker, "SUSPENDED -> SUSPENDED must coalesce silently")

	th, _ := tb.Lookup(1)
	assert.Equal(t, stack.StackID(0), th.StackOnSuspend())
}

func TestTableSetStateReadyThenRunningEmitsStalled(t *testing.T) {
	tb := New()
	now := clock.Now()
	capture := func() stack.StackID { return stack.StackID(5) }

	tb.SetState(1, 100, Started, now, nil)
	tr := tb.SetState(1, 100, Ready, now, capture)
	assert.Equal(t, MarkerThreadStalled, tr.Marker)

	tr = tb.SetState(1, 100, Running, now, nil)
	assert.Equal(t, MarkerThreadStalled, tr.Marker)
	assert.Equal(t, Running, tr.To)
}

func TestTableSetStateSuspendedThenRunningEmitsRunning(t *testing.T) {
	tb := New()
	now := clock.Now()
	capture := func() stack.StackID { return stack.StackID(7) }

	tb.SetState(1, 100, Started, now, nil)
	tb.SetState(1, 100, Suspended, now, capture)
	tr := tb.SetState(1, 100, Running, now, nil)
	assert.Equal(t, MarkerThreadRunning, tr.Marker)
}

func TestTableEnsureCreatesOnFirstUse(t *testing.T) {
	tb := New()
	now := clock.Now()
	th := tb.Ensure(9, host.OSThreadHandle(90), now)
	assert.Equal(t, Initial, th.State())
	assert.Equal(t, 1, tb.Len())

	again := tb.Ensure(9, host.OSThreadHandle(90), now)
	assert.Same(t, th, again)
	assert.Equal(t, 1, tb.Len())
}

func TestTableSnapshotIsACopy(t *testing.T) {
	tb := New()
	now := clock.Now()
	tb.Ensure(1, 10, now)
	tb.Ensure(2, 20, now)

	snap := tb.Snapshot()
	require.Len(t, snap, 2)

	tb.Ensure(3, 30, now)
	assert.Len(t, snap, 2, "snapshot must not observe later mutations")
}
