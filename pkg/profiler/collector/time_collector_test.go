package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
	"github.com/jhawthorn/vernier/pkg/profiler/thread"
)

func TestNewTimeCollectorRejectsNonPositiveInterval(t *testing.T) {
	rt := testhost.New()
	_, err := NewTimeCollector(rt, WithInterval(0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestTimeCollectorStartStopLifecycle(t *testing.T) {
	rt := testhost.New()
	tc, err := NewTimeCollector(rt, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, tc.Start())
	assert.ErrorIs(t, tc.Start(), ErrAlreadyRunning)

	require.NoError(t, tc.Stop())
	assert.ErrorIs(t, tc.Stop(), ErrNotRunning)
}

func TestTimeCollectorSamplesRunningThread(t *testing.T) {
	rt := testhost.New()
	rt.SetStack(42, []host.FrameHandle{1, 2}, []int{1, 1})
	rt.SetCurrentThread(7, 42)

	tc, err := NewTimeCollector(rt, WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())
	defer tc.Stop()

	tc.onSchedulingEvent(host.ThreadSchedStarted, 7, 42)
	tc.RunIteration()

	samples := tc.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, host.ThreadHandle(7), samples[0].Thread)
}

func TestTimeCollectorSuspendedThreadSamplesIdle(t *testing.T) {
	rt := testhost.New()
	rt.SetStack(42, []host.FrameHandle{1, 2}, []int{1, 1})
	rt.SetCurrentThread(7, 42)

	tc, err := NewTimeCollector(rt, WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())
	defer tc.Stop()

	tc.onSchedulingEvent(host.ThreadSchedStarted, 7, 42)
	tc.onSchedulingEvent(host.ThreadSchedSuspended, 7, 42)

	tc.RunIteration()
	tc.RunIteration()
	tc.RunIteration()

	samples := tc.Samples()
	require.Len(t, samples, 1, "consecutive IDLE ticks on the same stack must collapse")
	assert.Equal(t, CategoryIdle, samples[0].Category)
	assert.Equal(t, int64(3), samples[0].Weight)
}

func TestTimeCollectorReadyEmitsStalledMarker(t *testing.T) {
	rt := testhost.New()
	tc, err := NewTimeCollector(rt, WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())
	defer tc.Stop()

	tc.onSchedulingEvent(host.ThreadSchedStarted, 7, 42)
	tc.onSchedulingEvent(host.ThreadSchedReady, 7, 42)

	th, ok := tc.Threads().Lookup(7)
	require.True(t, ok)
	assert.Equal(t, thread.Ready, th.State())

	markers := tc.Markers()[7].Snapshot()
	require.Len(t, markers, 1)
}

func TestTimeCollectorGCEnterExitRecordsPause(t *testing.T) {
	rt := testhost.New()
	tc, err := NewTimeCollector(rt, WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())
	defer tc.Stop()

	tc.onEvent(host.EventGCEnter, 7, 0, "", "")
	tc.onEvent(host.EventGCExit, 7, 0, "newobj", "sweeping")

	markers := tc.Markers()[7].Snapshot()
	require.Len(t, markers, 1)
	assert.True(t, markers[0].HasEnd)
	assert.Equal(t, "newobj", markers[0].Extra.GCCause)
	assert.Equal(t, "sweeping", markers[0].Extra.GCState)
}
