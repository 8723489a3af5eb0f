package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
)

func TestRetainedCollectorTombstonesFreedObjects(t *testing.T) {
	rt := testhost.New()
	rt.SetCurrentThread(1, 10)
	rt.SetStack(10, []host.FrameHandle{1}, []int{1})
	rt.SetObjectSize(100, 64)
	rt.SetObjectSize(101, 32)

	rc := NewRetainedCollector(rt, WithGCRunsOnStop(1))
	require.NoError(t, rc.Start())

	rc.onAlloc(host.AllocNewObj, 100)
	rc.onAlloc(host.AllocNewObj, 101)
	rc.onAlloc(host.AllocFreeObj, 100)

	live := rc.Live()
	require.Len(t, live, 1)
	_, stillThere := live[101]
	assert.True(t, stillThere)

	require.NoError(t, rc.Stop())
	assert.Equal(t, 1, rt.GCCount())
}

func TestRetainedCollectorDoubleStartStop(t *testing.T) {
	rt := testhost.New()
	rc := NewRetainedCollector(rt)
	require.NoError(t, rc.Start())
	assert.ErrorIs(t, rc.Start(), ErrAlreadyRunning)
	require.NoError(t, rc.Stop())
	assert.ErrorIs(t, rc.Stop(), ErrNotRunning)
}
