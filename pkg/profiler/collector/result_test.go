package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
)

func TestBuildWallResultShapesOutput(t *testing.T) {
	rt := testhost.New()
	rt.SetStack(42, []host.FrameHandle{1, 2}, []int{1, 1})
	rt.SetCurrentThread(7, 42)
	rt.SetFuncInfo(1, host.FuncInfo{Label: "outer"})
	rt.SetFuncInfo(2, host.FuncInfo{Label: "inner"})

	tc, err := NewTimeCollector(rt, WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())

	tc.onSchedulingEvent(host.ThreadSchedStarted, 7, 42)
	tc.RunIteration()
	require.NoError(t, tc.Stop())

	res := BuildWallResult(tc, nil, 1000, 500, 0)

	assert.NotEmpty(t, res.StackTable.Parent)
	assert.NotEmpty(t, res.FuncTable.Name)
	assert.Contains(t, res.FuncTable.Name, "outer")

	tr, ok := res.Threads[7]
	require.True(t, ok)
	require.Len(t, tr.Samples.Samples, 1)
	assert.Equal(t, int64(1), tr.Samples.Weights[0])

	require.NotNil(t, res.Meta.IntervalUs)
	assert.Equal(t, int64(500), *res.Meta.IntervalUs)
	assert.Nil(t, res.Meta.AllocationInterval)
}

func TestBuildRetainedResultSkipsTombstones(t *testing.T) {
	rt := testhost.New()
	rt.SetCurrentThread(1, 10)
	rt.SetStack(10, []host.FrameHandle{1}, []int{1})
	rt.SetObjectSize(1, 16)
	rt.SetObjectSize(2, 32)

	rc := NewRetainedCollector(rt, WithGCRunsOnStop(0))
	require.NoError(t, rc.Start())
	rc.onAlloc(host.AllocNewObj, 1)
	rc.onAlloc(host.AllocNewObj, 2)
	rc.onAlloc(host.AllocFreeObj, 1)
	require.NoError(t, rc.Stop())

	res := BuildRetainedResult(rc, 0)
	tr, ok := res.Threads[0]
	require.True(t, ok)
	require.Len(t, tr.Samples.Samples, 1)
	assert.Equal(t, int64(32), tr.Samples.Weights[0])
}
