package pprofexport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/pkg/profiler/collector"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
)

func TestToPprofNilResult(t *testing.T) {
	_, err := ToPprof(nil)
	assert.Error(t, err)
}

func TestToPprofBuildsSamplesWithLocations(t *testing.T) {
	rt := testhost.New()
	rt.SetStack(42, []host.FrameHandle{1, 2}, []int{1, 1})
	rt.SetCurrentThread(7, 42)
	rt.SetFuncInfo(1, host.FuncInfo{Label: "outer", File: "a.rb", FirstLineno: 1})
	rt.SetFuncInfo(2, host.FuncInfo{Label: "inner", File: "a.rb", FirstLineno: 2})

	tc, err := collector.NewTimeCollector(rt, collector.WithInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, tc.Start())
	rt.FireScheduling(host.ThreadSchedStarted, 7, 42)
	tc.RunIteration()
	require.NoError(t, tc.Stop())

	res := collector.BuildWallResult(tc, nil, 0, 500, 0)
	prof, err := ToPprof(res)
	require.NoError(t, err)

	assert.NotEmpty(t, prof.Function)
	assert.NotEmpty(t, prof.Location)
	assert.NotEmpty(t, prof.Sample)
	for _, s := range prof.Sample {
		assert.NotEmpty(t, s.Location)
	}
}
