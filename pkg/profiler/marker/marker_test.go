package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/internal/clock"
)

func TestRecordInstantAppends(t *testing.T) {
	var tbl Table
	tbl.RecordInstant(ThreadRunning, clock.FromNanoseconds(1))
	tbl.RecordInstant(ThreadStalled, clock.FromNanoseconds(2))

	snap := tbl.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, ThreadRunning, snap[0].Type)
	assert.Equal(t, Instant, snap[0].Phase)
	assert.False(t, snap[0].HasEnd)
}

func TestRecordIntervalCarriesBothEndpoints(t *testing.T) {
	var tbl Table
	from := clock.FromNanoseconds(10)
	to := clock.FromNanoseconds(20)
	tbl.RecordInterval(GCPause, from, to)

	snap := tbl.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Interval, snap[0].Phase)
	assert.True(t, snap[0].HasEnd)
	assert.Equal(t, from, snap[0].Start)
	assert.Equal(t, to, snap[0].End)
}

func TestSnapshotIsACopy(t *testing.T) {
	var tbl Table
	tbl.RecordInstant(GVLThreadStarted, clock.FromNanoseconds(1))
	snap := tbl.Snapshot()

	tbl.RecordInstant(GVLThreadExited, clock.FromNanoseconds(2))
	assert.Len(t, snap, 1, "snapshot must not observe later appends")
}

func TestGCTableDerivesPauseFromEnterExit(t *testing.T) {
	var gc GCTable
	gc.RecordGCEnter(clock.FromNanoseconds(5))
	gc.RecordGCLeave(clock.FromNanoseconds(15), "newspace", "sweeping")

	snap := gc.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, GCPause, snap[0].Type)
	assert.Equal(t, clock.FromNanoseconds(5), snap[0].Start)
	assert.Equal(t, clock.FromNanoseconds(15), snap[0].End)
	assert.True(t, snap[0].Extra.HasExtra)
	assert.Equal(t, "newspace", snap[0].Extra.GCCause)
}
