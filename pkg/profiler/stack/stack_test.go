package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
)

func sampleWith(t *testing.T, rt *testhost.FakeRuntime, os host.OSThreadHandle, handles []host.FrameHandle, lines []int) *RawSample {
	t.Helper()
	rt.SetCurrentThread(1, os)
	rt.SetStack(os, handles, lines)
	var s RawSample
	s.Sample(rt, 0)
	return &s
}

func TestRawSampleEmptyWhenNotManaged(t *testing.T) {
	rt := testhost.New()
	var s RawSample
	s.Sample(rt, 0)
	assert.True(t, s.Empty())
	assert.False(t, s.InGC())
}

func TestRawSampleGCSentinel(t *testing.T) {
	rt := testhost.New()
	rt.SetCurrentThread(1, 100)
	rt.SetInGC(100, true)
	var s RawSample
	s.Sample(rt, 0)
	assert.True(t, s.Empty())
	assert.True(t, s.InGC())
}

func TestRawSampleFrameAtOrdersOutermostFirst(t *testing.T) {
	rt := testhost.New()
	s := sampleWith(t, rt, 100, []host.FrameHandle{10, 20, 30}, []int{1, 2, 3})
	require.Equal(t, 3, s.Size())
	assert.Equal(t, Frame{Handle: 10, Line: 1}, s.FrameAt(0))
	assert.Equal(t, Frame{Handle: 20, Line: 2}, s.FrameAt(1))
	assert.Equal(t, Frame{Handle: 30, Line: 3}, s.FrameAt(2))
}

func TestStackIndexInternsSharedPrefix(t *testing.T) {
	table := New()
	rt := testhost.New()

	a := sampleWith(t, rt, 1, []host.FrameHandle{1, 2, 3}, []int{1, 1, 1})
	b := sampleWith(t, rt, 1, []host.FrameHandle{1, 2, 4}, []int{1, 1, 1})

	idA, err := table.StackIndex(a)
	require.NoError(t, err)
	idB, err := table.StackIndex(b)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
	assert.Equal(t, table.Parent(idA), table.Parent(idB), "siblings share a parent node")
}

func TestStackIndexEmptySampleErrors(t *testing.T) {
	table := New()
	var s RawSample
	_, err := table.StackIndex(&s)
	assert.ErrorIs(t, err, ErrEmptyStack)
}

func TestFinalizeResolvesFuncInfo(t *testing.T) {
	table := New()
	rt := testhost.New()
	rt.SetFuncInfo(42, host.FuncInfo{Label: "Foo#bar", File: "foo.rb", FirstLineno: 7})

	s := sampleWith(t, rt, 1, []host.FrameHandle{42}, []int{7})
	id, err := table.StackIndex(s)
	require.NoError(t, err)

	table.Finalize(rt)

	funcIdx := table.FrameFunc(table.FrameOf(id))
	info := table.FuncInfo(funcIdx)
	assert.Equal(t, "Foo#bar", info.Label)
	assert.Equal(t, "foo.rb", info.File)
}

func TestFinalizeUnresolvedGetsPlaceholder(t *testing.T) {
	table := New()
	rt := testhost.New()

	s := sampleWith(t, rt, 1, []host.FrameHandle{99}, []int{1})
	id, err := table.StackIndex(s)
	require.NoError(t, err)

	table.Finalize(rt)

	info := table.FuncInfo(table.FrameFunc(table.FrameOf(id)))
	assert.Equal(t, "(nil)", info.Label)
}

func TestConvertReconstructsParentChain(t *testing.T) {
	src := New()
	dst := New()
	rt := testhost.New()

	s := sampleWith(t, rt, 1, []host.FrameHandle{1, 2, 3}, []int{1, 1, 1})
	srcID, err := src.StackIndex(s)
	require.NoError(t, err)

	dstID := dst.Convert(src, srcID)
	assert.Equal(t, int32(1), dst.FrameLine(dst.FrameOf(dstID)))

	dstParent := dst.Parent(dstID)
	assert.NotEqual(t, Root, dstParent)
}

func TestTranslatorReusesSharedPrefix(t *testing.T) {
	table := New()
	rt := testhost.New()
	tr := NewTranslator()

	a := sampleWith(t, rt, 1, []host.FrameHandle{1, 2, 3}, []int{1, 1, 1})
	idA := tr.Translate(table, a)

	b := sampleWith(t, rt, 1, []host.FrameHandle{1, 2, 4}, []int{1, 1, 1})
	idB := tr.Translate(table, b)

	assert.NotEqual(t, idA, idB)
	assert.Equal(t, idB, tr.Last())
	assert.Equal(t, table.Parent(idA), table.Parent(idB))
}
