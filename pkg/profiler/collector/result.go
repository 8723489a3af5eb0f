package collector

import (
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/marker"
	"github.com/jhawthorn/vernier/pkg/profiler/stack"
)

// Meta is Result's top-level header. RunID distinguishes concurrent
// profiling sessions running in one process.
type Meta struct {
	RunID              uuid.UUID
	StartedAtNs        int64
	IntervalUs         *int64
	AllocationInterval *int
}

// StackTable is the columnar form of stack.Table: one entry per
// stack.StackID, parent nil at the root.
type StackTable struct {
	Parent []*int32
	Frame  []int32
}

// FrameTable is the columnar form of the frame index map.
type FrameTable struct {
	Func []int32
	Line []int32
}

// FuncTable is the columnar form of the func index map.
type FuncTable struct {
	Name      []string
	Filename  []string
	FirstLine []int
}

// SampleSeries backs Threads[id].Samples.
type SampleSeries struct {
	Samples          []int32
	Weights          []int64
	Timestamps       []int64
	SampleCategories []int
}

// AllocSeries backs Threads[id].Allocations.
type AllocSeries struct {
	Samples    []int32
	Weights    []int64
	Timestamps []int64
}

// MarkerEntry is one [type, phase, start, end, stack, extra] tuple.
type MarkerEntry struct {
	Type  marker.Type
	Phase marker.Phase
	Start int64
	End   *int64
	Stack *int32
	Extra *marker.Extra
}

// ThreadResult is one entry of Result.Threads.
type ThreadResult struct {
	Tid       host.ThreadHandle
	Name      string
	StartedAt int64
	StoppedAt *int64
	IsMain    bool
	IsStart   bool

	Samples     SampleSeries
	Allocations AllocSeries
	Markers     []MarkerEntry
}

// Result is the collector-to-consumer output shape.
type Result struct {
	Meta       Meta
	StackTable StackTable
	FrameTable FrameTable
	FuncTable  FuncTable
	Threads    map[host.ThreadHandle]ThreadResult
	GCMarkers  []MarkerEntry
}

func buildTables(st *stack.Table) (StackTable, FrameTable, FuncTable) {
	stackCount := st.StackCount()
	stackIDs := make([]stack.StackID, stackCount)
	for i := range stackIDs {
		stackIDs[i] = stack.StackID(i)
	}

	stk := StackTable{
		Parent: lo.Map(stackIDs, func(id stack.StackID, _ int) *int32 {
			p := st.Parent(id)
			if p == stack.Root {
				return nil
			}
			v := int32(p)
			return &v
		}),
		Frame: lo.Map(stackIDs, func(id stack.StackID, _ int) int32 {
			return int32(st.FrameOf(id))
		}),
	}

	frameCount := st.FrameCount()
	frameIdxs := make([]stack.FrameIdx, frameCount)
	for i := range frameIdxs {
		frameIdxs[i] = stack.FrameIdx(i)
	}
	frm := FrameTable{
		Func: lo.Map(frameIdxs, func(idx stack.FrameIdx, _ int) int32 {
			return int32(st.FrameFunc(idx))
		}),
		Line: lo.Map(frameIdxs, func(idx stack.FrameIdx, _ int) int32 {
			return st.FrameLine(idx)
		}),
	}

	funcCount := st.FuncCount()
	funcIdxs := make([]stack.FuncIdx, funcCount)
	for i := range funcIdxs {
		funcIdxs[i] = stack.FuncIdx(i)
	}
	fn := FuncTable{
		Name: lo.Map(funcIdxs, func(idx stack.FuncIdx, _ int) string {
			return st.FuncInfo(idx).Label
		}),
		Filename: lo.Map(funcIdxs, func(idx stack.FuncIdx, _ int) string {
			return st.FuncInfo(idx).File
		}),
		FirstLine: lo.Map(funcIdxs, func(idx stack.FuncIdx, _ int) int {
			return st.FuncInfo(idx).FirstLineno
		}),
	}

	return stk, frm, fn
}

func stackIDPtr(id stack.StackID) *int32 {
	if id == stack.Root {
		return nil
	}
	v := int32(id)
	return &v
}

func toMarkerEntry(m marker.Marker) MarkerEntry {
	e := MarkerEntry{Type: m.Type, Phase: m.Phase, Start: m.Start.Nanoseconds()}
	if m.HasEnd {
		v := m.End.Nanoseconds()
		e.End = &v
	}
	if m.HasStack {
		e.Stack = stackIDPtr(stack.StackID(m.StackIdx))
	}
	if m.Extra.HasExtra {
		extra := m.Extra
		e.Extra = &extra
	}
	return e
}

func toMarkerEntries(ms []marker.Marker) []MarkerEntry {
	return lo.Map(ms, func(m marker.Marker, _ int) MarkerEntry {
		return toMarkerEntry(m)
	})
}

// BuildWallResult assembles a Result from a TimeCollector and its
// optional AllocationCollector sidecar ("wall" mode: wall-clock
// samples plus interleaved allocation samples). Allocation stacks are
// converted into the TimeCollector's StackTable so every stack id in
// the Result indexes the same tables.
func BuildWallResult(tc *TimeCollector, ac *AllocationCollector, startedAt int64, intervalUs int64, allocInterval int) *Result {
	threads := make(map[host.ThreadHandle]ThreadResult)
	for _, th := range tc.Threads().Snapshot() {
		threads[th.Handle] = ThreadResult{
			Tid:       th.Handle,
			StartedAt: startedAt,
		}
	}

	for _, s := range tc.Samples() {
		tr := threads[s.Thread]
		tr.Samples.Samples = append(tr.Samples.Samples, int32(s.Stack))
		tr.Samples.Weights = append(tr.Samples.Weights, s.Weight)
		tr.Samples.Timestamps = append(tr.Samples.Timestamps, s.At.Nanoseconds())
		tr.Samples.SampleCategories = append(tr.Samples.SampleCategories, int(s.Category))
		threads[s.Thread] = tr
	}

	if ac != nil {
		for _, s := range ac.Samples() {
			// allocation samples share no single thread handle in this
			// engine's NEWOBJ path; attribute to thread 0 ("process")
			// when no per-thread identity is available.
			tr := threads[0]
			id := tc.Stacks().Convert(ac.Stacks(), s.Stack)
			tr.Allocations.Samples = append(tr.Allocations.Samples, int32(id))
			tr.Allocations.Weights = append(tr.Allocations.Weights, int64(s.Size))
			tr.Allocations.Timestamps = append(tr.Allocations.Timestamps, s.At.Nanoseconds())
			threads[0] = tr
		}
		tc.Stacks().Finalize(tc.rt)
	}

	stk, frm, fn := buildTables(tc.Stacks())

	var gcMarkers []MarkerEntry
	for handle, mt := range tc.Markers() {
		tr := threads[handle]
		var threadMarkers []marker.Marker
		for _, m := range mt.Snapshot() {
			if isGCMarker(m.Type) {
				gcMarkers = append(gcMarkers, toMarkerEntry(m))
				continue
			}
			threadMarkers = append(threadMarkers, m)
		}
		tr.Markers = toMarkerEntries(threadMarkers)
		threads[handle] = tr
	}

	var intervalPtr *int64
	if intervalUs > 0 {
		intervalPtr = &intervalUs
	}
	var allocPtr *int
	if allocInterval > 0 {
		allocPtr = &allocInterval
	}

	return &Result{
		Meta: Meta{
			RunID:              uuid.New(),
			StartedAtNs:        startedAt,
			IntervalUs:         intervalPtr,
			AllocationInterval: allocPtr,
		},
		StackTable: stk,
		FrameTable: frm,
		FuncTable:  fn,
		Threads:    threads,
		GCMarkers:  gcMarkers,
	}
}

// BuildRetainedResult assembles a Result from a RetainedCollector
// ("retained" mode): one synthetic thread entry ("retained") carries
// every still-live allocation as a sample with its object size as
// weight, skipping tombstones by construction (Live() already omits
// them).
func BuildRetainedResult(rc *RetainedCollector, startedAt int64) *Result {
	stk, frm, fn := buildTables(rc.Stacks())

	const retainedThread = host.ThreadHandle(0)
	tr := ThreadResult{Tid: retainedThread, Name: "retained", StartedAt: startedAt}

	for _, entry := range rc.Live() {
		tr.Samples.Samples = append(tr.Samples.Samples, int32(entry.Stack))
		tr.Samples.Weights = append(tr.Samples.Weights, int64(entry.Size))
		tr.Samples.Timestamps = append(tr.Samples.Timestamps, entry.At.Nanoseconds())
	}

	return &Result{
		Meta: Meta{
			RunID:       uuid.New(),
			StartedAtNs: startedAt,
		},
		StackTable: stk,
		FrameTable: frm,
		FuncTable:  fn,
		Threads:    map[host.ThreadHandle]ThreadResult{retainedThread: tr},
	}
}

func isGCMarker(t marker.Type) bool {
	switch t {
	case marker.GCStart, marker.GCEndMark, marker.GCEndSweep, marker.GCEnter, marker.GCExit, marker.GCPause:
		return true
	default:
		return false
	}
}
