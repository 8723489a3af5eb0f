// Package pprofexport converts a collector.Result into a
// github.com/google/pprof/profile.Profile, letting the rest of the
// pprof toolchain (including `go tool pprof`) consume a profiling
// session directly. It is not used by, and does not gate, any
// collector operation.
package pprofexport

import (
	"time"

	"github.com/google/pprof/profile"
	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/pkg/profiler/collector"
)

// ToPprof walks r's columnar stack/frame/func tables and every
// thread's sample series into a *profile.Profile with one "samples"
// value (count) and one "wall" value (nanoseconds).
func ToPprof(r *collector.Result) (*profile.Profile, error) {
	if r == nil {
		return nil, errors.New("pprofexport: nil result")
	}

	period := int64(time.Microsecond)
	if r.Meta.IntervalUs != nil {
		period = *r.Meta.IntervalUs * int64(time.Microsecond)
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "wall", Unit: "nanoseconds"},
		},
		TimeNanos:  r.Meta.StartedAtNs,
		PeriodType: &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:     period,
	}

	funcs := make([]*profile.Function, len(r.FuncTable.Name))
	for i, name := range r.FuncTable.Name {
		fn := &profile.Function{
			ID:         uint64(i) + 1,
			Name:       name,
			SystemName: name,
			Filename:   r.FuncTable.Filename[i],
		}
		if i < len(r.FuncTable.FirstLine) {
			fn.StartLine = int64(r.FuncTable.FirstLine[i])
		}
		funcs[i] = fn
		p.Function = append(p.Function, fn)
	}

	locations := make([]*profile.Location, len(r.FrameTable.Func))
	for i, funcIdx := range r.FrameTable.Func {
		loc := &profile.Location{ID: uint64(i) + 1}
		if int(funcIdx) < len(funcs) {
			line := profile.Line{Function: funcs[funcIdx]}
			if i < len(r.FrameTable.Line) {
				line.Line = int64(r.FrameTable.Line[i])
			}
			loc.Line = []profile.Line{line}
		}
		locations[i] = loc
		p.Location = append(p.Location, loc)
	}

	// One pprof Location chain per StackId, built outermost-last to
	// match pprof's innermost-first Location ordering.
	stackLocations := make([][]*profile.Location, len(r.StackTable.Frame))
	for id := range r.StackTable.Frame {
		stackLocations[id] = buildChain(r, locations, id)
	}

	for _, tr := range r.Threads {
		for i, stackID := range tr.Samples.Samples {
			if int(stackID) >= len(stackLocations) {
				continue
			}
			weight := int64(1)
			if i < len(tr.Samples.Weights) {
				weight = tr.Samples.Weights[i]
			}
			p.Sample = append(p.Sample, &profile.Sample{
				Location: stackLocations[stackID],
				Value:    []int64{weight, weight * period},
			})
		}
	}

	return p, nil
}

func buildChain(r *collector.Result, locations []*profile.Location, stackID int) []*profile.Location {
	var chain []*profile.Location
	for id := stackID; id >= 0 && id < len(r.StackTable.Frame); {
		frameIdx := r.StackTable.Frame[id]
		if int(frameIdx) < len(locations) {
			chain = append(chain, locations[frameIdx])
		}
		parent := r.StackTable.Parent[id]
		if parent == nil {
			break
		}
		id = int(*parent)
	}
	return chain
}
