package stack

import "github.com/jhawthorn/vernier/pkg/profiler/host"

// MaxLen bounds how many frames a single RawSample can hold.
const MaxLen = 2048

// RawSample is a fixed-capacity snapshot of a call stack captured in an
// async-signal-safe window. Its backing arrays are part of the struct
// so a RawSample can be stack-allocated and reused across calls on the
// sampler/signal path without ever allocating.
type RawSample struct {
	handles [MaxLen]host.FrameHandle
	lines   [MaxLen]int
	len     int
	offset  int
	gc      bool
}

// Sample captures the calling thread's current stack into s, discarding
// any previous contents. offset hides that many innermost frames (the
// profiler's own call chain) from the result. This method must not
// allocate, take locks, or otherwise assume the calling thread is in a
// consistent state with respect to the host runtime's internals — it is
// invoked from whatever stands in for a signal handler.
func (s *RawSample) Sample(h host.Runtime, offset int) {
	s.clear()

	if !h.IsManagedThread() {
		return
	}

	if h.InGC() {
		s.gc = true
		return
	}

	s.len = h.CurrentStack(s.handles[:], s.lines[:])
	if offset > s.len {
		offset = s.len
	}
	s.offset = offset
}

func (s *RawSample) clear() {
	s.len = 0
	s.offset = 0
	s.gc = false
}

// Empty reports whether the sample carries no usable frames — either
// because nothing was captured, or because offset hides everything that
// was. Spec.md treats an empty sample as a legal, droppable result.
func (s *RawSample) Empty() bool {
	return s.len <= s.offset
}

// InGC reports whether this sample is the "currently in GC" sentinel.
func (s *RawSample) InGC() bool {
	return s.gc
}

// Size returns the number of usable frames.
func (s *RawSample) Size() int {
	return s.len - s.offset
}

// FrameAt returns the i'th frame counting from the outermost visible
// frame (i == 0). Runtime.CurrentStack fills the arrays outermost frame
// first, so the innermost frames hidden by offset sit at their end.
func (s *RawSample) FrameAt(i int) Frame {
	if i < 0 || i >= s.Size() {
		panic("vernier: stack sample index out of range")
	}
	return Frame{Handle: s.handles[i], Line: int32(s.lines[i])}
}
