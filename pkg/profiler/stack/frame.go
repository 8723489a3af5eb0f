package stack

import (
	"github.com/cespare/xxhash/v2"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// Frame is a single call-stack activation: an opaque runtime frame
// handle plus the instruction line within it. Equality is pairwise.
type Frame struct {
	Handle host.FrameHandle
	Line   int32
}

// hashKey folds both fields of Frame into a single uint64, used as the
// StackNode child-map key (grounded on pyroscope's use of xxhash across
// its trie/storage layers for fast trace-key hashing). Each hash
// bucket holds a list of edges and lookups compare the full Frame of
// every edge in it, so a hash collision never produces a wrong answer —
// this only changes which bucket a frame lands in.
func (f Frame) hashKey() uint64 {
	var buf [12]byte
	buf[0] = byte(f.Handle)
	buf[1] = byte(f.Handle >> 8)
	buf[2] = byte(f.Handle >> 16)
	buf[3] = byte(f.Handle >> 24)
	buf[4] = byte(f.Handle >> 32)
	buf[5] = byte(f.Handle >> 40)
	buf[6] = byte(f.Handle >> 48)
	buf[7] = byte(f.Handle >> 56)
	buf[8] = byte(f.Line)
	buf[9] = byte(f.Line >> 8)
	buf[10] = byte(f.Line >> 16)
	buf[11] = byte(f.Line >> 24)
	return xxhash.Sum64(buf[:])
}
