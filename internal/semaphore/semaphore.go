// Package semaphore provides the counting semaphore used for the
// sampler/signal-handler rendezvous (see pkg/profiler/rendezvous).
//
// In the original C++ extension this had to be built on sem_post, the
// only primitive on the target platforms guaranteed safe to call from an
// async-signal context: a mutex is not reentrant-safe there, but
// sem_post is. Go's signal delivery model is different — there is no
// user code running in a true signal-handler context, so nothing here
// is actually constrained the same way. The shape is kept anyway (a
// non-blocking Post, a bounded Wait) because it is what the rendezvous
// protocol in spec is built around, and because it keeps this package a
// faithful stand-in for whatever primitive a real host-runtime
// integration ends up needing on its signal-handler side.
package semaphore

import (
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by Wait when no Post arrives within the bound.
var ErrTimeout = errors.New("semaphore: wait exceeded timeout")

// Semaphore is a counting semaphore. The zero value is not usable; use
// New.
type Semaphore struct {
	ch chan struct{}
}

// New creates a semaphore with the given initial count.
func New(initial int) *Semaphore {
	// Buffered far beyond any expected burst: Post must never block, as
	// it stands in for an async-signal-safe primitive.
	s := &Semaphore{ch: make(chan struct{}, 1<<16)}
	for i := 0; i < initial; i++ {
		s.ch <- struct{}{}
	}
	return s
}

// Post increments the count. Never blocks.
func (s *Semaphore) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
		// Buffer exhausted (effectively unreachable in practice) — drop
		// rather than block, preserving the non-blocking contract.
	}
}

// Wait blocks until a Post is available or timeout elapses, returning
// ErrTimeout in the latter case. Callers treat ErrTimeout as a fatal bug
// per the rendezvous protocol's 5-second bound.
func (s *Semaphore) Wait(timeout time.Duration) error {
	select {
	case <-s.ch:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}
