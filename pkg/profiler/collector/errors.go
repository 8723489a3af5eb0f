package collector

import "github.com/pkg/errors"

var (
	// ErrInvalidInterval is returned by New when Interval <= 0.
	ErrInvalidInterval = errors.New("collector: interval must be positive")
	// ErrInvalidSampleRate is returned by NewAllocationCollector when
	// SampleRate < 1.
	ErrInvalidSampleRate = errors.New("collector: sample rate must be >= 1")
	// ErrAlreadyRunning is returned by Start on a collector already
	// started.
	ErrAlreadyRunning = errors.New("collector: already running")
	// ErrNotRunning is returned by Stop on a collector that was never
	// started.
	ErrNotRunning = errors.New("collector: not running")
)
