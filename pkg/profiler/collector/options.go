package collector

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// TimeOptions configures a TimeCollector.
type TimeOptions struct {
	Interval time.Duration
	Logger   zerolog.Logger
}

// TimeOption mutates a TimeOptions during construction.
type TimeOption func(*TimeOptions)

// WithInterval sets the sampler tick period. Must be positive.
func WithInterval(d time.Duration) TimeOption {
	return func(o *TimeOptions) {
		o.Interval = d
	}
}

// WithLogger attaches a zerolog.Logger.
func WithLogger(l zerolog.Logger) TimeOption {
	return func(o *TimeOptions) {
		o.Logger = l
	}
}

func defaultTimeOptions() *TimeOptions {
	return &TimeOptions{
		Interval: time.Millisecond,
		Logger:   zerolog.Nop(),
	}
}

// RetainedOptions configures a RetainedCollector.
type RetainedOptions struct {
	GCRunsOnStop int
	Logger       zerolog.Logger
}

type RetainedOption func(*RetainedOptions)

// WithGCRunsOnStop sets how many full collections Stop triggers before
// reading final liveness (typically twice, to flush finalizer-pinned
// garbage).
func WithGCRunsOnStop(n int) RetainedOption {
	return func(o *RetainedOptions) {
		o.GCRunsOnStop = n
	}
}

func WithRetainedLogger(l zerolog.Logger) RetainedOption {
	return func(o *RetainedOptions) {
		o.Logger = l
	}
}

func defaultRetainedOptions() *RetainedOptions {
	return &RetainedOptions{
		GCRunsOnStop: 2,
		Logger:       zerolog.Nop(),
	}
}

// AllocationOptions configures an AllocationCollector.
type AllocationOptions struct {
	SampleRate int
	Logger     zerolog.Logger
}

type AllocationOption func(*AllocationOptions)

// WithSampleRate sets every Nth NEWOBJ that gets recorded. Must be >= 1.
func WithSampleRate(n int) AllocationOption {
	return func(o *AllocationOptions) {
		o.SampleRate = n
	}
}

func WithAllocationLogger(l zerolog.Logger) AllocationOption {
	return func(o *AllocationOptions) {
		o.Logger = l
	}
}

func defaultAllocationOptions() *AllocationOptions {
	return &AllocationOptions{
		SampleRate: 1,
		Logger:     zerolog.Nop(),
	}
}

// MemoryOptions configures a MemoryTracker.
type MemoryOptions struct {
	Interval time.Duration
	Reader   host.MemoryReader
	Logger   zerolog.Logger
}

type MemoryOption func(*MemoryOptions)

func WithMemoryInterval(d time.Duration) MemoryOption {
	return func(o *MemoryOptions) {
		o.Interval = d
	}
}

func WithMemoryReader(r host.MemoryReader) MemoryOption {
	return func(o *MemoryOptions) {
		o.Reader = r
	}
}

func WithMemoryLogger(l zerolog.Logger) MemoryOption {
	return func(o *MemoryOptions) {
		o.Logger = l
	}
}

func defaultMemoryOptions() *MemoryOptions {
	return &MemoryOptions{
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	}
}
