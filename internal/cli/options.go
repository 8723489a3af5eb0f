// Package cli is the thin example command line wired up in
// cmd/vernier. It is not the profiler's product surface — a real
// consumer (CLI/IDE/visualizer) would embed the engine directly — but
// demonstrates driving the engine end to end against the reference
// host.Runtime.
package cli

import (
	"context"

	"github.com/rs/zerolog"
)

// CommonOptions carries values every subcommand needs: a logger and a
// cancellation context threaded down to leaf commands.
type CommonOptions struct {
	Logger  zerolog.Logger
	Context context.Context
	Debug   bool
}

// CommonOption mutates a CommonOptions during construction.
type CommonOption func(*CommonOptions)

func WithLogger(l zerolog.Logger) CommonOption {
	return func(o *CommonOptions) {
		o.Logger = l
	}
}

func WithContext(ctx context.Context) CommonOption {
	return func(o *CommonOptions) {
		o.Context = ctx
	}
}

// NewCommonOptions builds a CommonOptions, defaulting Context to
// context.Background() if WithContext was never applied.
func NewCommonOptions(opt ...CommonOption) *CommonOptions {
	o := &CommonOptions{Context: context.Background()}
	for _, f := range opt {
		f(o)
	}
	return o
}
