//go:build !linux

package proc

import "github.com/jhawthorn/vernier/pkg/profiler/host"

// StatmReader is unimplemented outside Linux.
type StatmReader struct{}

// RSSBytes always fails on non-Linux platforms.
func (StatmReader) RSSBytes() (uint64, error) {
	return 0, host.ErrRSSUnavailable
}
