//go:build linux

// Package proc implements host.MemoryReader for platforms that expose
// RSS through a readable pseudo-filesystem. Linux is the only platform
// wired up; on other platforms StatmReader returns
// host.ErrRSSUnavailable.
package proc

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var pageSize = int64(os.Getpagesize())

// StatmReader reads resident set size from /proc/self/statm.
type StatmReader struct{}

// RSSBytes parses the second field of /proc/self/statm (resident
// pages) and scales it by the OS page size.
func (StatmReader) RSSBytes() (uint64, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, errors.Wrap(err, "proc: read /proc/self/statm")
	}

	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, errors.New("proc: malformed /proc/self/statm")
	}

	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "proc: parse resident page count")
	}

	return uint64(pages * pageSize), nil
}
