package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// printRight right-aligns text to the terminal width, falling back to
// 80 columns when the width can't be determined (e.g. output is piped).
func printRight(text string) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 80
	}

	padding := width - len(text)
	if padding < 0 {
		padding = 0
	}
	fmt.Printf("\r%s%s", strings.Repeat(" ", padding), text)
}

func progressBar(percent, width int) string {
	filled := (percent * width) / 100
	return strings.Repeat("█", filled) + strings.Repeat(" ", width-filled)
}

// samplingStatusLine renders the demo command's live progress: elapsed
// fraction of the requested run duration, running sample and GC pause
// counts, and the most recent RSS reading in human-readable form.
func samplingStatusLine(percentDone int, samples, gcPauses int, rssBytes uint64) string {
	return fmt.Sprintf("[%s] %3d%%  samples=%-6d gc_pauses=%-4d rss=%s",
		progressBar(percentDone, 30), percentDone, samples, gcPauses, humanize.Bytes(rssBytes))
}
