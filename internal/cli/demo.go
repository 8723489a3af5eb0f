package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jhawthorn/vernier/internal/proc"
	"github.com/jhawthorn/vernier/pkg/profiler/collector"
	"github.com/jhawthorn/vernier/pkg/profiler/host"
	"github.com/jhawthorn/vernier/pkg/profiler/host/testhost"
	"github.com/jhawthorn/vernier/pkg/profiler/marker"
	"github.com/jhawthorn/vernier/pkg/profiler/readiness"
)

// demoOptions holds the "demo" subcommand's own flags on top of the
// shared CommonOptions.
type demoOptions struct {
	interval    time.Duration
	duration    time.Duration
	readySocket string
	quiet       bool

	*CommonOptions
}

func newDemoCmd(opts *CommonOptions) *cobra.Command {
	o := &demoOptions{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the profiler engine against a synthetic in-process workload",
		Long: `demo drives TimeCollector against a reference host.Runtime (no real
managed-runtime integration exists in this repo) and prints the resulting
Result as JSON. It exists to exercise the engine end to end, not as a
substitute for a real host embedding.`,
		RunE: o.run,
	}
	cmd.Flags().DurationVar(&o.interval, "interval", 500*time.Microsecond, "Sampler tick interval")
	cmd.Flags().DurationVar(&o.duration, "duration", 200*time.Millisecond, "How long to run before reporting")
	cmd.Flags().StringVar(&o.readySocket, "ready-socket", DefaultReadySocket, "Unix socket a supervisor can block on until sampling starts")
	cmd.Flags().BoolVar(&o.quiet, "quiet", false, "Suppress the live status line")

	return cmd
}

func (o *demoOptions) run(cmd *cobra.Command, args []string) error {
	rt := testhost.New()

	const (
		demoThread = host.ThreadHandle(1)
		demoOS     = host.OSThreadHandle(1)
	)
	rt.AddLiveThread(demoThread, demoOS)
	rt.SetCurrentThread(demoThread, demoOS)

	tc, err := collector.NewTimeCollector(rt, collector.WithInterval(o.interval), collector.WithLogger(o.Logger))
	if err != nil {
		return errors.Wrap(err, "demo: construct collector")
	}

	mt := collector.NewMemoryTracker(
		collector.WithMemoryInterval(20*time.Millisecond),
		collector.WithMemoryReader(proc.StatmReader{}),
		collector.WithMemoryLogger(o.Logger),
	)

	ready := readiness.New(o.readySocket, o.Logger)
	if err := ready.Listen(o.Context); err != nil {
		return errors.Wrap(err, "demo: start readiness listener")
	}
	defer ready.Shutdown()

	if err := tc.Start(); err != nil {
		return errors.Wrap(err, "demo: start collector")
	}
	mt.Start()
	rt.FireScheduling(host.ThreadSchedStarted, demoThread, demoOS)
	ready.Notify()

	stop := make(chan struct{})
	go runSyntheticWorkload(rt, demoOS, stop)
	if !o.quiet {
		go o.printStatus(tc, mt, stop)
	}

	started := time.Now().UnixNano()
	select {
	case <-time.After(o.duration):
	case <-o.Context.Done():
	}
	close(stop)

	mt.Stop()
	if err := tc.Stop(); err != nil {
		return errors.Wrap(err, "demo: stop collector")
	}

	res := collector.BuildWallResult(tc, nil, started, o.interval.Microseconds(), 0)
	enc, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "demo: marshal result")
	}
	if !o.quiet {
		fmt.Println()
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(enc))
	fmt.Fprintln(cmd.OutOrStdout(), peakRSSLine(mt))
	return nil
}

// peakRSSLine reports the highest RSS reading MemoryTracker observed
// over the run, in human-readable form.
func peakRSSLine(mt *collector.MemoryTracker) string {
	var peak uint64
	for _, s := range mt.Samples() {
		if s.Bytes > peak {
			peak = s.Bytes
		}
	}
	return fmt.Sprintf("peak RSS: %s", humanize.Bytes(peak))
}

func (o *demoOptions) printStatus(tc *collector.TimeCollector, mt *collector.MemoryTracker, stop <-chan struct{}) {
	started := time.Now()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			elapsed := time.Since(started)
			pct := int(100 * elapsed / o.duration)
			if pct > 100 {
				pct = 100
			}
			gcPauses := 0
			for _, gt := range tc.Markers() {
				for _, m := range gt.Snapshot() {
					if m.Type == marker.GCPause {
						gcPauses++
					}
				}
			}
			var rss uint64
			if samples := mt.Samples(); len(samples) > 0 {
				rss = samples[len(samples)-1].Bytes
			}
			printRight(samplingStatusLine(pct, len(tc.Samples()), gcPauses, rss))
		}
	}
}

// runSyntheticWorkload keeps changing the fake runtime's reported stack
// for demoOS so repeated samples see varying call chains, the way a
// real interpreted program's stack changes between samples.
func runSyntheticWorkload(rt *testhost.FakeRuntime, os host.OSThreadHandle, stop <-chan struct{}) {
	frames := [][]host.FrameHandle{
		{1, 2, 3},
		{1, 2, 4},
		{1, 5},
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		f := frames[rand.Intn(len(frames))]
		lines := make([]int, len(f))
		for i := range lines {
			lines[i] = i + 1
		}
		rt.SetStack(os, f, lines)
		time.Sleep(time.Millisecond)
	}
}
