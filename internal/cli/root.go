package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the vernier root command and its subcommands.
func NewRootCmd(opts *CommonOptions) *cobra.Command {
	root := &cobra.Command{
		Use:               "vernier",
		Short:             "vernier is a sampling and tracing profiler engine",
		Long:              `vernier profiles a managed-runtime host through a small, pluggable host.Runtime boundary.`,
		DisableAutoGenTag: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if opts.Debug {
				level = zerolog.DebugLevel
			}
			opts.Logger = opts.Logger.Level(level)
		},
	}
	root.AddCommand(newDemoCmd(opts))
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Sets log level to debug")

	return root
}

// Execute is the entry point called from cmd/vernier/main.go.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	opts := NewCommonOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		logger.Error().Err(err).Msg("vernier failed")
		os.Exit(1)
	}
}
