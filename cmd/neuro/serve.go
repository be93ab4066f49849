package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Neuro/common/version"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.start(ctx)
			if err != nil {
				return err
			}
			defer a.Stop()

			slog.Info("starting neuro", "version", version.Version, "commit", version.GitCommit)
			if err := a.Run(ctx); err != nil {
				return err
			}
			slog.Info("neuro stopped")
			return nil
		},
	}
}
