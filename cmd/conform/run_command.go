package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"conform/internal/deps"
	"conform/internal/scheduler"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single pass over the library and exit",
		Long: "Scans the configured library once, probes every candidate, and " +
			"executes the resulting repacks and transcodes. Exits nonzero when " +
			"any file fails, which makes it suitable for cron.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := deps.Verify(cfg); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			sched, err := scheduler.New(cfg, logger)
			if err != nil {
				return err
			}
			defer sched.Close()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := sched.RunOnce(sigCtx)
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
