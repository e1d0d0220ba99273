package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"conform/internal/daemon"
	"conform/internal/deps"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the conform daemon in the foreground",
		Long: "Runs the configured schedule under a single-instance lock. " +
			"Continuous mode loops passes with an idle interval until " +
			"interrupted; cron mode runs one pass and exits.",
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

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return d.Run(sigCtx)
		},
	}
}
