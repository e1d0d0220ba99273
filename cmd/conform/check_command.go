package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"conform/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify external binaries are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			headers := []string{"Name", "Command", "Available", "Detail"}
			rows := make([][]string, 0, len(statuses))
			allAvailable := true
			for _, status := range statuses {
				rows = append(rows, []string{
					status.Name,
					status.Command,
					yesNo(status.Available),
					status.Detail,
				})
				if !status.Available && !status.Optional {
					allAvailable = false
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, nil))

			if !allAvailable {
				return errors.New("missing required binaries")
			}
			return nil
		},
	}
}
