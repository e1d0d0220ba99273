package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"conform/internal/decide"
	"conform/internal/media/probe"
	"conform/internal/scheduler"
)

func newDecideCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "decide FILE",
		Short: "Classify a file without converting it",
		Long: "Probes the file and reports the action the configured policy " +
			"would take: SKIP, REPACK, or TRANSCODE. Nothing is written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client := probe.New(cfg.FFprobeBinary(), cfg.Convert.ProbeTimeoutSeconds)
			meta, err := client.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			dec, err := decide.Decide(meta, scheduler.PolicyFromConfig(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Action: %s\n", dec.Action)
			for _, reason := range dec.Reasons {
				fmt.Fprintf(out, "  - %s\n", reason)
			}
			if len(meta.Audio) > 0 {
				fmt.Fprintln(out, "Audio streams:")
				for _, stream := range meta.Audio {
					fmt.Fprintf(out, "  %s\n", stream.Describe())
				}
			}
			if dec.Action != decide.Skip {
				describePlans(out, dec)
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

func describePlans(out io.Writer, dec decide.Decision) {
	if dec.Video.Passthrough {
		fmt.Fprintln(out, "Video:  copy")
	} else {
		encoder := "cpu"
		if dec.Video.NVENC {
			encoder = "nvenc"
		}
		fmt.Fprintf(out, "Video:  encode %s (%s)\n", dec.Video.Codec, encoder)
	}
	if dec.Audio.Passthrough {
		fmt.Fprintln(out, "Audio:  copy")
	} else {
		fmt.Fprintf(out, "Audio:  %s %s where needed\n", dec.Audio.Codec, dec.Audio.Bitrate)
	}
	for _, dm := range dec.Audio.Downmixes {
		fmt.Fprintf(out, "  + stereo downmix of stream %d (%dch)\n", dm.SourceIndex, dm.SourceChannels)
	}
}
