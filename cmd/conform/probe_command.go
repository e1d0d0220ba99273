package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"conform/internal/media/probe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Inspect a media file's streams",
		Args:  cobra.ExactArgs(1),
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

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Container: %s\n", meta.Container)
			fmt.Fprintf(out, "Duration:  %.1fs\n", meta.DurationSeconds)
			fmt.Fprintf(out, "Size:      %d bytes\n", meta.SizeBytes)
			fmt.Fprintf(out, "Subtitles: %s\n", yesNo(meta.HasSubtitles))
			fmt.Fprintln(out, renderStreamTable(meta))
			return nil
		},
	}
}

func renderStreamTable(meta probe.Metadata) string {
	headers := []string{"#", "Type", "Codec", "Detail"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}

	var rows [][]string
	for _, v := range meta.Video {
		detail := fmt.Sprintf("%dx%d", v.Width, v.Height)
		if v.BitDepth > 0 {
			detail += fmt.Sprintf(" %d-bit", v.BitDepth)
		}
		if v.Profile != "" {
			detail += " " + v.Profile
		}
		rows = append(rows, []string{strconv.Itoa(v.Index), "video", v.Codec, detail})
	}
	for _, a := range meta.Audio {
		detail := fmt.Sprintf("%dch %s", a.Channels, a.LanguageName())
		rows = append(rows, []string{strconv.Itoa(a.Index), "audio", a.Codec, detail})
	}
	return renderTable(headers, rows, aligns)
}
