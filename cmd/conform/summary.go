package main

import (
	"fmt"
	"path/filepath"
	"time"

	"conform/internal/pipeline"
)

const summaryDurationUnit = 10 * time.Millisecond

// renderSummary formats a pass summary: one row per non-skipped file plus a
// totals footer. Skipped files are counted but not listed; on a conformed
// library they would drown out the interesting rows.
func renderSummary(summary pipeline.Summary) string {
	headers := []string{"File", "Action", "Stage", "Duration", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}

	var rows [][]string
	for _, result := range summary.Results {
		if result.Stage == pipeline.StageSkipped {
			continue
		}
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		rows = append(rows, []string{
			filepath.Base(result.Path),
			result.Action.String(),
			string(result.Stage),
			result.Duration.Round(summaryDurationUnit).String(),
			errText,
		})
	}

	totals := fmt.Sprintf(
		"%d files: %d skipped (%d cached), %d repacked, %d transcoded, %d failed in %s",
		summary.Total,
		summary.Skipped,
		summary.CacheHits,
		summary.Repacked,
		summary.Transcoded,
		summary.Failed,
		summary.Duration.Round(summaryDurationUnit),
	)
	if len(rows) == 0 {
		return totals
	}
	return renderTable(headers, rows, aligns) + "\n" + totals
}
