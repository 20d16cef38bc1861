package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fmueller/voxsrt/internal/pipeline"
)

// writeSummary prints one row per scheduled file. Files never reached
// because the run stopped early are counted but not listed.
func writeSummary(out io.Writer, results []pipeline.Result, scheduled int, elapsed time.Duration) {
	rows := make([][]string, 0, len(results))
	var ok, failed, segments int
	for i, r := range results {
		status, detail := "ok", r.Output
		switch {
		case r.Failed():
			status, detail = "failed", r.Err.Error()
			failed++
		case r.Silent:
			status = "silent"
			ok++
		default:
			ok++
		}
		segments += r.Segments
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			filepath.Base(r.Media),
			status,
			strconv.Itoa(r.Segments),
			formatElapsed(r.Elapsed),
			detail,
		})
	}

	totals := fmt.Sprintf("%d ok, %d failed", ok, failed)
	if skipped := scheduled - len(results); skipped > 0 {
		totals += fmt.Sprintf(", %d not started", skipped)
	}

	fmt.Fprintln(out, renderTable(
		[]string{"#", "Media", "Status", "Segments", "Elapsed", "Output / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		[]string{"", "Total", totals, strconv.Itoa(segments), formatElapsed(elapsed), ""},
	))
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
