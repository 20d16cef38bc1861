package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Segment is one timed piece of recognized text. Start and End are seconds
// from the beginning of the audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Milliseconds are rounded
// and carry into the seconds field; hours are not wrapped at 24.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}

	whole := math.Floor(seconds)
	millis := int64(whole)*1000 + int64(math.Round((seconds-whole)*1000))

	hours := millis / 3_600_000
	millis %= 3_600_000
	minutes := millis / 60_000
	millis %= 60_000
	secs := millis / 1000
	millis %= 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Write renders segments as SRT cues numbered from 1. Text is written
// verbatim and every cue, including the last, ends with a blank line.
func Write(w io.Writer, segments []Segment) error {
	bw := bufio.NewWriter(w)
	for i, seg := range segments {
		bw.WriteString(strconv.Itoa(i + 1))
		bw.WriteByte('\n')
		bw.WriteString(FormatTimestamp(seg.Start))
		bw.WriteString(" --> ")
		bw.WriteString(FormatTimestamp(seg.End))
		bw.WriteByte('\n')
		bw.WriteString(seg.Text)
		bw.WriteString("\n\n")
	}
	return bw.Flush()
}

// WriteFile creates or truncates path and writes segments into it. A failure
// midway leaves whatever was flushed so far on disk.
func WriteFile(path string, segments []Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create subtitle file: %w", err)
	}

	if err := Write(f, segments); err != nil {
		_ = f.Close()
		return fmt.Errorf("write subtitle file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close subtitle file: %w", err)
	}
	return nil
}
