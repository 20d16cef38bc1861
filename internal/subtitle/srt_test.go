package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{seconds: 0, want: "00:00:00,000"},
		{seconds: 3661.2345, want: "01:01:01,234"},
		{seconds: 0.9996, want: "00:00:01,000"},
		{seconds: 59.9999, want: "00:01:00,000"},
		{seconds: 3599.9996, want: "01:00:00,000"},
		{seconds: 1.5, want: "00:00:01,500"},
		{seconds: 90061.001, want: "25:01:01,001"},
		{seconds: -3, want: "00:00:00,000"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%v", tt.seconds), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

func TestWriteProducesSequentialBlocks(t *testing.T) {
	t.Parallel()

	segments := []Segment{
		{Start: 0, End: 1.25, Text: "привет"},
		{Start: 1.5, End: 3, Text: "second line"},
		{Start: 3.2, End: 4.9, Text: "  spaced text  "},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, segments))

	blocks := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, blocks, len(segments))
	for i, block := range blocks {
		lines := strings.Split(block, "\n")
		require.Len(t, lines, 3)
		require.Equal(t, fmt.Sprintf("%d", i+1), lines[0])
		require.Equal(t, FormatTimestamp(segments[i].Start)+" --> "+FormatTimestamp(segments[i].End), lines[1])
		require.Equal(t, segments[i].Text, lines[2])
	}
}

func TestWriteExactFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Segment{{Start: 0.5, End: 2, Text: "hello"}}))
	require.Equal(t, "1\n00:00:00,500 --> 00:00:02,000\nhello\n\n", buf.String())
}

func TestWriteFileEmptySegments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.srt")
	require.NoError(t, WriteFile(path, nil))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, content)
}

func TestWriteFileOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is longer"), 0o644))
	require.NoError(t, WriteFile(path, []Segment{{Start: 0, End: 1, Text: "x"}}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\nx\n\n", string(content))
}

func TestWriteFileMissingDirectory(t *testing.T) {
	t.Parallel()

	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.srt"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "create subtitle file")
}

func TestWriteKeepsTextVerbatim(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Segment{{Start: 0, End: 1, Text: " padded "}}))
	require.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\n padded \n\n", buf.String())
}
