package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/fmueller/voxsrt/internal/media"
	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "no paths", args: []string{}, errContains: "requires at least 1 arg(s)"},
		{name: "unknown root flag", args: []string{"--badflag"}, errContains: "unknown flag"},
		{name: "unknown subcommand flag", args: []string{"watch", "--bogus", "dir"}, errContains: "unknown flag"},
		{name: "watch without dirs", args: []string{"watch"}, errContains: "requires at least 1 arg(s)"},
		{name: "interactive with args", args: []string{"interactive", "a.wav"}, errContains: "unknown command"},
		{name: "output with interactive", args: []string{"interactive", "--output", "x.srt"}, errContains: "unknown flag"},
		{name: "missing config", args: []string{"--config", "/no/such/config.toml", "models"}, errContains: "open config"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDiscoveryErrorsAbortBeforeEngineLoads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	tests := []struct {
		name   string
		input  string
		target error
	}{
		{name: "missing input", input: filepath.Join(dir, "missing.wav"), target: media.ErrNotFound},
		{name: "unsupported file", input: notes, target: media.ErrUnsupportedMedia},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, app := newHarness(t)
			_, _, err := h.run(t, app, tt.input)
			require.ErrorIs(t, err, tt.target)
			require.Empty(t, h.loads)
		})
	}
}

func TestOutputRejectedForSeveralFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMedia(t, dir, map[string]string{"a.wav": "a", "b.wav": "b"})

	h, app := newHarness(t)
	_, _, err := h.run(t, app, "-o", filepath.Join(dir, "out.srt"), dir)
	require.ErrorIs(t, err, errOutputWithManyFiles)
	require.Empty(t, h.loads)
}

func TestEngineLoadFailureIsReported(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeMedia(t, dir, map[string]string{"a.wav": "a"})

	h, app := newHarness(t)
	h.loadErr = engine.ErrEngineNotFound
	_, _, err := h.run(t, app, dir)
	require.ErrorIs(t, err, engine.ErrEngineNotFound)
	require.True(t, strings.HasPrefix(err.Error(), "load speech engine"))
	require.NoFileExists(t, filepath.Join(dir, "a.srt"))
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxsrt v"), "expected version prefix, got: %s", stdout)
}
