package main

import (
	"errors"
	"testing"

	"github.com/fmueller/voxsrt/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestShouldPrintUsageHint(t *testing.T) {
	t.Parallel()

	require.True(t, shouldPrintUsageHint(errors.New("unknown flag: --oops")))
	require.True(t, shouldPrintUsageHint(errors.New("requires at least 1 arg(s), only received 0")))
	require.True(t, shouldPrintUsageHint(errors.New("--output can only be used when exactly one file is transcribed (3 files scheduled)")))
	require.False(t, shouldPrintUsageHint(errors.New("load speech engine: speech engine helper not found")))
	require.False(t, shouldPrintUsageHint(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "voxsrt", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "voxsrt", helpHintTarget(root, nil))
	require.Equal(t, "voxsrt watch", helpHintTarget(root, []string{"watch"}))
	require.Equal(t, "voxsrt interactive", helpHintTarget(root, []string{"interactive", "--stop-timeout", "1m"}))
}
