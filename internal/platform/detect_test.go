package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirsForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("linux", "/home/dev", "/tmp/xdg-config", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-config/voxsrt/config.toml", dirs.ConfigFile())
	require.Equal(t, "/tmp/xdg-data/voxsrt/engine.lock", dirs.EngineLock())
}

func TestDirsForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("linux", "/home/dev", "", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.config/voxsrt", dirs.Config)
	require.Equal(t, "/home/dev/.local/share/voxsrt", dirs.Data)
}

func TestDirsForMacOS(t *testing.T) {
	t.Parallel()

	dirs, err := DirsFor("darwin", "/Users/dev", "", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxsrt/config.toml", dirs.ConfigFile())
	require.Equal(t, dirs.Config, dirs.Data)
}

func TestDirsForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DirsFor("windows", "/Users/dev", "", "")
	require.Error(t, err)
}

func TestDirsForEmptyHome(t *testing.T) {
	t.Parallel()

	_, err := DirsFor("linux", "", "", "")
	require.Error(t, err)
}

func TestResolveScratchDirCreatesOverride(t *testing.T) {
	t.Parallel()

	want := filepath.Join(t.TempDir(), "scratch", "nested")
	dir, err := ResolveScratchDir(want)
	require.NoError(t, err)
	require.Equal(t, want, dir)
	require.DirExists(t, dir)
}

func TestResolveScratchDirDefaultsToTemp(t *testing.T) {
	t.Parallel()

	dir, err := ResolveScratchDir("")
	require.NoError(t, err)
	require.Equal(t, os.TempDir(), dir)
}
