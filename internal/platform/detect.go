package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxsrt"

// Dirs holds the per-user locations voxsrt reads and writes.
type Dirs struct {
	Config string
	Data   string
}

// ConfigFile is the default location of config.toml.
func (d Dirs) ConfigFile() string {
	return filepath.Join(d.Config, "config.toml")
}

// EngineLock is the lock file guarding the engine helper against a second
// concurrent instance.
func (d Dirs) EngineLock() string {
	return filepath.Join(d.Data, "engine.lock")
}

func DirsFor(goos, homeDir, xdgConfigHome, xdgDataHome string) (Dirs, error) {
	if homeDir == "" {
		return Dirs{}, errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		dirs := Dirs{
			Config: filepath.Join(homeDir, ".config", appName),
			Data:   filepath.Join(homeDir, ".local", "share", appName),
		}
		if xdgConfigHome != "" {
			dirs.Config = filepath.Join(xdgConfigHome, appName)
		}
		if xdgDataHome != "" {
			dirs.Data = filepath.Join(xdgDataHome, appName)
		}
		return dirs, nil
	case "darwin":
		base := filepath.Join(homeDir, "Library", "Application Support", appName)
		return Dirs{Config: base, Data: base}, nil
	default:
		return Dirs{}, fmt.Errorf("unsupported OS: %s", goos)
	}
}

func ResolveDirs() (Dirs, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("resolve user home: %w", err)
	}

	return DirsFor(runtime.GOOS, homeDir, os.Getenv("XDG_CONFIG_HOME"), os.Getenv("XDG_DATA_HOME"))
}

// ResolveScratchDir returns override when set, otherwise the system temp
// directory. The directory is created if missing.
func ResolveScratchDir(override string) (string, error) {
	dir := os.TempDir()
	if override != "" {
		dir = filepath.Clean(override)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory %s: %w", dir, err)
	}
	return dir, nil
}
