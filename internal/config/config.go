// Package config loads voxsrt settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/pelletier/go-toml/v2"
)

// Config mirrors config.toml. Every field has a command-line flag that takes
// precedence when set explicitly.
type Config struct {
	Engine   Engine        `toml:"engine"`
	Chunking engine.Params `toml:"chunking"`
	Input    Input         `toml:"input"`
	Silence  Silence       `toml:"silence_gate"`
	Paths    Paths         `toml:"paths"`
	Watch    Watch         `toml:"watch"`
}

type Engine struct {
	Model  string `toml:"model"`
	Device string `toml:"device"`
	// HFToken falls back to the HF_TOKEN environment variable when empty.
	HFToken    string `toml:"hf_token"`
	Executable string `toml:"executable"`
}

type Input struct {
	Recursive    bool `toml:"recursive"`
	IgnoreErrors bool `toml:"ignore_errors"`
}

type Silence struct {
	Enabled       bool    `toml:"enabled"`
	ThresholdDBFS float64 `toml:"threshold_dbfs"`
}

type Paths struct {
	ScratchDir string `toml:"scratch_dir"`
}

type Watch struct {
	DebounceMillis int `toml:"debounce_ms"`
}

func Default() Config {
	return Config{
		Engine:   Engine{Model: engine.DefaultModel},
		Chunking: engine.DefaultParams(),
		Input:    Input{IgnoreErrors: true},
		Silence:  Silence{ThresholdDBFS: -65},
		Watch:    Watch{DebounceMillis: 500},
	}
}

// Load reads path over the defaults. A missing file at the default location
// is not an error; explicit must be set when the user named the file, in
// which case it has to exist.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	expanded, err := expandHome(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("parse config %s: %s", expanded, strict.String())
		}
		return Config{}, fmt.Errorf("parse config %s: %w", expanded, err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HFToken returns the configured token or the HF_TOKEN environment value.
func (c Config) HFToken() string {
	if token := strings.TrimSpace(c.Engine.HFToken); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv("HF_TOKEN"))
}

func (c *Config) normalize() error {
	c.Engine.Model = strings.ToLower(strings.TrimSpace(c.Engine.Model))
	if c.Engine.Model == "" {
		c.Engine.Model = engine.DefaultModel
	}
	c.Engine.Device = strings.TrimSpace(c.Engine.Device)

	for _, p := range []*string{&c.Paths.ScratchDir, &c.Engine.Executable} {
		if *p == "" {
			continue
		}
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}

	if c.Watch.DebounceMillis <= 0 {
		c.Watch.DebounceMillis = Default().Watch.DebounceMillis
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
