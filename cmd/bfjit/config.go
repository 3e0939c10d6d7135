package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"

	"bfjit/pkg/bf"
	"bfjit/pkg/engine"
)

// Config represents the configuration loaded from a JSON or TOML file.
// Command line flags override every field.
type Config struct {
	Tape     string `json:"tape" toml:"tape"`           // Tape size, "30000" or "64KiB"
	Mode     string `json:"mode" toml:"mode"`           // "jit" or "interpreter"
	Strict   bool   `json:"strict" toml:"strict"`       // Reject comments and stray ']'
	CacheDir string `json:"cache_dir" toml:"cache-dir"` // Code cache directory, empty to disable
}

// DefaultConfig returns the settings used when nothing else is given
func DefaultConfig() Config {
	return Config{
		Tape: fmt.Sprint(bf.DefaultTapeSize),
		Mode: engine.GetExecutionMode().String(),
	}
}

// LoadConfig reads path on top of base. Files ending in .toml are TOML,
// everything else is JSON.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := base
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return base, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// TapeCells parses the tape size
func (c Config) TapeCells() (int, error) {
	n, err := units.RAMInBytes(c.Tape)
	if err != nil {
		return 0, fmt.Errorf("invalid tape size %q: %w", c.Tape, err)
	}
	if n <= 0 || n > 1<<30 {
		return 0, fmt.Errorf("tape size %q out of range", c.Tape)
	}
	return int(n), nil
}

// ExecutionMode parses the mode
func (c Config) ExecutionMode() (engine.ExecutionMode, error) {
	return engine.ParseMode(c.Mode)
}
