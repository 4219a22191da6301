// Package config loads the optional prdiff configuration file. Everything in
// it is product tuning; missing files and fields fall back to defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prdiff/prdiff/internal/git"
	"github.com/prdiff/prdiff/internal/watch"
)

type Config struct {
	// BaseCandidates is tried in order when no base branch is specified.
	BaseCandidates []string `yaml:"base_candidates"`
	// PollIntervalMS is the watcher poll cadence in milliseconds.
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// Watch disables the background watcher entirely when false.
	Watch *bool `yaml:"watch"`
	// Editor overrides $PRDIFF_EDITOR / $EDITOR.
	Editor string `yaml:"editor"`
}

func Default() Config {
	return Config{
		BaseCandidates: git.DefaultBaseCandidates,
		PollIntervalMS: int(watch.DefaultInterval / time.Millisecond),
	}
}

// Load reads the first config file found: .prdiff.yaml in repoRoot, then
// $XDG_CONFIG_HOME/prdiff/config.yaml (or ~/.config/prdiff/config.yaml). A
// missing file yields the defaults; a malformed one is an error.
func Load(repoRoot string) (Config, error) {
	for _, path := range candidatePaths(repoRoot) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		return parse(data, path)
	}
	return Default(), nil
}

func candidatePaths(repoRoot string) []string {
	var paths []string
	if repoRoot != "" {
		paths = append(paths, filepath.Join(repoRoot, ".prdiff.yaml"))
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(home, ".config")
		}
	}
	if configDir != "" {
		paths = append(paths, filepath.Join(configDir, "prdiff", "config.yaml"))
	}
	return paths
}

func parse(data []byte, path string) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.BaseCandidates) == 0 {
		cfg.BaseCandidates = git.DefaultBaseCandidates
	}
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = int(watch.DefaultInterval / time.Millisecond)
	}
	return cfg, nil
}

// PollInterval returns the configured cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// WatchEnabled defaults to true when unset.
func (c Config) WatchEnabled() bool {
	return c.Watch == nil || *c.Watch
}

// EditorCommand resolves the editor to use for "open in editor", preferring
// the config file, then $PRDIFF_EDITOR, then $EDITOR.
func (c Config) EditorCommand() string {
	if c.Editor != "" {
		return c.Editor
	}
	if e := os.Getenv("PRDIFF_EDITOR"); e != "" {
		return e
	}
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return "vi"
}
