package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	repoRoot := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(cfg.BaseCandidates, []string{"develop", "main", "master"}) {
		t.Errorf("BaseCandidates = %v", cfg.BaseCandidates)
	}
	if cfg.PollInterval() != 200*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 200ms", cfg.PollInterval())
	}
	if !cfg.WatchEnabled() {
		t.Error("WatchEnabled() = false by default")
	}
}

func TestLoadRepoFileWinsOverUserFile(t *testing.T) {
	repoRoot := t.TempDir()
	userDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", userDir)

	write := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(repoRoot, ".prdiff.yaml"), "poll_interval_ms: 500\n")
	write(filepath.Join(userDir, "prdiff", "config.yaml"), "poll_interval_ms: 900\n")

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 500ms from repo file", cfg.PollInterval())
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "full",
			in: "base_candidates: [trunk, main]\npoll_interval_ms: 350\nwatch: false\neditor: hx\n",
			check: func(t *testing.T, cfg Config) {
				if !slices.Equal(cfg.BaseCandidates, []string{"trunk", "main"}) {
					t.Errorf("BaseCandidates = %v", cfg.BaseCandidates)
				}
				if cfg.PollInterval() != 350*time.Millisecond {
					t.Errorf("PollInterval() = %v", cfg.PollInterval())
				}
				if cfg.WatchEnabled() {
					t.Error("WatchEnabled() = true, want false")
				}
				if cfg.Editor != "hx" {
					t.Errorf("Editor = %q", cfg.Editor)
				}
			},
		},
		{
			name: "empty_lists_fall_back",
			in:   "base_candidates: []\npoll_interval_ms: 0\n",
			check: func(t *testing.T, cfg Config) {
				if len(cfg.BaseCandidates) == 0 {
					t.Error("empty BaseCandidates not defaulted")
				}
				if cfg.PollInterval() != 200*time.Millisecond {
					t.Errorf("PollInterval() = %v, want default", cfg.PollInterval())
				}
			},
		},
		{name: "malformed", in: "base_candidates: [unterminated\n", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := parse([]byte(tt.in), "test.yaml")
			if tt.wantErr {
				if err == nil {
					t.Fatal("parse() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestEditorCommandPrecedence(t *testing.T) {
	t.Setenv("PRDIFF_EDITOR", "from-prdiff-env")
	t.Setenv("EDITOR", "from-editor-env")

	cfg := Config{Editor: "from-config"}
	if got := cfg.EditorCommand(); got != "from-config" {
		t.Errorf("EditorCommand() = %q, want config value", got)
	}

	cfg.Editor = ""
	if got := cfg.EditorCommand(); got != "from-prdiff-env" {
		t.Errorf("EditorCommand() = %q, want PRDIFF_EDITOR", got)
	}

	t.Setenv("PRDIFF_EDITOR", "")
	if got := cfg.EditorCommand(); got != "from-editor-env" {
		t.Errorf("EditorCommand() = %q, want EDITOR", got)
	}
}
