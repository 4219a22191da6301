package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	gitlib "github.com/go-git/go-git/v5"
)

// Repo is a handle to one working copy. All operations are read-only: every
// git invocation runs with GIT_OPTIONAL_LOCKS=0 so the tool never creates
// index.lock and never contends with other git processes in the same repo.
type Repo struct {
	path string
}

// Open validates repoPath as a git working copy and anchors the handle at the
// repository root.
func Open(repoPath string) (*Repo, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	// go-git discovery catches "not a repository" before any subprocess runs
	// and handles .git files (worktrees, submodules) via DetectDotGit.
	if _, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true}); err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	tmp := &Repo{path: abs}
	root, err := tmp.run([]string{"rev-parse", "--show-toplevel"}, false, "git rev-parse")
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("open repository: git rev-parse returned empty root")
	}
	return &Repo{path: root}, nil
}

func (r *Repo) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func (r *Repo) run(args []string, allowExit1 bool, context string) (string, error) {
	if r == nil || r.path == "" {
		return "", fmt.Errorf("repository root not set")
	}
	cmdArgs := append([]string{"-C", r.path}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Env = append(cmd.Environ(), "GIT_OPTIONAL_LOCKS=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if allowExit1 && errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			// treat as success when git diff signals changes via exit code 1
		} else {
			if stderr.Len() > 0 {
				return "", fmt.Errorf("%s: %v: %s", context, err, strings.TrimSpace(stderr.String()))
			}
			return "", fmt.Errorf("%s: %w", context, err)
		}
	}
	return stdout.String(), nil
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir() (string, error) {
	out, err := r.run([]string{"rev-parse", "--git-dir"}, false, "git rev-parse --git-dir")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.path, dir)
	}
	return dir, nil
}

// ControlFile resolves the location of a file inside the git directory, e.g.
// "index" or "packed-refs". Used to know which files the watcher should poll.
func (r *Repo) ControlFile(name string) (string, error) {
	out, err := r.run([]string{"rev-parse", "--git-path", name}, false, "git rev-parse --git-path")
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(out)
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.path, path)
	}
	return path, nil
}
