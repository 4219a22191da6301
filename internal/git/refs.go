package git

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoBase is wrapped by resolution failures so callers can distinguish an
// unresolvable base name from subprocess errors.
var ErrNoBase = errors.New("base revision not found")

// ErrNoMergeBase is wrapped when two revisions share no common ancestor.
var ErrNoMergeBase = errors.New("no merge-base")

// DefaultBaseCandidates is tried in order when no base name is given. The
// upstream tracking branch is not useful here since feature branches usually
// track origin/<feature>, not the base.
var DefaultBaseCandidates = []string{"develop", "main", "master"}

// DetectBase resolves the base ref. An explicit name wins; otherwise the
// first candidate that resolves is used.
func (r *Repo) DetectBase(name string, candidates []string) (string, error) {
	if name != "" {
		return r.ResolveBase(name)
	}
	if len(candidates) == 0 {
		candidates = DefaultBaseCandidates
	}
	for _, candidate := range candidates {
		if resolved, err := r.ResolveBase(candidate); err == nil {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrNoBase, strings.Join(candidates, ", "))
}

// ResolveBase resolves name to a ref, preferring the remote-tracking ref
// (e.g. origin/develop) over a same-named local branch: PR diffs compare
// against the remote, and local branches are often stale.
func (r *Repo) ResolveBase(name string) (string, error) {
	if !strings.Contains(name, "/") {
		if remote := r.defaultRemote(); remote != "" {
			candidate := remote + "/" + name
			if r.verifyRef(candidate) {
				return candidate, nil
			}
		}
	}
	if r.verifyRef(name) {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoBase, name)
}

func (r *Repo) verifyRef(name string) bool {
	_, err := r.run([]string{"rev-parse", "--verify", "--quiet", name}, false, "git rev-parse")
	return err == nil
}

func (r *Repo) defaultRemote() string {
	out, err := r.run([]string{"remote"}, false, "git remote")
	if err != nil {
		return ""
	}
	var remotes []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			remotes = append(remotes, name)
		}
	}
	for _, name := range remotes {
		if name == "origin" {
			return name
		}
	}
	if len(remotes) == 1 {
		return remotes[0]
	}
	return ""
}

// RevParse resolves rev to a canonical commit id.
func (r *Repo) RevParse(rev string) (string, error) {
	out, err := r.run([]string{"rev-parse", rev}, false, "git rev-parse")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// MergeBase returns the nearest common ancestor of two revisions.
func (r *Repo) MergeBase(revA, revB string) (string, error) {
	out, err := r.run([]string{"merge-base", revA, revB}, false, "git merge-base")
	if err != nil {
		return "", fmt.Errorf("%w between %s and %s", ErrNoMergeBase, revA, revB)
	}
	return strings.TrimSpace(out), nil
}

// ListBranches returns all local and remote branch names, sorted, without
// HEAD pointer entries.
func (r *Repo) ListBranches() ([]string, error) {
	out, err := r.run([]string{"branch", "-a", "--format=%(refname:short)"}, false, "git branch")
	if err != nil {
		return nil, err
	}
	return parseBranchList(out), nil
}

func parseBranchList(out string) []string {
	seen := map[string]struct{}{}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.Contains(name, "HEAD") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		branches = append(branches, name)
	}
	sort.Strings(branches)
	return branches
}
