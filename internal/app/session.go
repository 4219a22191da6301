// Package app owns the live session state: the current change set, its tree,
// the expansion and selection state, the diff caches, and the reconciliation
// of watcher updates into all of the above.
package app

import (
	"fmt"
	"log/slog"

	"github.com/prdiff/prdiff/internal/git"
	"github.com/prdiff/prdiff/internal/tree"
	"github.com/prdiff/prdiff/internal/watch"
)

// Repository is what a session needs from *git.Repo. Superset of the watcher
// surface so one handle serves both.
type Repository interface {
	watch.Repository
	DetectBase(name string, candidates []string) (string, error)
	FileDiff(mergeBase, path string) (git.DiffSource, []string)
}

// Options carries the tuning knobs a session forwards to its watcher.
type Options struct {
	BaseCandidates []string
	Watch          watch.Options
	WatchEnabled   bool
}

// Session is single-goroutine state: the foreground loop owns it and folds
// watcher updates in via DrainUpdates. Nothing here is shared with the
// watcher except the update channel it drains.
type Session struct {
	repo Repository
	opts Options

	base    string
	changes git.ChangeSet

	nodes    []tree.Node
	expanded map[string]struct{}
	cursor   int

	diffCache   map[string][]string
	sourceCache map[string]git.DiffSource

	watcher     *watch.Watcher
	treeVersion uint64
}

// New resolves the base, collects the initial change set, builds the tree
// with every directory open, and spawns the watcher. Any failure here is
// startup-fatal for the caller.
func New(repo Repository, baseName string, opts Options) (*Session, error) {
	base, err := repo.DetectBase(baseName, opts.BaseCandidates)
	if err != nil {
		return nil, err
	}
	mergeBase, err := repo.MergeBase("HEAD", base)
	if err != nil {
		return nil, err
	}
	files, err := repo.ChangedFiles(mergeBase)
	if err != nil {
		return nil, fmt.Errorf("collect changed files: %w", err)
	}

	s := &Session{
		repo:        repo,
		opts:        opts,
		base:        base,
		changes:     git.ChangeSet{MergeBase: mergeBase, Files: files},
		expanded:    map[string]struct{}{},
		diffCache:   map[string][]string{},
		sourceCache: map[string]git.DiffSource{},
		treeVersion: 1,
	}
	s.nodes = tree.Build(files)
	tree.ExpandAll(s.nodes, "", s.expanded)
	if opts.WatchEnabled {
		s.watcher = watch.Spawn(repo, base, mergeBase, files, opts.Watch)
	}
	slog.Debug("session started",
		slog.String("base", base),
		slog.String("merge_base", mergeBase),
		slog.Int("files", len(files)),
	)
	return s, nil
}

func (s *Session) Base() string            { return s.base }
func (s *Session) MergeBase() string       { return s.changes.MergeBase }
func (s *Session) Files() []git.FileChange { return s.changes.Files }
func (s *Session) Tree() []tree.Node       { return s.nodes }
func (s *Session) Cursor() int             { return s.cursor }

// TreeVersion increments whenever the visible structure may have changed;
// the presentation layer uses it to skip redundant redraws.
func (s *Session) TreeVersion() uint64 { return s.treeVersion }

// Expanded reports whether a directory path is open.
func (s *Session) Expanded(path string) bool {
	_, ok := s.expanded[path]
	return ok
}

// VisibleItems flattens the tree pre-order, honoring the expansion state.
func (s *Session) VisibleItems() []tree.Item {
	return tree.Flatten(s.nodes, s.expanded)
}

// SelectedPath returns the path key under the cursor, or "".
func (s *Session) SelectedPath() string {
	visible := s.VisibleItems()
	if s.cursor < 0 || s.cursor >= len(visible) {
		return ""
	}
	return visible[s.cursor].Path
}

// SetCursor clamps idx into the visible range.
func (s *Session) SetCursor(idx int) {
	count := len(s.VisibleItems())
	if count == 0 {
		s.cursor = 0
		return
	}
	s.cursor = max(0, min(idx, count-1))
}

// ToggleExpand flips the directory under the cursor.
func (s *Session) ToggleExpand() {
	visible := s.VisibleItems()
	if s.cursor < 0 || s.cursor >= len(visible) {
		return
	}
	item := visible[s.cursor]
	if _, ok := item.Node.(*tree.Dir); !ok {
		return
	}
	if _, open := s.expanded[item.Path]; open {
		delete(s.expanded, item.Path)
	} else {
		s.expanded[item.Path] = struct{}{}
	}
	s.treeVersion++
}

// CollapseSelected closes the directory under the cursor if it was open.
func (s *Session) CollapseSelected() {
	visible := s.VisibleItems()
	if s.cursor < 0 || s.cursor >= len(visible) {
		return
	}
	path := visible[s.cursor].Path
	if _, open := s.expanded[path]; open {
		delete(s.expanded, path)
		s.treeVersion++
	}
}

// DrainUpdates applies all pending watcher updates, in order, without
// blocking. Reports whether anything was applied.
func (s *Session) DrainUpdates() bool {
	if s.watcher == nil {
		return false
	}
	applied := false
	for {
		update, ok := s.watcher.TryRecv()
		if !ok {
			return applied
		}
		s.applyUpdate(update)
		applied = true
	}
}

// applyUpdate folds one full-state replacement into the session: caches are
// invalidated per the update, the tree is rebuilt, expansion and selection
// are carried over.
func (s *Session) applyUpdate(u watch.Update) {
	if u.InvalidateAll {
		clear(s.diffCache)
		clear(s.sourceCache)
	} else {
		for path := range u.InvalidatePaths {
			delete(s.diffCache, path)
			delete(s.sourceCache, path)
		}
	}

	oldSelected := s.SelectedPath()
	oldDirs := map[string]struct{}{}
	tree.ExpandAll(s.nodes, "", oldDirs)

	s.changes = git.ChangeSet{MergeBase: u.MergeBase, Files: u.Files}
	s.nodes = tree.Build(u.Files)
	s.treeVersion++

	newDirs := map[string]struct{}{}
	tree.ExpandAll(s.nodes, "", newDirs)
	s.expanded = tree.NextExpansion(s.expanded, oldDirs, newDirs)

	// Drop cache entries for paths that left the change set, e.g. a file
	// reverted back to its merge-base content.
	paths := s.changes.Paths()
	for path := range s.diffCache {
		if _, ok := paths[path]; !ok {
			delete(s.diffCache, path)
		}
	}
	for path := range s.sourceCache {
		if _, ok := paths[path]; !ok {
			delete(s.sourceCache, path)
		}
	}

	// Keep the selection on the same path when it survived the rebuild,
	// otherwise clamp.
	visible := s.VisibleItems()
	if oldSelected != "" {
		for idx, item := range visible {
			if item.Path == oldSelected {
				s.cursor = idx
				break
			}
		}
	}
	if len(visible) == 0 {
		s.cursor = 0
	} else if s.cursor >= len(visible) {
		s.cursor = len(visible) - 1
	}
	slog.Debug("applied watcher update",
		slog.String("merge_base", u.MergeBase),
		slog.Int("files", len(u.Files)),
		slog.Bool("invalidate_all", u.InvalidateAll),
		slog.Int("invalidate_paths", len(u.InvalidatePaths)),
	)
}

// Diff returns the cached diff for path, fetching it on first access.
func (s *Session) Diff(path string) ([]string, git.DiffSource) {
	if lines, ok := s.diffCache[path]; ok {
		return lines, s.sourceCache[path]
	}
	source, lines := s.repo.FileDiff(s.changes.MergeBase, path)
	s.diffCache[path] = lines
	s.sourceCache[path] = source
	return lines, source
}

// DiffSource returns the provenance of a cached diff.
func (s *Session) DiffSource(path string) (git.DiffSource, bool) {
	source, ok := s.sourceCache[path]
	return source, ok
}

// SwitchBase re-targets the session at a new base revision: resolve, collect
// and rebuild synchronously, then restart the watcher against the new base
// and file list. On any failure the prior state is kept untouched.
func (s *Session) SwitchBase(name string) error {
	base, err := s.repo.DetectBase(name, s.opts.BaseCandidates)
	if err != nil {
		return err
	}
	mergeBase, err := s.repo.MergeBase("HEAD", base)
	if err != nil {
		return err
	}
	files, err := s.repo.ChangedFiles(mergeBase)
	if err != nil {
		return fmt.Errorf("collect changed files: %w", err)
	}

	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.base = base
	s.changes = git.ChangeSet{MergeBase: mergeBase, Files: files}
	s.nodes = tree.Build(files)
	s.expanded = map[string]struct{}{}
	tree.ExpandAll(s.nodes, "", s.expanded)
	clear(s.diffCache)
	clear(s.sourceCache)
	s.cursor = 0
	s.treeVersion++
	if s.opts.WatchEnabled {
		s.watcher = watch.Spawn(s.repo, base, mergeBase, files, s.opts.Watch)
	}
	slog.Debug("switched base",
		slog.String("base", base),
		slog.String("merge_base", mergeBase),
		slog.Int("files", len(files)),
	)
	return nil
}

// Close stops the watcher. The session remains readable afterwards.
func (s *Session) Close() {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

// EditorTarget returns the file path under the cursor, or "" when the cursor
// is not on a file. Spawning the editor is the caller's concern.
func (s *Session) EditorTarget() string {
	visible := s.VisibleItems()
	if s.cursor < 0 || s.cursor >= len(visible) {
		return ""
	}
	if file, ok := visible[s.cursor].Node.(*tree.File); ok {
		return file.Change.Path
	}
	return ""
}
