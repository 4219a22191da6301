// Package watch runs the background loop that detects repository mutations
// and pushes refreshed change sets to the foreground consumer.
package watch

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prdiff/prdiff/internal/debounce"
	"github.com/prdiff/prdiff/internal/git"
)

const (
	// DefaultInterval is the poll cadence. Each tick only stats files;
	// git subprocesses run when an mtime tier fires.
	DefaultInterval = 200 * time.Millisecond

	// nudgeDebounceDelay coalesces fsnotify event bursts before waking the
	// poll loop early.
	nudgeDebounceDelay = 50 * time.Millisecond

	updateBuffer = 16
)

// Update is one full-state replacement emitted by the watcher. Updates must
// be applied in order; the latest wholly supersedes prior ones.
type Update struct {
	Files     []git.FileChange
	MergeBase string
	// InvalidateAll requests a full diff-cache clear (index or ref change).
	InvalidateAll bool
	// InvalidatePaths lists the tracked files whose own content changed,
	// for targeted cache invalidation when InvalidateAll is false.
	InvalidatePaths map[string]struct{}
}

// Options tunes the watcher; zero values select the defaults.
type Options struct {
	Interval time.Duration
	// Notify enables the fsnotify wake-up on the .git directory. Polling
	// stays the authority; events only shorten the wait until the next
	// tick.
	Notify bool
}

// Repository is the slice of *git.Repo the watcher needs. The indirection
// exists so tests can drive the loop with a fake.
type Repository interface {
	RevParse(rev string) (string, error)
	MergeBase(revA, revB string) (string, error)
	ChangedFiles(mergeBase string) ([]git.FileChange, error)
	StatusFingerprint() (git.Fingerprint, error)
	ControlFile(name string) (string, error)
	GitDir() (string, error)
	Mtime(path string) (int64, bool)
	MtimeAbs(path string) (int64, bool)
}

// Watcher owns a private copy of all comparison state (ids, mtimes,
// fingerprint) and shares nothing with the consumer beyond the update
// channel.
type Watcher struct {
	repo     Repository
	base     string
	interval time.Duration

	updates chan Update
	done    chan struct{}
	nudge   chan struct{}

	fsw *fsnotify.Watcher
	deb *debounce.Debouncer

	// loop-private state
	mergeBase       string
	files           []git.FileChange
	lastHeadOID     string
	lastBaseOID     string
	lastFingerprint git.Fingerprint

	ctl        controlFiles
	ctlMtimes  controlMtimes
	fileMtimes map[string]int64
}

type controlFiles struct {
	index       string
	head        string
	refsHeads   string
	refsRemotes string
	packedRefs  string
}

type controlMtimes struct {
	index       mtime
	head        mtime
	refsHeads   mtime
	refsRemotes mtime
	packedRefs  mtime
}

// mtime is a stat result; ok is false when the file could not be statted,
// which compares distinct from any real timestamp.
type mtime struct {
	ns int64
	ok bool
}

// Spawn starts the background loop against base, seeded with the change set
// the caller already computed.
func Spawn(repo Repository, base, mergeBase string, files []git.FileChange, opts Options) *Watcher {
	w := newWatcher(repo, base, mergeBase, files, opts)
	if opts.Notify {
		w.enableNotify()
	}
	go w.loop()
	return w
}

func newWatcher(repo Repository, base, mergeBase string, files []git.FileChange, opts Options) *Watcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Watcher{
		repo:      repo,
		base:      base,
		interval:  interval,
		updates:   make(chan Update, updateBuffer),
		done:      make(chan struct{}),
		nudge:     make(chan struct{}, 1),
		mergeBase: mergeBase,
		files:     files,
	}
	w.seed()
	return w
}

// TryRecv returns the next pending update without blocking.
func (w *Watcher) TryRecv() (Update, bool) {
	select {
	case u := <-w.updates:
		return u, true
	default:
		return Update{}, false
	}
}

// Close tells the watcher its consumer is gone. The loop exits on its next
// delivery or tick.
func (w *Watcher) Close() {
	select {
	case <-w.done:
		return
	default:
	}
	close(w.done)
	if w.deb != nil {
		w.deb.Stop()
	}
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			slog.Error("fsnotify close", slog.Any("error", err))
		}
	}
}

// seed snapshots the comparison state so the first tick diffs against the
// state the caller started from.
func (w *Watcher) seed() {
	w.lastHeadOID, _ = w.repo.RevParse("HEAD")
	w.lastBaseOID, _ = w.repo.RevParse(w.base)
	w.lastFingerprint, _ = w.repo.StatusFingerprint()

	w.ctl.index = w.controlPath("index")
	w.ctl.head = w.controlPath("HEAD")
	w.ctl.refsHeads = w.controlPath("refs/heads/" + w.base)
	w.ctl.refsRemotes = w.controlPath("refs/remotes/" + w.base)
	w.ctl.packedRefs = w.controlPath("packed-refs")
	w.ctlMtimes = w.statControlFiles()
	w.fileMtimes = w.statFiles(w.files)
}

func (w *Watcher) controlPath(name string) string {
	path, err := w.repo.ControlFile(name)
	if err != nil {
		slog.Debug("control file unresolved", slog.String("name", name), slog.Any("error", err))
		return ""
	}
	return path
}

func (w *Watcher) enableNotify() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("fsnotify unavailable, polling only", slog.Any("error", err))
		return
	}
	gitDir, err := w.repo.GitDir()
	if err != nil {
		slog.Error("fsnotify watch failed, polling only", slog.Any("error", err))
		_ = fsw.Close()
		return
	}
	if err := fsw.Add(gitDir); err != nil {
		slog.Error("fsnotify watch failed, polling only",
			slog.String("path", gitDir), slog.Any("error", err))
		_ = fsw.Close()
		return
	}
	w.fsw = fsw
	w.deb = debounce.New(nudgeDebounceDelay, func() {
		select {
		case w.nudge <- struct{}{}:
		default:
		}
	})
	go w.notifyLoop(fsw)
}

func (w *Watcher) notifyLoop(fsw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.deb.Trigger()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-w.nudge:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}

		if update, ok := w.poll(); ok {
			if !w.deliver(update) {
				return
			}
		}
		timer.Reset(w.interval)
	}
}

// poll evaluates the escalation tiers for one tick and, when any of them
// signals a refresh, recollects the change set.
func (w *Watcher) poll() (Update, bool) {
	var (
		invalidateAll   bool
		invalidatePaths = map[string]struct{}{}
		needsRefresh    bool
	)

	// Tier 1+2: cheap mtime checks on git control files, no subprocesses.
	ctl := w.statControlFiles()
	gitDirChanged := ctl != w.ctlMtimes
	if ctl.index != w.ctlMtimes.index {
		w.ctlMtimes.index = ctl.index
		invalidateAll = true
		needsRefresh = true
		slog.Debug("index mtime changed")
	}
	if ctl.head != w.ctlMtimes.head ||
		ctl.refsHeads != w.ctlMtimes.refsHeads ||
		ctl.refsRemotes != w.ctlMtimes.refsRemotes ||
		ctl.packedRefs != w.ctlMtimes.packedRefs {
		w.ctlMtimes.head = ctl.head
		w.ctlMtimes.refsHeads = ctl.refsHeads
		w.ctlMtimes.refsRemotes = ctl.refsRemotes
		w.ctlMtimes.packedRefs = ctl.packedRefs

		// Ref files moved: now it is worth spawning git to re-resolve.
		headOID, err := w.repo.RevParse("HEAD")
		if err != nil {
			return Update{}, false
		}
		baseOID, err := w.repo.RevParse(w.base)
		if err != nil {
			return Update{}, false
		}
		if headOID != w.lastHeadOID || baseOID != w.lastBaseOID {
			invalidateAll = true
			mergeBase, err := w.repo.MergeBase("HEAD", w.base)
			if err == nil {
				w.mergeBase = mergeBase
				w.lastHeadOID = headOID
				w.lastBaseOID = baseOID
				needsRefresh = true
				slog.Debug("commits moved",
					slog.String("head", headOID),
					slog.String("base", baseOID),
					slog.String("merge_base", mergeBase),
				)
			}
		}
	}

	// Tier 3: tracked file mtimes; per-path invalidation only.
	newMtimes := w.statFiles(w.files)
	for _, f := range w.files {
		if w.fileMtimes[f.Path] != newMtimes[f.Path] {
			invalidatePaths[f.Path] = struct{}{}
			needsRefresh = true
		}
	}

	// Tier 4: only after some signal fired, compare the status fingerprint.
	// Catches changes mtimes miss, like a new untracked file.
	if len(invalidatePaths) > 0 || gitDirChanged {
		if fp, err := w.repo.StatusFingerprint(); err == nil && fp != w.lastFingerprint {
			w.lastFingerprint = fp
			needsRefresh = true
		}
	}

	if !needsRefresh {
		return Update{}, false
	}

	// A failed collection is skipped; the next tick retries.
	newFiles, err := w.repo.ChangedFiles(w.mergeBase)
	if err != nil {
		slog.Debug("refresh skipped", slog.Any("error", err))
		return Update{}, false
	}
	w.files = newFiles
	w.fileMtimes = w.statFiles(newFiles)
	return Update{
		Files:           newFiles,
		MergeBase:       w.mergeBase,
		InvalidateAll:   invalidateAll,
		InvalidatePaths: invalidatePaths,
	}, true
}

// deliver hands an update to the consumer without ever blocking the loop.
// When the buffer is full the oldest update is evicted; each update is a full
// replacement, so the latest always supersedes it. Returns false once the
// consumer is gone.
func (w *Watcher) deliver(u Update) bool {
	for {
		select {
		case <-w.done:
			return false
		case w.updates <- u:
			return true
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}

func (w *Watcher) statControlFiles() controlMtimes {
	stat := func(path string) mtime {
		ns, ok := w.repo.MtimeAbs(path)
		return mtime{ns: ns, ok: ok}
	}
	return controlMtimes{
		index:       stat(w.ctl.index),
		head:        stat(w.ctl.head),
		refsHeads:   stat(w.ctl.refsHeads),
		refsRemotes: stat(w.ctl.refsRemotes),
		packedRefs:  stat(w.ctl.packedRefs),
	}
}

func (w *Watcher) statFiles(files []git.FileChange) map[string]int64 {
	mtimes := make(map[string]int64, len(files))
	for _, f := range files {
		if ns, ok := w.repo.Mtime(f.Path); ok {
			mtimes[f.Path] = ns
		}
	}
	return mtimes
}
