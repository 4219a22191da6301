package git

import (
	"os"
	"path/filepath"

	"golang.org/x/crypto/sha3"
)

// Fingerprint summarizes the porcelain status output. Comparing fingerprints
// across polls catches changes that mtime checks miss, such as a freshly
// created untracked file.
type Fingerprint [32]byte

// StatusFingerprint hashes `git status --porcelain=v1 -z`. The -z output is
// stable for unchanged repositories, so equal fingerprints mean no status
// change.
func (r *Repo) StatusFingerprint() (Fingerprint, error) {
	out, err := r.run([]string{"status", "--porcelain=v1", "-z"}, false, "git status")
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint(sha3.Sum256([]byte(out))), nil
}

// Mtime returns the modification time of a repository-relative path in
// nanoseconds. ok is false when the file cannot be statted; callers treat
// that the same as "no signal".
func (r *Repo) Mtime(path string) (mtime int64, ok bool) {
	return mtimeOf(filepath.Join(r.path, path))
}

// MtimeAbs is Mtime for paths already absolute (git control files).
func (r *Repo) MtimeAbs(path string) (mtime int64, ok bool) {
	if path == "" {
		return 0, false
	}
	return mtimeOf(path)
}

func mtimeOf(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	mod := info.ModTime()
	if mod.IsZero() {
		return 0, false
	}
	return mod.UnixNano(), true
}
