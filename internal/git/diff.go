package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FileDiff returns the patch for one path against mergeBase, together with
// the source it was taken from. The working tree wins; if it shows nothing
// the staged content is tried; an untracked file gets a synthesized new-file
// patch. Never fails: an unreadable path degrades to a single error line so
// the caller can still display something.
func (r *Repo) FileDiff(mergeBase, path string) (DiffSource, []string) {
	if out, err := r.run([]string{"diff", mergeBase, "--", path}, true, "git diff"); err == nil {
		if lines := splitDiffLines(out); len(lines) > 0 {
			return SourceWorktree, lines
		}
	}
	if out, err := r.run([]string{"diff", "--cached", mergeBase, "--", path}, true, "git diff"); err == nil {
		if lines := splitDiffLines(out); len(lines) > 0 {
			return SourceIndex, lines
		}
	}
	if lines, ok := r.untrackedDiff(path); ok {
		return SourceUntracked, lines
	}
	return SourceWorktree, []string{"Error getting diff"}
}

func splitDiffLines(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// untrackedDiff synthesizes a new-file patch for a path git knows nothing
// about yet.
func (r *Repo) untrackedDiff(path string) ([]string, bool) {
	data, err := os.ReadFile(filepath.Join(r.path, path))
	if err != nil {
		return nil, false
	}
	lines := []string{
		fmt.Sprintf("diff --git a/%s b/%s", path, path),
		"new file mode 100644",
	}
	switch {
	case len(data) == 0:
		lines = append(lines, "--- /dev/null", fmt.Sprintf("+++ b/%s", path), "@@ -0,0 +0,0 @@")
	case isBinary(data):
		lines = append(lines, "--- /dev/null", fmt.Sprintf("+++ b/%s", path),
			fmt.Sprintf("Binary file %s (%s)", path, formatSize(len(data))))
	default:
		body, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			B:        difflib.SplitLines(string(data)),
			FromFile: "/dev/null",
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil {
			return nil, false
		}
		lines = append(lines, splitDiffLines(body)...)
	}
	return lines, true
}

func formatSize(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d bytes", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
