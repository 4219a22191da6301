package git

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ChangedFiles computes the full change set against mergeBase by merging
// three sources, in priority order: the working-tree diff, the index-only
// diff (changes staged but no longer in the working tree), and untracked
// files. A failing diff or ls-files invocation fails the whole call;
// unreadable untracked files degrade to zero-stat entries instead.
func (r *Repo) ChangedFiles(mergeBase string) ([]FileChange, error) {
	workFiles, err := r.diffStatusAndStats(mergeBase, false)
	if err != nil {
		return nil, err
	}
	indexFiles, err := r.diffStatusAndStats(mergeBase, true)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	files := make([]FileChange, 0, len(workFiles)+len(indexFiles))
	for _, entry := range workFiles {
		seen[entry.Path] = struct{}{}
		files = append(files, entry)
	}
	for _, entry := range indexFiles {
		if _, ok := seen[entry.Path]; ok {
			continue
		}
		seen[entry.Path] = struct{}{}
		files = append(files, entry)
	}
	tracked := len(files)

	untracked, err := r.run([]string{"ls-files", "-z", "--others", "--exclude-standard"}, false, "git ls-files")
	if err != nil {
		return nil, err
	}
	for _, path := range strings.Split(untracked, "\x00") {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		files = append(files, FileChange{
			Path:      path,
			Status:    StatusAdded,
			Additions: r.untrackedLineCount(path),
		})
	}
	slog.Debug("collected changed files",
		slog.String("merge_base", mergeBase),
		slog.Int("worktree", len(workFiles)),
		slog.Int("index_only", tracked-len(workFiles)),
		slog.Int("untracked", len(files)-tracked),
	)
	return files, nil
}

// untrackedLineCount counts lines in an untracked file. Binary or unreadable
// files count as zero rather than failing the collection.
func (r *Repo) untrackedLineCount(path string) int {
	data, err := os.ReadFile(filepath.Join(r.path, path))
	if err != nil || len(data) == 0 || isBinary(data) {
		return 0
	}
	lines := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		lines++
	}
	return lines
}

// isBinary reports whether content looks binary: a NUL byte in the first 8 KiB.
func isBinary(data []byte) bool {
	limit := min(len(data), 8192)
	return bytes.IndexByte(data[:limit], 0) >= 0
}

// diffStatusAndStats runs a single `git diff -z --raw --numstat` so one
// subprocess yields both the status classification and the line counts per
// path. With -z all fields are NUL-delimited, which keeps paths containing
// spaces, tabs or newlines unambiguous.
func (r *Repo) diffStatusAndStats(mergeBase string, cached bool) ([]FileChange, error) {
	args := []string{"diff", "-z", "--raw", "--numstat"}
	if cached {
		args = append(args, "--cached")
	}
	args = append(args, mergeBase)
	out, err := r.run(args, true, "git diff")
	if err != nil {
		return nil, fmt.Errorf("diff against %s: %w", mergeBase, err)
	}
	return parseDiffRecords(out), nil
}

// parseDiffRecords decodes the NUL-delimited mix of --raw and --numstat
// records:
//
//	:oldmode newmode oldhash newhash STATUS \0 path [\0 path]
//	added \t deleted \t path
//	added \t deleted \t \0 oldpath \0 newpath   (renames/copies)
//
// Rename and copy records carry the old and the new path; the entry and its
// stats are attributed to the new path, the old path is dropped. Binary files
// show "-" counts and yield zero stats.
func parseDiffRecords(out string) []FileChange {
	parts := strings.Split(out, "\x00")

	status := map[string]Status{}
	type lineStats struct{ add, del int }
	stats := map[string]lineStats{}
	var ordered []string

	record := func(path string, st Status) {
		if path == "" {
			return
		}
		if _, ok := status[path]; !ok {
			ordered = append(ordered, path)
		}
		status[path] = st
	}

	for i := 0; i < len(parts); i++ {
		part := parts[i]
		switch {
		case strings.HasPrefix(part, ":"):
			// Status token is the last space-separated field, e.g. "M",
			// "R100", "C085"; only its first character matters.
			fields := strings.Fields(part)
			token := "?"
			if len(fields) > 0 {
				token = fields[len(fields)-1]
			}
			switch token[0] {
			case 'R', 'C':
				// Two path fields follow: old then new.
				i += 2
				st := StatusRenamed
				if token[0] == 'C' {
					st = StatusAdded
				}
				if i < len(parts) {
					record(parts[i], st)
				}
			default:
				i++
				if i < len(parts) {
					record(parts[i], rawStatus(token[0]))
				}
			}
		case part != "" && (part[0] == '-' || (part[0] >= '0' && part[0] <= '9')):
			fields := strings.SplitN(part, "\t", 3)
			if len(fields) < 3 {
				continue
			}
			add, _ := strconv.Atoi(fields[0])
			del, _ := strconv.Atoi(fields[1])
			if fields[2] == "" {
				// Rename/copy: old and new paths follow as NUL parts.
				i += 2
				if i < len(parts) && parts[i] != "" {
					stats[parts[i]] = lineStats{add, del}
				}
				continue
			}
			stats[NormalizeRenamePath(fields[2])] = lineStats{add, del}
		}
	}

	entries := make([]FileChange, 0, len(ordered))
	for _, path := range ordered {
		st := stats[path]
		entries = append(entries, FileChange{
			Path:      path,
			Status:    status[path],
			Additions: st.add,
			Deletions: st.del,
		})
	}
	return entries
}

func rawStatus(c byte) Status {
	switch c {
	case 'A':
		return StatusAdded
	case 'M', 'T':
		return StatusModified
	case 'D':
		return StatusDeleted
	case 'R':
		return StatusRenamed
	case 'C':
		return StatusAdded
	default:
		return StatusUnknown
	}
}

// NormalizeRenamePath resolves the compact rename encodings git emits in
// numstat path fields to the new filename:
//
//	"dir/{old => new}/file"  ->  "dir/new/file"
//	"old.txt => new.txt"     ->  "new.txt"
//
// Plain paths pass through unchanged.
func NormalizeRenamePath(field string) string {
	open := strings.Index(field, "{")
	closing := strings.LastIndex(field, "}")
	if open >= 0 && closing > open {
		inner := field[open+1 : closing]
		if _, newPart, ok := strings.Cut(inner, " => "); ok {
			return field[:open] + newPart + field[closing+1:]
		}
	}
	if _, newPart, ok := strings.Cut(field, " => "); ok {
		return newPart
	}
	return field
}
