package git

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func rawRecord(status, path string) string {
	return ":100644 100644 1111111 2222222 " + status + "\x00" + path + "\x00"
}

func rawRenameRecord(status, oldPath, newPath string) string {
	return ":100644 100644 1111111 2222222 " + status + "\x00" + oldPath + "\x00" + newPath + "\x00"
}

func numstatRecord(add, del, path string) string {
	return add + "\t" + del + "\t" + path + "\x00"
}

func numstatRenameRecord(add, del, oldPath, newPath string) string {
	return add + "\t" + del + "\t\x00" + oldPath + "\x00" + newPath + "\x00"
}

func TestParseDiffRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []FileChange
	}{
		{name: "empty", in: "", want: []FileChange{}},
		{
			name: "modified_with_stats",
			in:   rawRecord("M", "a/b/c.rs") + numstatRecord("3", "1", "a/b/c.rs"),
			want: []FileChange{{Path: "a/b/c.rs", Status: StatusModified, Additions: 3, Deletions: 1}},
		},
		{
			name: "added_and_deleted",
			in: rawRecord("A", "new.txt") + rawRecord("D", "gone.txt") +
				numstatRecord("10", "0", "new.txt") + numstatRecord("0", "7", "gone.txt"),
			want: []FileChange{
				{Path: "new.txt", Status: StatusAdded, Additions: 10},
				{Path: "gone.txt", Status: StatusDeleted, Deletions: 7},
			},
		},
		{
			name: "type_change_is_modified",
			in:   rawRecord("T", "link") + numstatRecord("1", "1", "link"),
			want: []FileChange{{Path: "link", Status: StatusModified, Additions: 1, Deletions: 1}},
		},
		{
			name: "rename_attributed_to_new_path",
			in: rawRenameRecord("R100", "src/old.rs", "src/new.rs") +
				numstatRenameRecord("5", "2", "src/old.rs", "src/new.rs"),
			want: []FileChange{{Path: "src/new.rs", Status: StatusRenamed, Additions: 5, Deletions: 2}},
		},
		{
			name: "copy_counts_as_added",
			in: rawRenameRecord("C085", "a.txt", "b.txt") +
				numstatRenameRecord("4", "0", "a.txt", "b.txt"),
			want: []FileChange{{Path: "b.txt", Status: StatusAdded, Additions: 4}},
		},
		{
			name: "binary_has_zero_stats",
			in:   rawRecord("M", "img.png") + numstatRecord("-", "-", "img.png"),
			want: []FileChange{{Path: "img.png", Status: StatusModified}},
		},
		{
			name: "unknown_status_char",
			in:   rawRecord("X", "weird.txt") + numstatRecord("1", "0", "weird.txt"),
			want: []FileChange{{Path: "weird.txt", Status: StatusUnknown, Additions: 1}},
		},
		{
			name: "path_with_spaces_and_tabs",
			in:   rawRecord("M", "dir name/has\ttab.txt") + numstatRecord("2", "2", "dir name/has\ttab.txt"),
			want: []FileChange{{Path: "dir name/has\ttab.txt", Status: StatusModified, Additions: 2, Deletions: 2}},
		},
		{
			name: "order_follows_raw_records",
			in: rawRecord("M", "zz.txt") + rawRecord("M", "aa.txt") +
				numstatRecord("1", "0", "zz.txt") + numstatRecord("0", "1", "aa.txt"),
			want: []FileChange{
				{Path: "zz.txt", Status: StatusModified, Additions: 1},
				{Path: "aa.txt", Status: StatusModified, Deletions: 1},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseDiffRecords(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseDiffRecords() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRenamePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"src/{old => new}/file.rs", "src/new/file.rs"},
		{"old.txt => new.txt", "new.txt"},
		{"{old => new}", "new"},
		{"plain/path.go", "plain/path.go"},
		{"braces{without}arrow", "braces{without}arrow"},
	}
	for _, tt := range tests {
		if got := NormalizeRenamePath(tt.in); got != tt.want {
			t.Errorf("NormalizeRenamePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUntrackedLineCount(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := &Repo{path: dir}
	write := func(name string, data []byte) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("three.txt", []byte("a\nb\nc\n"))
	write("no-trailing.txt", []byte("a\nb"))
	write("empty.txt", nil)
	write("binary.bin", []byte{0x89, 0x50, 0x00, 0x47})

	tests := []struct {
		path string
		want int
	}{
		{"three.txt", 3},
		{"no-trailing.txt", 2},
		{"empty.txt", 0},
		{"binary.bin", 0},
		{"missing.txt", 0},
	}
	for _, tt := range tests {
		if got := r.untrackedLineCount(tt.path); got != tt.want {
			t.Errorf("untrackedLineCount(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	t.Parallel()

	if isBinary([]byte("plain text\n")) {
		t.Error("text flagged as binary")
	}
	if !isBinary([]byte{'a', 0x00, 'b'}) {
		t.Error("NUL byte not flagged as binary")
	}
	// NUL beyond the 8 KiB sniff window is not inspected.
	big := append(make([]byte, 0, 8193), strings.Repeat("x", 8192)...)
	big = append(big, 0x00)
	if isBinary(big) {
		t.Error("NUL outside sniff window flagged as binary")
	}
}
