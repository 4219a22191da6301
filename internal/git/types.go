package git

// Status classifies how a file differs from the merge-base.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusAdded
	StatusModified
	StatusDeleted
	StatusRenamed
)

func (s Status) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusModified:
		return "modified"
	case StatusDeleted:
		return "deleted"
	case StatusRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Symbol returns the single-character marker used when listing files.
func (s Status) Symbol() string {
	switch s {
	case StatusAdded:
		return "+"
	case StatusModified:
		return "~"
	case StatusDeleted:
		return "-"
	case StatusRenamed:
		return ">"
	default:
		return "?"
	}
}

// FileChange is one changed file relative to the merge-base. Path is
// repository-relative and slash-separated; renames carry the new path only.
type FileChange struct {
	Path      string
	Status    Status
	Additions int
	Deletions int
}

// ChangeSet is the full changed-file list computed against MergeBase.
// It is replaced wholesale on every refresh, never patched in place.
type ChangeSet struct {
	MergeBase string
	Files     []FileChange
}

// Paths returns the set of paths present in the change set.
func (c ChangeSet) Paths() map[string]struct{} {
	paths := make(map[string]struct{}, len(c.Files))
	for _, f := range c.Files {
		paths[f.Path] = struct{}{}
	}
	return paths
}

// DiffSource records which side of the repository a cached diff came from.
type DiffSource uint8

const (
	SourceWorktree DiffSource = iota
	SourceIndex
	SourceUntracked
)

func (s DiffSource) String() string {
	switch s {
	case SourceIndex:
		return "index"
	case SourceUntracked:
		return "untracked"
	default:
		return "worktree"
	}
}
