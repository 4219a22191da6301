// Package tree organizes a flat changed-file list into the compacted
// hierarchy shown in the file panel.
package tree

import (
	"sort"
	"strings"

	"github.com/prdiff/prdiff/internal/git"
)

// Node is either a *Dir or a *File.
type Node interface {
	// Name is the display name: the last path segment for files, the
	// possibly compacted segment chain ("a/b/c") for directories.
	Name() string
}

type Dir struct {
	DirName  string
	Children []Node
}

func (d *Dir) Name() string { return d.DirName }

type File struct {
	Change git.FileChange
}

func (f *File) Name() string {
	if i := strings.LastIndexByte(f.Change.Path, '/'); i >= 0 {
		return f.Change.Path[i+1:]
	}
	return f.Change.Path
}

// Build constructs the sorted, compacted tree for a change set. Building
// twice from the same input yields structurally identical trees.
func Build(files []git.FileChange) []Node {
	var root []Node
	for _, file := range files {
		root = insert(root, strings.Split(file.Path, "/"), file)
	}
	sortNodes(root)
	Compact(root)
	return root
}

func insert(nodes []Node, parts []string, file git.FileChange) []Node {
	if len(parts) == 1 {
		return append(nodes, &File{Change: file})
	}
	for _, node := range nodes {
		if dir, ok := node.(*Dir); ok && dir.DirName == parts[0] {
			dir.Children = insert(dir.Children, parts[1:], file)
			return nodes
		}
	}
	dir := &Dir{DirName: parts[0]}
	dir.Children = insert(nil, parts[1:], file)
	return append(nodes, dir)
}

// sortNodes orders directories before files at every level, alphabetical
// within each group.
func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		_, iDir := nodes[i].(*Dir)
		_, jDir := nodes[j].(*Dir)
		if iDir != jDir {
			return iDir
		}
		return nodes[i].Name() < nodes[j].Name()
	})
	for _, node := range nodes {
		if dir, ok := node.(*Dir); ok {
			sortNodes(dir.Children)
		}
	}
}

// Compact collapses chains of single-child directories into one node, e.g.
// javascript/src/web/views becomes a single directory. A directory is merged
// with its sole child only when that child is itself a directory with exactly
// one child, so branch points (two or more children at either level) always
// survive as their own nodes.
func Compact(nodes []Node) {
	for _, node := range nodes {
		dir, ok := node.(*Dir)
		if !ok {
			continue
		}
		Compact(dir.Children)
		for len(dir.Children) == 1 {
			child, ok := dir.Children[0].(*Dir)
			if !ok || len(child.Children) != 1 {
				break
			}
			dir.DirName = dir.DirName + "/" + child.DirName
			dir.Children = child.Children
		}
	}
}

// ExpandAll records the path of every directory under nodes into set. Called
// with an empty set at startup this yields the default all-open state; called
// on old and new trees around a rebuild it provides the directory sets the
// expansion reconciliation works from.
func ExpandAll(nodes []Node, prefix string, set map[string]struct{}) {
	for _, node := range nodes {
		dir, ok := node.(*Dir)
		if !ok {
			continue
		}
		path := joinPath(prefix, dir.DirName)
		set[path] = struct{}{}
		ExpandAll(dir.Children, path, set)
	}
}

// Item is one row of the flattened tree.
type Item struct {
	Depth int
	// Path is the stable key: the slash-joined compacted chain for
	// directories, the repository-relative path for files.
	Path string
	Node Node
}

// Flatten walks the tree pre-order, descending only into expanded
// directories, and returns the visible rows.
func Flatten(nodes []Node, expanded map[string]struct{}) []Item {
	var out []Item
	collectVisible(nodes, "", 0, expanded, &out)
	return out
}

func collectVisible(nodes []Node, prefix string, depth int, expanded map[string]struct{}, out *[]Item) {
	for _, node := range nodes {
		var path string
		switch n := node.(type) {
		case *Dir:
			path = joinPath(prefix, n.DirName)
		case *File:
			path = n.Change.Path
		}
		*out = append(*out, Item{Depth: depth, Path: path, Node: node})
		if dir, ok := node.(*Dir); ok {
			if _, open := expanded[path]; open {
				collectVisible(dir.Children, path, depth+1, expanded, out)
			}
		}
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// NextExpansion reconciles the expansion set across a rebuild: directories
// present in both trees keep their old open/closed choice, directories that
// only exist in the new tree default to open.
func NextExpansion(expanded, oldDirs, newDirs map[string]struct{}) map[string]struct{} {
	next := make(map[string]struct{}, len(newDirs))
	for dir := range expanded {
		if _, ok := newDirs[dir]; ok {
			next[dir] = struct{}{}
		}
	}
	for dir := range newDirs {
		if _, ok := oldDirs[dir]; !ok {
			next[dir] = struct{}{}
		}
	}
	return next
}
