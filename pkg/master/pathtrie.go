package master

import (
	"sort"
	"strings"
	"sync"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// pathTrie is a directory-tree index over absolute normalized paths. It
// holds no file attributes beyond id/folder-ness; InodeStore is the
// owner of everything else. Locking is hand-over-hand down the tree,
// the way namespaceManager.lockParents/unlockParents walks nsTree nodes,
// generalized from "lock every ancestor for a chunk-count read" to
// "lock every ancestor while mutating or reading the trie".
type pathTrie struct {
	root *trieNode
}

type trieNode struct {
	sync.RWMutex
	name     string
	fileID   tachyon.FileID
	isFolder bool
	children map[string]*trieNode
}

func newPathTrie() *pathTrie {
	return &pathTrie{
		root: &trieNode{
			name:     "",
			isFolder: true,
			children: make(map[string]*trieNode),
		},
	}
}

// normalizePath rejects non-absolute paths and ".." segments; empty
// components (repeated or trailing slashes) are dropped.
func normalizePath(p tachyon.Path) ([]string, error) {
	s := string(p)
	if !strings.HasPrefix(s, "/") {
		return nil, tachyon.NewError(tachyon.InvalidPath, "path must be absolute: "+s)
	}
	var parts []string
	for _, c := range strings.Split(s, "/") {
		if c == "" {
			continue
		}
		if c == ".." {
			return nil, tachyon.NewError(tachyon.InvalidPath, "path must not contain ..: "+s)
		}
		parts = append(parts, c)
	}
	return parts, nil
}

// insert adds a leaf named by the final component of path, failing if it
// already exists or if an intermediate component is not a folder.
func (t *pathTrie) insert(path tachyon.Path, id tachyon.FileID, isFolder bool) error {
	parts, err := normalizePath(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return tachyon.NewError(tachyon.InvalidPath, "cannot insert the root")
	}

	cwd := t.root
	cwd.Lock()
	for _, name := range parts[:len(parts)-1] {
		child, ok := cwd.children[name]
		if !ok || !child.isFolder {
			cwd.Unlock()
			return tachyon.NewError(tachyon.InvalidPath, "intermediate component is not a folder: "+name)
		}
		child.Lock()
		cwd.Unlock()
		cwd = child
	}
	defer cwd.Unlock()

	leaf := parts[len(parts)-1]
	if _, ok := cwd.children[leaf]; ok {
		return tachyon.NewError(tachyon.FileAlreadyExist, string(path))
	}
	node := &trieNode{name: leaf, fileID: id, isFolder: isFolder}
	if isFolder {
		node.children = make(map[string]*trieNode)
	}
	cwd.children[leaf] = node
	return nil
}

// lookupNode walks to the node addressed by path, read-locking every
// ancestor it passes through and releasing them once locked a level
// deeper; it returns the node still read-locked (caller must unlock),
// or nil if absent.
func (t *pathTrie) lookupNode(parts []string) *trieNode {
	cwd := t.root
	cwd.RLock()
	for _, name := range parts {
		child, ok := cwd.children[name]
		if !ok {
			cwd.RUnlock()
			return nil
		}
		child.RLock()
		cwd.RUnlock()
		cwd = child
	}
	return cwd
}

func (t *pathTrie) lookup(path tachyon.Path) (tachyon.FileID, bool) {
	parts, err := normalizePath(path)
	if err != nil {
		return tachyon.NoFileID, false
	}
	if len(parts) == 0 {
		t.root.RLock()
		defer t.root.RUnlock()
		return t.root.fileID, true
	}
	n := t.lookupNode(parts)
	if n == nil {
		return tachyon.NoFileID, false
	}
	defer n.RUnlock()
	return n.fileID, true
}

// nameAndID is one entry of children's result, ordered lexicographically
// by Name.
type nameAndID struct {
	Name string
	ID   tachyon.FileID
}

func (t *pathTrie) children(path tachyon.Path) ([]nameAndID, error) {
	parts, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	var dir *trieNode
	if len(parts) == 0 {
		dir = t.root
		dir.RLock()
	} else {
		dir = t.lookupNode(parts)
		if dir == nil {
			return nil, tachyon.NewError(tachyon.FileDoesNotExist, string(path))
		}
	}
	defer dir.RUnlock()

	if !dir.isFolder {
		return nil, tachyon.NewError(tachyon.InvalidPath, string(path)+" is not a folder")
	}

	out := make([]nameAndID, 0, len(dir.children))
	for name, c := range dir.children {
		out = append(out, nameAndID{Name: name, ID: c.fileID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// remove deletes the subtree rooted at path.
func (t *pathTrie) remove(path tachyon.Path, recursive bool) error {
	parts, err := normalizePath(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return tachyon.NewError(tachyon.InvalidPath, "cannot remove the root")
	}

	parent := t.root
	parent.Lock()
	for _, name := range parts[:len(parts)-1] {
		child, ok := parent.children[name]
		if !ok {
			parent.Unlock()
			return tachyon.NewError(tachyon.FileDoesNotExist, string(path))
		}
		child.Lock()
		parent.Unlock()
		parent = child
	}
	defer parent.Unlock()

	leaf := parts[len(parts)-1]
	node, ok := parent.children[leaf]
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, string(path))
	}
	node.Lock()
	hasChildren := len(node.children) > 0
	node.Unlock()
	if hasChildren && !recursive {
		return tachyon.NewError(tachyon.InvalidPath, string(path)+" is not empty")
	}
	delete(parent.children, leaf)
	return nil
}

// rename moves the subtree at src to dst. It rejects a destination
// that is src itself or lies under src.
func (t *pathTrie) rename(src, dst tachyon.Path) error {
	srcParts, err := normalizePath(src)
	if err != nil {
		return err
	}
	dstParts, err := normalizePath(dst)
	if err != nil {
		return err
	}
	if len(srcParts) == 0 || len(dstParts) == 0 {
		return tachyon.NewError(tachyon.InvalidPath, "cannot rename the root")
	}
	if isUnder(srcParts, dstParts) {
		return tachyon.NewError(tachyon.InvalidPath, "destination is under source")
	}

	t.root.Lock()
	defer t.root.Unlock()

	srcParent := t.root
	for _, name := range srcParts[:len(srcParts)-1] {
		c, ok := srcParent.children[name]
		if !ok {
			return tachyon.NewError(tachyon.FileDoesNotExist, string(src))
		}
		srcParent = c
	}
	srcLeaf := srcParts[len(srcParts)-1]
	node, ok := srcParent.children[srcLeaf]
	if !ok {
		return tachyon.NewError(tachyon.FileDoesNotExist, string(src))
	}

	dstParent := t.root
	for _, name := range dstParts[:len(dstParts)-1] {
		c, ok := dstParent.children[name]
		if !ok || !c.isFolder {
			return tachyon.NewError(tachyon.InvalidPath, string(dst))
		}
		dstParent = c
	}
	dstLeaf := dstParts[len(dstParts)-1]
	if _, ok := dstParent.children[dstLeaf]; ok {
		return tachyon.NewError(tachyon.FileAlreadyExist, string(dst))
	}

	delete(srcParent.children, srcLeaf)
	node.name = dstLeaf
	dstParent.children[dstLeaf] = node
	return nil
}

// isUnder reports whether dst equals src or lies in src's subtree.
func isUnder(src, dst []string) bool {
	if len(dst) < len(src) {
		return false
	}
	for i, p := range src {
		if dst[i] != p {
			return false
		}
	}
	return true
}
