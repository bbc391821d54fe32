package btree

import (
	"objectdb/pkg/farptr"
	"objectdb/pkg/objerr"
)

// PathLevel is one level of an iterator's root-to-leaf path, per spec.md
// §3 ("Iterator"): the node it names, the position indexed within it, the
// node's entry count at the time it was recorded, and whether that
// position is an exact key match.
type PathLevel struct {
	NodeOffset farptr.FarPtr
	Position   int
	Size       int
	IsFound    bool
}

// Iterator is a cursor into a Tree, carried as a path of PathLevel records.
// Iterators are invalidated by any successful mutation on the same tree;
// every mutation returns a freshly reconstructed Iterator instead, per
// design notes §9.
type Iterator struct {
	tree *Tree
	path []PathLevel
}

func clonePath(path []PathLevel) []PathLevel {
	out := make([]PathLevel, len(path))
	copy(out, path)
	return out
}

// IsEnd reports whether it is the end sentinel: every level past its last
// entry, and the leaf level not found.
func (it *Iterator) IsEnd() bool {
	if len(it.path) == 0 {
		return true
	}
	for _, lvl := range it.path {
		if lvl.Position < lvl.Size {
			return false
		}
	}
	return !it.path[len(it.path)-1].IsFound
}

// Leaf returns the iterator's deepest path level.
func (it *Iterator) Leaf() PathLevel { return it.path[len(it.path)-1] }

// End returns the sentinel iterator one past the last entry. For a
// non-empty tree this carries the rightmost root-to-leaf path with every
// level's position parked at its size, exactly what Next leaves behind when
// it steps off the last entry — so Prev(End()) can step back onto the last
// entry instead of bouncing straight back to PastEnd. For an empty tree (or
// if the rightmost path cannot be read) it falls back to the bare,
// path-less sentinel; IsEnd treats both forms identically.
func (t *Tree) End() *Iterator {
	if t.root.IsNull() {
		return &Iterator{tree: t}
	}
	path, err := t.descendRightmost(t.root)
	if err != nil {
		return &Iterator{tree: t}
	}
	for i := range path {
		path[i].Position = path[i].Size
	}
	path[len(path)-1].IsFound = false
	return &Iterator{tree: t, path: path}
}

// Begin returns an iterator at the smallest key, or the end iterator if the
// tree is empty.
func (t *Tree) Begin() (*Iterator, error) {
	if t.root.IsNull() {
		return t.End(), nil
	}
	path, err := t.descendLeftmost(t.root)
	if err != nil {
		return nil, err
	}
	leaf := &path[len(path)-1]
	leaf.IsFound = leaf.Size > 0
	return &Iterator{tree: t, path: path}, nil
}

func (t *Tree) descendLeftmost(root farptr.FarPtr) ([]PathLevel, error) {
	var path []PathLevel
	ptr := root
	for {
		node, err := t.readNode(ptr)
		if err != nil {
			return nil, err
		}
		path = append(path, PathLevel{NodeOffset: ptr, Position: 0, Size: int(node.EntryCount())})
		if node.IsLeaf() {
			return path, nil
		}
		ptr = node.ChildPtr(0)
	}
}

// descendRightmost builds the root-to-leaf path along the last child at
// every branch level, used by End to locate the rightmost leaf a Prev walk
// should land back on.
func (t *Tree) descendRightmost(root farptr.FarPtr) ([]PathLevel, error) {
	var path []PathLevel
	ptr := root
	for {
		node, err := t.readNode(ptr)
		if err != nil {
			return nil, err
		}
		size := int(node.EntryCount())
		path = append(path, PathLevel{NodeOffset: ptr, Position: size - 1, Size: size})
		if node.IsLeaf() {
			return path, nil
		}
		ptr = node.ChildPtr(size - 1)
	}
}

// SeekBegin returns the first iterator position whose key is >= key, per
// spec.md §4.1.
func (t *Tree) SeekBegin(key []byte) (*Iterator, error) {
	if t.root.IsNull() {
		return t.End(), nil
	}
	var path []PathLevel
	ptr := t.root
	for {
		node, err := t.readNode(ptr)
		if err != nil {
			return nil, err
		}
		pos, found := node.FindKey(t.traits.KeyTraits, key)
		size := int(node.EntryCount())
		if node.IsLeaf() {
			path = append(path, PathLevel{NodeOffset: ptr, Position: pos, Size: size, IsFound: found})
			return &Iterator{tree: t, path: path}, nil
		}
		descendPos := pos
		if !found && pos > 0 {
			descendPos = pos - 1
		}
		path = append(path, PathLevel{NodeOffset: ptr, Position: descendPos, Size: size, IsFound: found})
		ptr = node.ChildPtr(descendPos)
	}
}

// SeekEnd returns the first iterator position whose key is > key.
func (t *Tree) SeekEnd(key []byte) (*Iterator, error) {
	it, err := t.SeekBegin(key)
	if err != nil {
		return nil, err
	}
	if it.Leaf().IsFound {
		return t.Next(it)
	}
	return it, nil
}

// Next steps the iterator forward by one position.
func (t *Tree) Next(it *Iterator) (*Iterator, error) {
	if it.IsEnd() {
		return nil, objerr.New(objerr.PastEnd, "btree: next on ended iterator")
	}
	path := clonePath(it.path)
	level := len(path) - 1
	for level >= 0 {
		if path[level].Position+1 < path[level].Size {
			path[level].Position++
			break
		}
		level--
	}
	if level < 0 {
		for i := range path {
			path[i].Position = path[i].Size
		}
		path[len(path)-1].IsFound = false
		return &Iterator{tree: t, path: path}, nil
	}
	if err := t.descendLeftmostInto(path, level+1); err != nil {
		return nil, err
	}
	leaf := &path[len(path)-1]
	leaf.IsFound = leaf.Size > 0
	return &Iterator{tree: t, path: path}, nil
}

// Prev steps the iterator backward by one position. Per the decision
// recorded in SPEC_FULL.md's Open Questions, prev() from begin() returns
// the end iterator.
func (t *Tree) Prev(it *Iterator) (*Iterator, error) {
	if len(it.path) == 0 {
		return nil, objerr.New(objerr.PastEnd, "btree: prev on an empty tree")
	}
	path := clonePath(it.path)
	level := len(path) - 1
	for level >= 0 {
		if path[level].Position > 0 {
			path[level].Position--
			break
		}
		level--
	}
	if level < 0 {
		return t.End(), nil
	}
	if err := t.descendRightmostInto(path, level+1); err != nil {
		return nil, err
	}
	leaf := &path[len(path)-1]
	leaf.IsFound = leaf.Size > 0
	return &Iterator{tree: t, path: path}, nil
}

func (t *Tree) descendLeftmostInto(path []PathLevel, from int) error {
	for l := from; l < len(path); l++ {
		parent, err := t.readNode(path[l-1].NodeOffset)
		if err != nil {
			return err
		}
		childPtr := parent.ChildPtr(path[l-1].Position)
		child, err := t.readNode(childPtr)
		if err != nil {
			return err
		}
		path[l].NodeOffset = childPtr
		path[l].Size = int(child.EntryCount())
		path[l].Position = 0
	}
	return nil
}

func (t *Tree) descendRightmostInto(path []PathLevel, from int) error {
	for l := from; l < len(path); l++ {
		parent, err := t.readNode(path[l-1].NodeOffset)
		if err != nil {
			return err
		}
		childPtr := parent.ChildPtr(path[l-1].Position)
		child, err := t.readNode(childPtr)
		if err != nil {
			return err
		}
		path[l].NodeOffset = childPtr
		path[l].Size = int(child.EntryCount())
		path[l].Position = path[l].Size - 1
	}
	return nil
}

// GetEntry returns the full entry bytes at the iterator's current leaf
// position, projected through the tree's entry traits (which may
// dereference heap indirections).
func (t *Tree) GetEntry(it *Iterator) ([]byte, error) {
	leaf := it.Leaf()
	if leaf.Position >= leaf.Size {
		return nil, objerr.New(objerr.PastEnd, "btree: get_entry past end of leaf")
	}
	node, err := t.readNode(leaf.NodeOffset)
	if err != nil {
		return nil, err
	}
	return t.traits.EntryTraits.Project(node.Entry(leaf.Position)), nil
}
