package btree

import (
	"objectdb/pkg/farptr"
	"objectdb/pkg/objerr"
)

// Insert places entry at it's leaf position, per spec.md §4.1. Precondition:
// it positions at a non-found leaf slot; fails with DuplicateKey otherwise.
func (t *Tree) Insert(tx uint64, it *Iterator, entry []byte) (*Iterator, error) {
	if uint16(len(entry)) != t.keySize+t.valSize {
		return nil, objerr.New(objerr.InvalidArgument, "btree: entry size does not match key_size+value_size")
	}

	if len(it.path) == 0 {
		// empty tree: the first entry becomes a fresh leaf root directly,
		// there being no ancestor path to propagate through.
		leaf := NewLeaf(tx, t.keySize, t.valSize)
		leaf.InsertEntry(0, entry)
		ptr, err := t.cowRewrite(tx, farptr.Null, 0, leaf)
		if err != nil {
			return nil, err
		}
		t.root = ptr
		return t.freshIteratorFor(t.traits.KeyTraits.Project(entry))
	}

	leaf := it.Leaf()
	if leaf.IsFound {
		return nil, objerr.New(objerr.DuplicateKey, "btree: key already present")
	}

	level := len(it.path) - 1
	node, err := t.readNode(leaf.NodeOffset)
	if err != nil {
		return nil, err
	}
	origTx := node.TransactionID()
	node.InsertEntry(leaf.Position, entry)

	res, err := t.rewriteLevel(tx, leaf.NodeOffset, origTx, node)
	if err != nil {
		return nil, err
	}
	newRoot, err := t.propagateUp(tx, it.path, level, res)
	if err != nil {
		return nil, err
	}
	t.root = newRoot
	return t.freshIteratorFor(t.traits.KeyTraits.Project(entry))
}
