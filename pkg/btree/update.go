package btree

import "objectdb/pkg/objerr"

// Update overwrites the entry at it's leaf position, per spec.md §4.1.
// Precondition: it positions at a found leaf slot; fails with KeyNotFound
// otherwise, and PastEnd if the iterator is ended.
func (t *Tree) Update(tx uint64, it *Iterator, entry []byte) (*Iterator, error) {
	if it.IsEnd() {
		return nil, objerr.New(objerr.PastEnd, "btree: update on ended iterator")
	}
	if uint16(len(entry)) != t.keySize+t.valSize {
		return nil, objerr.New(objerr.InvalidArgument, "btree: entry size does not match key_size+value_size")
	}
	leaf := it.Leaf()
	if !leaf.IsFound {
		return nil, objerr.New(objerr.KeyNotFound, "btree: key not found")
	}

	level := len(it.path) - 1
	node, err := t.readNode(leaf.NodeOffset)
	if err != nil {
		return nil, err
	}
	origTx := node.TransactionID()
	node.UpdateEntry(leaf.Position, entry)

	// A value-only rewrite never grows the node, so no split can occur
	// here, but the node's physical address may still change under CoW,
	// so every ancestor still needs its branch pointer resynced.
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
