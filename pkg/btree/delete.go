package btree

import (
	"objectdb/pkg/farptr"
	"objectdb/pkg/objerr"
)

// Remove deletes the entry at it's leaf position, per spec.md §4.1.
// Precondition: it positions at a found leaf slot.
//
// It walks the iterator's path bottom-up, mirroring
// duchm1606-godb/pkg/btree/operations.go's shouldMerge/nodeDelete, but
// driven by the already-known path instead of a fresh recursive descent:
// a node that drops below half capacity pulls a neighbour through its
// parent and merges into the left partner, re-splitting if the merge
// overflows and otherwise dropping the absorbed sibling's parent slot, per
// the "merge" rule of spec.md §4.1.
func (t *Tree) Remove(tx uint64, it *Iterator) (*Iterator, error) {
	if it.IsEnd() {
		return nil, objerr.New(objerr.PastEnd, "btree: remove on ended iterator")
	}
	leaf := it.Leaf()
	if !leaf.IsFound {
		return nil, objerr.New(objerr.KeyNotFound, "btree: key not found")
	}

	path := it.path
	level := len(path) - 1
	node, err := t.readNode(leaf.NodeOffset)
	if err != nil {
		return nil, err
	}
	removedKey := append([]byte(nil), node.Key(leaf.Position)...)
	origTx := node.TransactionID()
	node.RemoveKey(leaf.Position)

	for {
		if level == 0 {
			switch {
			case node.EntryCount() == 0:
				t.root = farptr.Null
			case !node.IsLeaf() && node.EntryCount() == 1:
				// collapse a level: the root becomes its sole remaining
				// child, per spec.md §4.1's merge rule ("if the tree
				// collapses to an empty root, the root pointer is reset
				// to null" generalizes here to collapsing a height).
				t.root = node.ChildPtr(0)
			default:
				ptr, err := t.cowRewrite(tx, path[0].NodeOffset, origTx, node)
				if err != nil {
					return nil, err
				}
				t.root = ptr
			}
			return t.freshIteratorFor(removedKey)
		}

		parentIdx := level - 1
		parent, err := t.readNode(path[parentIdx].NodeOffset)
		if err != nil {
			return nil, err
		}
		parentOrigTx := parent.TransactionID()
		pos := path[parentIdx].Position

		if !node.ShouldMerge() {
			ptr, err := t.cowRewrite(tx, path[level].NodeOffset, origTx, node)
			if err != nil {
				return nil, err
			}
			parent.ResyncBranchEntry(pos, node.Key(0), ptr)
			node, origTx, level = parent, parentOrigTx, parentIdx
			continue
		}

		var leftNode, rightNode *Node
		var leftOldPtr farptr.FarPtr
		var leftOrigTx uint64
		var leftPos int
		haveSibling := true
		switch {
		case pos > 0:
			siblingPtr := parent.ChildPtr(pos - 1)
			sibling, err := t.readNode(siblingPtr)
			if err != nil {
				return nil, err
			}
			leftNode, rightNode = sibling, node
			leftOldPtr, leftOrigTx, leftPos = siblingPtr, sibling.TransactionID(), pos-1
		case pos+1 < int(parent.EntryCount()):
			siblingPtr := parent.ChildPtr(pos + 1)
			sibling, err := t.readNode(siblingPtr)
			if err != nil {
				return nil, err
			}
			leftNode, rightNode = node, sibling
			leftOldPtr, leftOrigTx, leftPos = path[level].NodeOffset, origTx, pos
		default:
			haveSibling = false
		}

		if !haveSibling {
			// no neighbour to merge with (a transient single-child
			// parent); tolerate the underfull node as-is.
			ptr, err := t.cowRewrite(tx, path[level].NodeOffset, origTx, node)
			if err != nil {
				return nil, err
			}
			parent.ResyncBranchEntry(pos, node.Key(0), ptr)
			node, origTx, level = parent, parentOrigTx, parentIdx
			continue
		}

		leftNode.Merge(rightNode)
		resplit := t.splitIfNeeded(tx, leftNode)
		leftPtr, err := t.cowRewrite(tx, leftOldPtr, leftOrigTx, leftNode)
		if err != nil {
			return nil, err
		}
		parent.ResyncBranchEntry(leftPos, leftNode.Key(0), leftPtr)
		parent.RemoveKey(leftPos + 1)
		if resplit != nil {
			resplitPtr, err := t.cowRewrite(tx, farptr.Null, 0, resplit)
			if err != nil {
				return nil, err
			}
			parent.InsertBranchEntry(leftPos+1, resplit.Key(0), resplitPtr)
		}

		node, origTx, level = parent, parentOrigTx, parentIdx
	}
}
