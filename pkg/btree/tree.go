package btree

import (
	"objectdb/pkg/alloc"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/objerr"
	"objectdb/pkg/rowtraits"
)

// Tree is a CoW B-tree addressed by a far pointer to its current root, per
// spec.md §3/§4.1. The root pointer is owned by whoever holds the handle;
// intermediate nodes are owned by the file they live in. This is the Go
// analogue of duchm1606-godb/pkg/btree.BTree, generalized from that
// teacher's page-callback indirection (get/new/del) to direct use of the
// shared cache and allocator, per design notes §9's "owning context"
// guidance.
type Tree struct {
	root    farptr.FarPtr
	cache   *filecache.Cache
	alloc   *alloc.Allocator
	traits  rowtraits.RowTraits
	keySize uint16
	valSize uint16
}

// Open binds a Tree handle to an existing root (which may be the null
// pointer, meaning an empty tree).
func Open(root farptr.FarPtr, cache *filecache.Cache, allocator *alloc.Allocator, traits rowtraits.RowTraits, keySize, valueSize uint16) *Tree {
	return &Tree{root: root, cache: cache, alloc: allocator, traits: traits, keySize: keySize, valSize: valueSize}
}

// Root returns the tree's current root pointer.
func (t *Tree) Root() farptr.FarPtr { return t.root }

// SetRoot rebinds the handle to a different (e.g. previously captured)
// root, for readers inspecting an older snapshot.
func (t *Tree) SetRoot(root farptr.FarPtr) { t.root = root }

func (t *Tree) readNode(ptr farptr.FarPtr) (*Node, error) {
	block := make([]byte, filecache.BlockSize)
	if err := t.cache.ReadBytes(ptr.FileID, ptr.Offset, block); err != nil {
		return nil, objerr.Wrap(objerr.IoError, "btree: read node", err)
	}
	return Decode(block)
}

func (t *Tree) writeBlock(ptr farptr.FarPtr, node *Node) error {
	if err := t.cache.WriteBytes(ptr.FileID, ptr.Offset, node.Bytes()); err != nil {
		return objerr.Wrap(objerr.IoError, "btree: write node", err)
	}
	return nil
}

// cowRewrite implements the CoW destination choice of spec.md §4.1 step 2:
// in place if node's stamp equals tx, otherwise a freshly allocated block.
// origTx must be read before any mutation touches node's header.
func (t *Tree) cowRewrite(tx uint64, oldPtr farptr.FarPtr, origTx uint64, node *Node) (farptr.FarPtr, error) {
	var ptr farptr.FarPtr
	if !oldPtr.IsNull() && origTx == tx {
		ptr = oldPtr
	} else {
		newPtr, err := t.alloc.AllocateBlock(tx)
		if err != nil {
			return farptr.Null, err
		}
		ptr = newPtr
	}
	node.SetTransactionID(tx)
	if err := t.writeBlock(ptr, node); err != nil {
		return farptr.Null, err
	}
	return ptr, nil
}

// splitIfNeeded splits node in two when it exceeds 4 KiB, per spec.md
// §4.1/§4.2's Split.
func (t *Tree) splitIfNeeded(tx uint64, node *Node) *Node {
	if !node.ShouldSplit() {
		return nil
	}
	var sibling *Node
	if node.IsLeaf() {
		sibling = NewLeaf(tx, node.KeySize(), node.ValueSize())
	} else {
		sibling = NewBranch(tx, node.KeySize())
	}
	node.Split(sibling)
	return sibling
}

// rewriteResult is the outcome of CoW-rewriting (and possibly splitting)
// one level of a path.
type rewriteResult struct {
	node     *Node
	ptr      farptr.FarPtr
	sibling  *Node
	siblingP farptr.FarPtr
}

func (t *Tree) rewriteLevel(tx uint64, oldPtr farptr.FarPtr, origTx uint64, node *Node) (rewriteResult, error) {
	sibling := t.splitIfNeeded(tx, node)
	ptr, err := t.cowRewrite(tx, oldPtr, origTx, node)
	if err != nil {
		return rewriteResult{}, err
	}
	res := rewriteResult{node: node, ptr: ptr}
	if sibling != nil {
		sp, err := t.cowRewrite(tx, farptr.Null, 0, sibling)
		if err != nil {
			return rewriteResult{}, err
		}
		res.sibling = sibling
		res.siblingP = sp
	}
	return res, nil
}

// propagateUp walks path from level-1 up to the root, resyncing each
// ancestor's branch entry to the freshly rewritten child (and its sibling,
// if the child split), CoW-rewriting every ancestor along the way. It
// returns the tree's new root pointer.
func (t *Tree) propagateUp(tx uint64, path []PathLevel, level int, res rewriteResult) (farptr.FarPtr, error) {
	for level > 0 {
		parentIdx := level - 1
		parent, err := t.readNode(path[parentIdx].NodeOffset)
		if err != nil {
			return farptr.Null, err
		}
		origTx := parent.TransactionID()
		pos := path[parentIdx].Position
		parent.ResyncBranchEntry(pos, res.node.Key(0), res.ptr)
		if res.sibling != nil {
			parent.InsertBranchEntry(pos+1, res.sibling.Key(0), res.siblingP)
		}
		res, err = t.rewriteLevel(tx, path[parentIdx].NodeOffset, origTx, parent)
		if err != nil {
			return farptr.Null, err
		}
		level = parentIdx
	}
	if res.sibling != nil {
		newRoot := NewBranch(tx, t.keySize)
		newRoot.InsertBranchEntry(0, res.node.Key(0), res.ptr)
		newRoot.InsertBranchEntry(1, res.sibling.Key(0), res.siblingP)
		rootPtr, err := t.cowRewrite(tx, farptr.Null, 0, newRoot)
		if err != nil {
			return farptr.Null, err
		}
		return rootPtr, nil
	}
	return res.ptr, nil
}

// freshIteratorFor re-derives the root-to-leaf path for key, used after an
// operation completes to hand the caller a fresh iterator per design notes
// §9's "CoW iterator invalidation".
func (t *Tree) freshIteratorFor(key []byte) (*Iterator, error) {
	return t.SeekBegin(key)
}

// Get is a convenience read that does not require the caller to manage an
// iterator.
func (t *Tree) Get(key []byte) ([]byte, error) {
	it, err := t.SeekBegin(key)
	if err != nil {
		return nil, err
	}
	if !it.Leaf().IsFound {
		return nil, objerr.New(objerr.KeyNotFound, "btree: key not found")
	}
	return t.GetEntry(it)
}

// Upsert seeks key and either inserts or updates entry.
func (t *Tree) Upsert(tx uint64, entry []byte) (*Iterator, error) {
	key := t.traits.KeyTraits.Project(entry)
	it, err := t.SeekBegin(key)
	if err != nil {
		return nil, err
	}
	if len(it.path) > 0 && it.Leaf().IsFound {
		return t.Update(tx, it, entry)
	}
	return t.Insert(tx, it, entry)
}
