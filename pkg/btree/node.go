// Package btree implements the CoW ordered B-tree: node buffer layout,
// search, split/merge, and the tree-level cursor and mutation protocol, per
// spec.md §3/§4.1/§4.2. The header layout and direct-slice accessor style
// are grounded on duchm1606-godb/pkg/btree/node.go, generalized from that
// teacher's variable-length KV-with-offset-table layout to the spec's
// fixed-width entry array and big-endian header.
package btree

import (
	"objectdb/internal/binenc"
	"objectdb/internal/util"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/objerr"
	"objectdb/pkg/rowtraits"
)

// HeaderSize is the fixed node header length, per spec.md §3.
const HeaderSize = 16

const (
	txIDOffset    = 0
	flagsOffset   = 8
	countOffset   = 10
	keySizeOffset = 12
	valSizeOffset = 14
)

const flagLeaf = 1 << 0

// Node is an in-memory view of one on-disk node buffer.
type Node struct {
	buf []byte
}

// NewLeaf allocates a fresh, empty leaf node buffer stamped with tx.
func NewLeaf(tx uint64, keySize, valueSize uint16) *Node {
	return newNode(tx, true, keySize, valueSize)
}

// NewBranch allocates a fresh, empty branch node buffer stamped with tx.
// Branch values are always 16-byte far pointers.
func NewBranch(tx uint64, keySize uint16) *Node {
	return newNode(tx, false, keySize, farptr.Size)
}

func newNode(tx uint64, leaf bool, keySize, valueSize uint16) *Node {
	util.Assert(keySize > 0, "btree: key_size must be > 0")
	if leaf {
		util.Assert(valueSize > 0, "btree: leaf value_size must be > 0")
	} else {
		util.Assert(valueSize == farptr.Size, "btree: branch value_size must be 16")
	}
	n := &Node{buf: make([]byte, HeaderSize)}
	n.SetTransactionID(tx)
	n.setLeaf(leaf)
	binenc.PutUint16ToBytes(n.buf[keySizeOffset:], keySize)
	binenc.PutUint16ToBytes(n.buf[valSizeOffset:], valueSize)
	n.setEntryCount(0)
	return n
}

// Decode wraps an on-disk buffer without copying it. buf may be padded (for
// example a full 4 KiB block read from the cache); it is trimmed to the
// exact size the header implies, per invariant 2 of spec.md §8.
func Decode(buf []byte) (*Node, error) {
	if len(buf) < HeaderSize {
		return nil, objerr.New(objerr.Corruption, "btree: node buffer shorter than header")
	}
	n := &Node{buf: buf}
	want := int(HeaderSize) + int(n.EntryCount())*int(n.EntrySize())
	if want > len(buf) {
		return nil, objerr.New(objerr.Corruption, "btree: entry_count inconsistent with buffer size")
	}
	n.buf = buf[:want]
	return n, nil
}

// Bytes returns the node's serialized wire form.
func (n *Node) Bytes() []byte { return n.buf }

func (n *Node) TransactionID() uint64 {
	return binenc.ReadUint64FromBytes(n.buf[txIDOffset:])
}

func (n *Node) SetTransactionID(tx uint64) {
	binenc.PutUint64ToBytes(n.buf[txIDOffset:], tx)
}

func (n *Node) IsLeaf() bool {
	return binenc.ReadUint16FromBytes(n.buf[flagsOffset:])&flagLeaf != 0
}

func (n *Node) setLeaf(leaf bool) {
	var flags uint16
	if leaf {
		flags = flagLeaf
	}
	binenc.PutUint16ToBytes(n.buf[flagsOffset:], flags)
}

func (n *Node) EntryCount() uint16 {
	return binenc.ReadUint16FromBytes(n.buf[countOffset:])
}

func (n *Node) KeySize() uint16 {
	return binenc.ReadUint16FromBytes(n.buf[keySizeOffset:])
}

func (n *Node) ValueSize() uint16 {
	return binenc.ReadUint16FromBytes(n.buf[valSizeOffset:])
}

func (n *Node) EntrySize() uint16 {
	return n.KeySize() + n.ValueSize()
}

// Capacity is the maximum entry count a 4 KiB block can hold for this
// node's entry size.
func (n *Node) Capacity() uint16 {
	return uint16((filecache.BlockSize - HeaderSize) / int(n.EntrySize()))
}

// ShouldSplit reports whether the node's serialized size exceeds 4 KiB.
func (n *Node) ShouldSplit() bool {
	return len(n.buf) > filecache.BlockSize
}

// ShouldMerge reports whether the node is underfull.
func (n *Node) ShouldMerge() bool {
	return n.EntryCount() < n.Capacity()/2
}

// setEntryCount resizes the backing buffer to match the new entry count,
// per spec.md §4.2 ("setting entry_count resizes the backing buffer").
func (n *Node) setEntryCount(count uint16) {
	binenc.PutUint16ToBytes(n.buf[countOffset:], count)
	want := int(HeaderSize) + int(count)*int(n.EntrySize())
	if len(n.buf) < want {
		n.buf = append(n.buf, make([]byte, want-len(n.buf))...)
	} else {
		n.buf = n.buf[:want]
	}
}

func (n *Node) entryOffset(i int) int {
	return int(HeaderSize) + i*int(n.EntrySize())
}

// Entry returns the raw (key||value) bytes of the i'th entry.
func (n *Node) Entry(i int) []byte {
	util.Assert(i >= 0 && i < int(n.EntryCount()), "btree: entry index out of range")
	off := n.entryOffset(i)
	return n.buf[off : off+int(n.EntrySize())]
}

// Key returns the key bytes of the i'th entry.
func (n *Node) Key(i int) []byte {
	return n.Entry(i)[:n.KeySize()]
}

// Value returns the value bytes of the i'th entry.
func (n *Node) Value(i int) []byte {
	return n.Entry(i)[n.KeySize():]
}

// ChildPtr decodes the i'th branch entry's value as a far pointer.
func (n *Node) ChildPtr(i int) farptr.FarPtr {
	util.Assert(!n.IsLeaf(), "btree: ChildPtr on a leaf node")
	return farptr.Decode(n.Value(i))
}

// FindKey returns the insertion position of key under keyTraits' ordering
// and whether an equal key already occupies that position, per spec.md
// §4.2.
func (n *Node) FindKey(keyTraits rowtraits.DataTraits, key []byte) (position int, found bool) {
	count := int(n.EntryCount())
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		switch keyTraits.Compare(n.Key(mid), key) {
		case rowtraits.Less:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	if lo < count && keyTraits.Compare(n.Key(lo), key) == rowtraits.Equal {
		return lo, true
	}
	return lo, false
}

// InsertEntry grows the buffer by one entry at position, shifting later
// entries right.
func (n *Node) InsertEntry(position int, entry []byte) {
	util.Assert(len(entry) == int(n.EntrySize()), "btree: entry size mismatch")
	count := int(n.EntryCount())
	util.Assert(position >= 0 && position <= count, "btree: insert position out of range")
	n.setEntryCount(uint16(count + 1))
	entrySize := int(n.EntrySize())
	from := int(HeaderSize) + position*entrySize
	shiftLen := (count - position) * entrySize
	copy(n.buf[from+entrySize:from+entrySize+shiftLen], n.buf[from:from+shiftLen])
	copy(n.buf[from:from+entrySize], entry)
}

// UpdateEntry overwrites the entry at position in place.
func (n *Node) UpdateEntry(position int, entry []byte) {
	util.Assert(len(entry) == int(n.EntrySize()), "btree: entry size mismatch")
	copy(n.Entry(position), entry)
}

// RemoveKey shifts later entries left over position and shrinks the count.
func (n *Node) RemoveKey(position int) {
	count := int(n.EntryCount())
	util.Assert(position >= 0 && position < count, "btree: remove position out of range")
	entrySize := int(n.EntrySize())
	from := int(HeaderSize) + position*entrySize
	shiftLen := (count - position - 1) * entrySize
	copy(n.buf[from:from+shiftLen], n.buf[from+entrySize:from+entrySize+shiftLen])
	n.setEntryCount(uint16(count - 1))
}

// InsertBranchEntry inserts a (key, child) separator at position.
func (n *Node) InsertBranchEntry(position int, key []byte, child farptr.FarPtr) {
	entry := make([]byte, n.EntrySize())
	copy(entry, key)
	copy(entry[n.KeySize():], farptr.Encode(child))
	n.InsertEntry(position, entry)
}

// UpdateBranchEntry rewrites the child pointer at position, leaving the
// separator key unchanged.
func (n *Node) UpdateBranchEntry(position int, child farptr.FarPtr) {
	copy(n.Value(position), farptr.Encode(child))
}

// ResyncBranchEntry rewrites both the separator key and the child pointer
// at position. CoW rewriting a child can change the child's first key (an
// insertion of a new minimum key shifts what used to occupy slot 0), so
// propagation always resyncs the parent's separator rather than trusting it
// stayed put; for every case where the key in fact did not change this is
// simply a redundant rewrite.
func (n *Node) ResyncBranchEntry(position int, key []byte, child farptr.FarPtr) {
	entry := n.Entry(position)
	copy(entry[:n.KeySize()], key)
	copy(entry[n.KeySize():], farptr.Encode(child))
}

// Split moves entries [count/2, count) into other, which must share this
// node's flags and sizes, per spec.md §4.2.
func (n *Node) Split(other *Node) {
	count := int(n.EntryCount())
	mid := count / 2
	util.Assert(mid < count, "btree: split must move at least one entry")
	moved := count - mid
	other.setEntryCount(uint16(moved))
	copy(other.buf[HeaderSize:], n.buf[n.entryOffset(mid):n.entryOffset(count)])
	n.setEntryCount(uint16(mid))
}

// Merge appends every entry of other onto the end of n and empties other.
func (n *Node) Merge(other *Node) {
	count := int(n.EntryCount())
	otherCount := int(other.EntryCount())
	n.setEntryCount(uint16(count + otherCount))
	copy(n.buf[n.entryOffset(count):n.entryOffset(count+otherCount)], other.buf[HeaderSize:])
	other.setEntryCount(0)
}
