// Package farptr implements the 128-bit (file_id, offset) address used to
// reference blocks, nodes, and heap slots across files. It mirrors
// original_source/include/far_offset_ptr.hpp.
package farptr

import "objectdb/internal/binenc"
import "objectdb/internal/span"

// Size is the wire size of a FarPtr: two big-endian u64s.
const Size = 16

// FarPtr is an ordered pair (FileID, Offset). The zero value is the null
// pointer and, when used as a B-tree root, denotes an empty tree.
type FarPtr struct {
	FileID uint64
	Offset uint64
}

// Null is the zero far pointer.
var Null = FarPtr{}

// IsNull reports whether p is the null pointer.
func (p FarPtr) IsNull() bool {
	return p.FileID == 0 && p.Offset == 0
}

func (p FarPtr) Equal(other FarPtr) bool {
	return p.FileID == other.FileID && p.Offset == other.Offset
}

// Read decodes a FarPtr from it (file_id then offset, big-endian).
func Read(it span.Iterator) FarPtr {
	fileID := binenc.ReadUint64(it)
	offset := binenc.ReadUint64(it)
	return FarPtr{FileID: fileID, Offset: offset}
}

// Write encodes p to it.
func Write(it span.Iterator, p FarPtr) {
	binenc.WriteUint64(it, p.FileID)
	binenc.WriteUint64(it, p.Offset)
}

// Encode returns the 16-byte wire form of p.
func Encode(p FarPtr) []byte {
	buf := make([]byte, Size)
	it := span.New(buf)
	Write(it, p)
	return buf
}

// Decode parses a 16-byte wire form into a FarPtr.
func Decode(buf []byte) FarPtr {
	it := span.New(buf[:Size])
	return Read(it)
}
