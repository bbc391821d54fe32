// Package binenc implements the subset of the big-endian fixed-width
// integer codec of the original design's binary_iterator.hpp that this
// module uses: u64 reads and writes through an internal/span.Iterator, so
// the same code serves in-memory buffers and file-backed iterators alike,
// and u16/u64 reads and writes directly against a []byte header region.
package binenc

import (
	"encoding/binary"

	"objectdb/internal/span"
)

// ReadUint64 and WriteUint64 read/write a big-endian u64 through a
// span.Iterator; pkg/farptr uses these to serialize the two halves of a
// far pointer over both an in-memory buffer and a filecache.Iterator.
func ReadUint64(it span.Iterator) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(it.ReadByte())
	}
	return v
}

func WriteUint64(it span.Iterator, v uint64) {
	for i := 7; i >= 0; i-- {
		it.WriteByte(byte(v >> (8 * uint(i))))
	}
}

// ReadUint16FromBytes, ReadUint64FromBytes and their Put* counterparts read
// and write big-endian fixed-width integers directly against a header
// region of an already-addressable []byte, the same direct-slice style the
// teacher's node headers use (duchm1606-godb/pkg/btree/node.go), for
// callers (node headers, allocator metadata) that hold a buffer rather
// than an Iterator.

func ReadUint16FromBytes(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func PutUint16ToBytes(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func ReadUint64FromBytes(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func PutUint64ToBytes(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}
