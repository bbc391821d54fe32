// Package rowtraits implements the projection/comparison abstraction that
// binds opaque entry bytes to key, value, and whole-entry views, per
// spec.md §4.6. It generalizes original_source/include/table_row_traits.hpp
// and btree_row_traits.hpp's dynamic-dispatch column hierarchy
// (field_data_traits / int32_field / uint32_field / span_field /
// entry_data_traits / reference_data_traits) into a small closed set of
// column kinds plus a composite projection, per design notes §9's
// suggestion that the B-tree only needs a comparator and three sizes.
package rowtraits

import (
	"bytes"

	"objectdb/internal/util"
	"objectdb/pkg/farptr"
	"objectdb/pkg/heap"
)

// Ordering is the three-way comparison result Compare returns.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// DataTraits is one of the three "data traits" a RowTraits exposes: key
// traits, value traits, or whole-entry traits.
type DataTraits interface {
	// Compare orders two key-sized byte slices. Meaningful for key traits;
	// value and entry traits may implement it as a byte-wise default.
	Compare(a, b []byte) Ordering
	// Project materializes the projection from a raw entry, dereferencing
	// heap indirections if the underlying column requires it.
	Project(entry []byte) []byte
	// Size returns the fixed projected length.
	Size() uint32
}

// FieldKind is the closed set of primitive column kinds a composite
// projection is built from.
type FieldKind int

const (
	FieldSpan FieldKind = iota
	FieldUint32
	FieldInt32
)

// column is one primitive field's position and shape within the full entry.
type column struct {
	kind   FieldKind
	offset uint32
	length uint32
}

func (c column) size() uint32 {
	if c.kind == FieldSpan {
		return c.length
	}
	return 4
}

// Layout describes the full entry as an ordered sequence of primitive
// columns, the way table_row_traits_builder enumerates fields before
// carving out key/value subsets.
type Layout struct {
	columns []column
	total   uint32
}

// Builder enumerates fields in entry order and records which subset forms
// the key, mirroring table_row_traits_builder.
type Builder struct {
	columns []column
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddSpanField declares a fixed-length byte-string column, returning its
// index for use in CompositeRowTraits or NewProjection.
func (b *Builder) AddSpanField(length uint32) int {
	return b.add(column{kind: FieldSpan, length: length})
}

// AddUint32Field declares an unsigned 32-bit column.
func (b *Builder) AddUint32Field() int {
	return b.add(column{kind: FieldUint32})
}

// AddInt32Field declares a signed 32-bit column.
func (b *Builder) AddInt32Field() int {
	return b.add(column{kind: FieldInt32})
}

func (b *Builder) add(c column) int {
	b.columns = append(b.columns, c)
	return len(b.columns) - 1
}

// Build finalizes the layout and computes each column's offset.
func (b *Builder) Build() *Layout {
	layout := &Layout{columns: make([]column, len(b.columns))}
	var offset uint32
	for i, c := range b.columns {
		c.offset = offset
		layout.columns[i] = c
		offset += c.size()
	}
	layout.total = offset
	return layout
}

// Size is the full entry's projected length.
func (l *Layout) Size() uint32 { return l.total }

// Projection selects a subset of a Layout's columns, in the order they
// appear in the full entry, and projects/compares just that subset — the
// Go analogue of reference_data_traits.
type Projection struct {
	layout  *Layout
	indices []int
	size    uint32
}

// NewProjection builds a Projection over the columns at the given indices
// (which must be in full-entry order; Builder field indices already are).
func NewProjection(layout *Layout, indices []int) *Projection {
	p := &Projection{layout: layout, indices: append([]int(nil), indices...)}
	for _, idx := range indices {
		p.size += layout.columns[idx].size()
	}
	return p
}

func (p *Projection) Size() uint32 { return p.size }

// Project extracts and concatenates the selected columns' raw bytes from a
// full entry.
func (p *Projection) Project(entry []byte) []byte {
	out := make([]byte, 0, p.size)
	for _, idx := range p.indices {
		c := p.layout.columns[idx]
		util.Assert(c.offset+c.size() <= uint32(len(entry)), "rowtraits: column out of range")
		out = append(out, entry[c.offset:c.offset+c.size()]...)
	}
	return out
}

// Compare orders two already-projected byte slices (as returned by
// Project) column by column, using each column's native ordering: unsigned
// 32-bit columns compare as big-endian bytes (which already orders
// correctly), signed 32-bit columns flip the sign bit before the byte
// compare, and span columns compare lexicographically.
func (p *Projection) Compare(a, b []byte) Ordering {
	var off uint32
	for _, idx := range p.indices {
		c := p.layout.columns[idx]
		sz := c.size()
		av := a[off : off+sz]
		bv := b[off : off+sz]
		var cmp int
		switch c.kind {
		case FieldInt32:
			cmp = compareInt32Bytes(av, bv)
		default: // FieldUint32, FieldSpan
			cmp = bytes.Compare(av, bv)
		}
		if cmp != 0 {
			return toOrdering(cmp)
		}
		off += sz
	}
	return Equal
}

func compareInt32Bytes(a, b []byte) int {
	af := flipSign(a)
	bf := flipSign(b)
	return bytes.Compare(af, bf)
}

func flipSign(v []byte) []byte {
	out := append([]byte(nil), v...)
	out[0] ^= 0x80
	return out
}

func toOrdering(cmp int) Ordering {
	switch {
	case cmp < 0:
		return Less
	case cmp > 0:
		return Greater
	default:
		return Equal
	}
}

// RowTraits bundles the key, value, and entry DataTraits for one tree, the
// Go analogue of btree_row_traits.
type RowTraits struct {
	KeyTraits   DataTraits
	ValueTraits DataTraits
	EntryTraits DataTraits
}

// CompositeRowTraits builds a RowTraits from a Layout and which column
// indices form the key; every other column (in entry order) forms the
// value, mirroring table_row_traits's constructor contract.
func CompositeRowTraits(layout *Layout, keyIndices []int) RowTraits {
	keySet := make(map[int]bool, len(keyIndices))
	for _, idx := range keyIndices {
		keySet[idx] = true
	}
	var valueIndices []int
	var allIndices []int
	for i := range layout.columns {
		allIndices = append(allIndices, i)
		if !keySet[i] {
			valueIndices = append(valueIndices, i)
		}
	}
	return RowTraits{
		KeyTraits:   NewProjection(layout, keyIndices),
		ValueTraits: NewProjection(layout, valueIndices),
		EntryTraits: NewProjection(layout, allIndices),
	}
}

// HeapIndirect wraps an inner DataTraits whose raw entry bytes are a 16-byte
// far pointer into a heap.Heap rather than the payload itself: Project
// dereferences the heap slot before delegating to the inner traits. This is
// the "row traits consume the heap directly for their indirection" path
// spec.md §4.5 describes for payloads that do not fit inline.
type HeapIndirect struct {
	Heap  *heap.Heap
	Inner DataTraits
}

func (h HeapIndirect) Size() uint32 { return h.Inner.Size() }

// Project dereferences entry as a far pointer and projects through Inner.
// DataTraits has no error channel, so a heap read failure here — a dangling
// or corrupt far pointer — is an internal invariant violation, not a
// recoverable condition a caller could branch on; it asserts rather than
// returning an empty projection that would silently mis-compare.
func (h HeapIndirect) Project(entry []byte) []byte {
	ptr := farptr.Decode(entry)
	slot, err := h.Heap.Read(ptr)
	util.Assert(err == nil, "rowtraits: heap read failed for indirected entry")
	return h.Inner.Project(slot)
}

func (h HeapIndirect) Compare(a, b []byte) Ordering {
	return h.Inner.Compare(h.Project(a), h.Project(b))
}
