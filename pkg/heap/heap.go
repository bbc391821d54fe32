// Package heap implements the fixed-size (256 B) slot allocator row traits
// fall back to when an entry's payload does not fit inline in a node, per
// spec.md §4.5. It threads a freelist through freed slots exactly the way
// the teacher's free list threads pointers through freed pages
// (duchm1606-godb/pkg/storage/freelist.go's LNode), generalized from
// whole-page granularity down to 256-byte slots.
package heap

import (
	"objectdb/pkg/alloc"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/objerr"
)

// SlotSize is the fixed size of every heap slot.
const SlotSize = 256

// slotsPerBlock is how many slots a 4 KiB block holds.
const slotsPerBlock = filecache.BlockSize / SlotSize

// Heap is a freelist of fixed-size slots, allocated in blocks through the
// block allocator. A Heap owns a single root pointer to the head of the
// freelist; callers that need the root to survive a process restart persist
// it themselves (for example in a reserved slot of an owning façade).
type Heap struct {
	cache *filecache.Cache
	alloc *alloc.Allocator
	root  farptr.FarPtr
}

// New creates a Heap with no persisted state: its freelist starts empty
// (root is null) until blocks are threaded onto it by Allocate.
func New(cache *filecache.Cache, allocator *alloc.Allocator) *Heap {
	return &Heap{cache: cache, alloc: allocator}
}

// Root returns the current freelist head, for callers that persist it.
func (h *Heap) Root() farptr.FarPtr { return h.root }

// SetRoot restores a previously-persisted freelist head.
func (h *Heap) SetRoot(root farptr.FarPtr) { h.root = root }

func slotOffset(base farptr.FarPtr, index int) uint64 {
	return base.Offset + uint64(index)*SlotSize
}

// nextPtr reads the trailing far pointer of a free slot.
func (h *Heap) nextPtr(slot farptr.FarPtr) (farptr.FarPtr, error) {
	buf := make([]byte, farptr.Size)
	if err := h.cache.ReadBytes(slot.FileID, slot.Offset+SlotSize-farptr.Size, buf); err != nil {
		return farptr.Null, err
	}
	return farptr.Decode(buf), nil
}

func (h *Heap) setNextPtr(slot, next farptr.FarPtr) error {
	return h.cache.WriteBytes(slot.FileID, slot.Offset+SlotSize-farptr.Size, farptr.Encode(next))
}

// Allocate returns a fresh far pointer to a 256-byte slot, threading a new
// block of 16 slots onto the freelist under transaction tx if the list is
// currently empty.
func (h *Heap) Allocate(tx uint64) (farptr.FarPtr, error) {
	if h.root.IsNull() {
		block, err := h.alloc.AllocateBlock(tx)
		if err != nil {
			return farptr.Null, err
		}
		// thread a freelist through the block's slots: slot i points at
		// slot i+1, the last slot terminates the chain with the null
		// pointer. The first slot is handed to the caller directly; the
		// freelist root becomes the second slot.
		for i := 1; i < slotsPerBlock-1; i++ {
			cur := farptr.FarPtr{FileID: block.FileID, Offset: slotOffset(block, i)}
			next := farptr.FarPtr{FileID: block.FileID, Offset: slotOffset(block, i+1)}
			if err := h.setNextPtr(cur, next); err != nil {
				return farptr.Null, err
			}
		}
		last := farptr.FarPtr{FileID: block.FileID, Offset: slotOffset(block, slotsPerBlock-1)}
		if err := h.setNextPtr(last, farptr.Null); err != nil {
			return farptr.Null, err
		}
		if slotsPerBlock > 1 {
			h.root = farptr.FarPtr{FileID: block.FileID, Offset: slotOffset(block, 1)}
		} else {
			h.root = farptr.Null
		}
		return farptr.FarPtr{FileID: block.FileID, Offset: slotOffset(block, 0)}, nil
	}

	slot := h.root
	next, err := h.nextPtr(slot)
	if err != nil {
		return farptr.Null, err
	}
	h.root = next
	return slot, nil
}

// Free relinks ptr onto the head of the freelist.
func (h *Heap) Free(ptr farptr.FarPtr) error {
	if err := h.setNextPtr(ptr, h.root); err != nil {
		return err
	}
	h.root = ptr
	return nil
}

// Read returns all SlotSize bytes of slot ptr, including the trailing
// region that holds the freelist link while the slot is free.
func (h *Heap) Read(ptr farptr.FarPtr) ([]byte, error) {
	buf := make([]byte, SlotSize)
	if err := h.cache.ReadBytes(ptr.FileID, ptr.Offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write stores data (at most SlotSize bytes) at the start of slot ptr. Free
// later overwrites the slot's trailing farptr.Size bytes with the freelist
// link.
func (h *Heap) Write(ptr farptr.FarPtr, data []byte) error {
	if len(data) > SlotSize {
		return objerr.New(objerr.InvalidArgument, "heap payload exceeds slot size")
	}
	return h.cache.WriteBytes(ptr.FileID, ptr.Offset, data)
}
