// Package alloc implements the block allocator: minting transaction IDs
// and handing out fresh 4 KiB blocks stamped with the caller's
// transaction, per spec.md §4.3 and the on-disk layout in §6. It mirrors
// original_source/src/file_allocator.cpp's algorithm, generalized from the
// single-file-0 bump allocator there into the spec's per-transaction file
// partitioning (and the teacher's free_list/page-bump style in
// duchm1606-godb/pkg/storage/kv.go).
package alloc

import (
	"objectdb/internal/binenc"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/objerr"
)

// MetaFileID is the reserved file holding allocator metadata.
const MetaFileID = 0

// MaxTransactionFileSize bounds how large a single transaction's file may
// grow before the allocator advances to a fresh file.
const MaxTransactionFileSize = 10 << 20 // 10 MiB

const (
	transactionIDOffset    = 0
	reservedRootOffset     = transactionIDOffset + 8
	lastTransactionFileOff = reservedRootOffset + 16
	metaBlockSize          = lastTransactionFileOff + 8
)

// Allocator owns the monotonic transaction counter and the current
// destination file for new blocks, both persisted in file 0.
type Allocator struct {
	cache *filecache.Cache
}

// New wraps cache with allocator semantics.
func New(cache *filecache.Cache) *Allocator {
	return &Allocator{cache: cache}
}

// readMetaBlock loads the metadata block (1, already zero-extended if the
// file is short), initializing file 0 on first use.
func (a *Allocator) readMetaBlock() ([]byte, error) {
	size, err := a.cache.GetFileSize(MetaFileID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, metaBlockSize)
	if size == 0 {
		if err := a.cache.WriteBytes(MetaFileID, 0, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	if err := a.cache.ReadBytes(MetaFileID, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetCurrentTransactionID reads the most recently minted transaction ID,
// initializing file 0's metadata block to all-zero state if it does not
// yet exist.
func (a *Allocator) GetCurrentTransactionID() (uint64, error) {
	buf, err := a.readMetaBlock()
	if err != nil {
		return 0, err
	}
	return binenc.ReadUint64FromBytes(buf[transactionIDOffset:]), nil
}

// SchemaRoot returns the reserved far pointer a façade above the core may
// use as its own root (zero if unused).
func (a *Allocator) SchemaRoot() (farptr.FarPtr, error) {
	buf, err := a.readMetaBlock()
	if err != nil {
		return farptr.Null, err
	}
	return farptr.Decode(buf[reservedRootOffset:]), nil
}

// SetSchemaRoot persists the reserved schema-root far pointer.
func (a *Allocator) SetSchemaRoot(root farptr.FarPtr) error {
	return a.cache.WriteBytes(MetaFileID, reservedRootOffset, farptr.Encode(root))
}

// CreateTransaction mints and persists a new transaction ID.
func (a *Allocator) CreateTransaction() (uint64, error) {
	buf, err := a.readMetaBlock()
	if err != nil {
		return 0, err
	}
	id := binenc.ReadUint64FromBytes(buf[transactionIDOffset:]) + 1
	binenc.PutUint64ToBytes(buf[transactionIDOffset:], id)
	if err := a.cache.WriteBytes(MetaFileID, transactionIDOffset, buf[transactionIDOffset:transactionIDOffset+8]); err != nil {
		return 0, err
	}
	return id, nil
}

func (a *Allocator) lastTransactionFile() (uint64, error) {
	buf, err := a.readMetaBlock()
	if err != nil {
		return 0, err
	}
	return binenc.ReadUint64FromBytes(buf[lastTransactionFileOff:]), nil
}

func (a *Allocator) setLastTransactionFile(fileID uint64) error {
	buf := make([]byte, 8)
	binenc.PutUint64ToBytes(buf, fileID)
	return a.cache.WriteBytes(MetaFileID, lastTransactionFileOff, buf)
}

func (a *Allocator) fileStamp(fileID uint64) (uint64, error) {
	if fileID == 0 {
		return 0, nil
	}
	size, err := a.cache.GetFileSize(fileID)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, 8)
	if err := a.cache.ReadBytes(fileID, 0, buf); err != nil {
		return 0, err
	}
	return binenc.ReadUint64FromBytes(buf), nil
}

// AllocateBlock hands out a fresh 4 KiB block stamped with tx, implementing
// the algorithm of spec.md §4.3: reuse the current transaction file while
// its stamp matches tx and it has room, otherwise advance to a new file.
func (a *Allocator) AllocateBlock(tx uint64) (farptr.FarPtr, error) {
	lastFile, err := a.lastTransactionFile()
	if err != nil {
		return farptr.Null, err
	}

	stamp, err := a.fileStamp(lastFile)
	if err != nil {
		return farptr.Null, err
	}

	var size uint64
	if lastFile == 0 || stamp != tx {
		lastFile++
		if err := a.setLastTransactionFile(lastFile); err != nil {
			return farptr.Null, err
		}
		size = 0
	} else {
		size, err = a.cache.GetFileSize(lastFile)
		if err != nil {
			return farptr.Null, err
		}
		if size >= MaxTransactionFileSize {
			lastFile++
			if err := a.setLastTransactionFile(lastFile); err != nil {
				return farptr.Null, err
			}
			size = 0
		}
	}

	block := make([]byte, filecache.BlockSize)
	binenc.PutUint64ToBytes(block, tx)
	if err := a.cache.WriteBytes(lastFile, size, block); err != nil {
		return farptr.Null, objerr.Wrap(objerr.IoError, "allocate block", err)
	}
	return farptr.FarPtr{FileID: lastFile, Offset: size}, nil
}
