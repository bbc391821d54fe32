// Package objectdb bundles the cache, allocator, and heap into a single
// owning context and exposes tree handles over it, per design notes §9
// ("a systems-language implementation should thread a single owning
// context ... down the call graph explicitly"). It plays the role
// duchm1606-godb/pkg/storage.KV plays for the teacher's mmap-backed store,
// adapted from a single-file mmap handle to the spec's cache/allocator/heap
// trio addressed by far pointers.
package objectdb

import (
	"objectdb/pkg/alloc"
	"objectdb/pkg/btree"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/heap"
	"objectdb/pkg/rowtraits"
)

// Config holds the tunables an Open caller may override via Option.
type Config struct {
	fileCapacity  int
	blockCapacity int
}

// Option configures Open, following the functional-options idiom.
type Option func(*Config)

// WithFileCapacity overrides the LRU-bounded number of open file handles.
func WithFileCapacity(n int) Option {
	return func(c *Config) { c.fileCapacity = n }
}

// WithBlockCapacity overrides the LRU-bounded number of cached 4 KiB
// blocks.
func WithBlockCapacity(n int) Option {
	return func(c *Config) { c.blockCapacity = n }
}

// DB is the owning context: one cache, one allocator, one heap, shared by
// every tree opened against the same repository directory. Per spec.md §5
// it is unsafe for concurrent multi-goroutine use without external
// synchronization.
type DB struct {
	cache *filecache.Cache
	alloc *alloc.Allocator
	heap  *heap.Heap
}

// Open binds a DB to a repository directory, creating it if necessary.
func Open(dir string, opts ...Option) (*DB, error) {
	cfg := Config{fileCapacity: filecache.MaxOpenFiles, blockCapacity: filecache.MaxCachedBlocks}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := filecache.Open(dir,
		filecache.WithFileCapacity(cfg.fileCapacity),
		filecache.WithBlockCapacity(cfg.blockCapacity),
	)
	if err != nil {
		return nil, err
	}

	allocator := alloc.New(cache)
	h := heap.New(cache, allocator)
	root, err := allocator.SchemaRoot()
	if err != nil {
		cache.Close()
		return nil, err
	}
	h.SetRoot(root)

	return &DB{cache: cache, alloc: allocator, heap: h}, nil
}

// Close releases the cache's open file handles.
func (db *DB) Close() error {
	return db.cache.Close()
}

// Heap returns the shared heap, for row traits that spill large payloads
// out-of-band.
func (db *DB) Heap() *heap.Heap { return db.heap }

// CreateTransaction mints a fresh transaction ID for a writer to use across
// one or more tree mutations.
func (db *DB) CreateTransaction() (uint64, error) {
	return db.alloc.CreateTransaction()
}

// CurrentTransactionID returns the most recently minted transaction ID
// without minting a new one.
func (db *DB) CurrentTransactionID() (uint64, error) {
	return db.alloc.GetCurrentTransactionID()
}

// NewTree creates a fresh, empty tree handle over this DB's cache and
// allocator.
func (db *DB) NewTree(traits rowtraits.RowTraits, keySize, valueSize uint16) *btree.Tree {
	return btree.Open(farptr.Null, db.cache, db.alloc, traits, keySize, valueSize)
}

// OpenTree binds a tree handle to a previously captured root pointer
// (possibly from an older transaction's snapshot).
func (db *DB) OpenTree(root farptr.FarPtr, traits rowtraits.RowTraits, keySize, valueSize uint16) *btree.Tree {
	return btree.Open(root, db.cache, db.alloc, traits, keySize, valueSize)
}

// persistHeapRoot saves the heap's current freelist head into the reserved
// schema-root slot of file 0's metadata block, so it survives a reopen.
// Callers that allocate heap slots across a process lifetime should call
// this after each transaction they intend to keep.
func (db *DB) persistHeapRoot() error {
	return db.alloc.SetSchemaRoot(db.heap.Root())
}

// SyncHeapRoot exposes persistHeapRoot for callers managing their own
// commit points.
func (db *DB) SyncHeapRoot() error {
	return db.persistHeapRoot()
}
