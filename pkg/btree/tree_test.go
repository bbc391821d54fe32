package btree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"objectdb/pkg/alloc"
	"objectdb/pkg/farptr"
	"objectdb/pkg/filecache"
	"objectdb/pkg/objerr"
	"objectdb/pkg/rowtraits"
)

type treeFixture struct {
	tree    *Tree
	alloc   *alloc.Allocator
	traits  rowtraits.RowTraits
	keySize uint16
	valSize uint16
}

func newFixture(t *testing.T, valueSize uint16) *treeFixture {
	t.Helper()
	cache, err := filecache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	a := alloc.New(cache)

	b := rowtraits.NewBuilder()
	keyIdx := b.AddUint32Field()
	b.AddSpanField(uint32(valueSize))
	layout := b.Build()
	traits := rowtraits.CompositeRowTraits(layout, []int{keyIdx})

	tree := Open(farptr.Null, cache, a, traits, 4, valueSize)
	return &treeFixture{tree: tree, alloc: a, traits: traits, keySize: 4, valSize: valueSize}
}

func (f *treeFixture) entry(key uint32, fill byte) []byte {
	entry := make([]byte, int(f.keySize)+int(f.valSize))
	binary.BigEndian.PutUint32(entry, key)
	for i := int(f.keySize); i < len(entry); i++ {
		entry[i] = fill
	}
	return entry
}

func (f *treeFixture) newTx(t *testing.T) uint64 {
	t.Helper()
	tx, err := f.alloc.CreateTransaction()
	require.NoError(t, err)
	return tx
}

func keyOf(entry []byte) uint32 { return binary.BigEndian.Uint32(entry) }

func TestInsertIntoEmptyTreeThenSeek(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)

	it, err := f.tree.SeekBegin(f.entry(1, 0)[:4])
	require.NoError(t, err)
	it, err = f.tree.Insert(tx, it, f.entry(1, 'a'))
	require.NoError(t, err)
	require.True(t, it.Leaf().IsFound)

	got, err := f.tree.GetEntry(it)
	require.NoError(t, err)
	require.Equal(t, f.entry(1, 'a'), got)
}

func TestInsertDuplicateFails(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)

	it, err := f.tree.SeekBegin(f.entry(1, 0)[:4])
	require.NoError(t, err)
	_, err = f.tree.Insert(tx, it, f.entry(1, 'a'))
	require.NoError(t, err)

	it, err = f.tree.SeekBegin(f.entry(1, 0)[:4])
	require.NoError(t, err)
	_, err = f.tree.Insert(tx, it, f.entry(1, 'b'))
	require.Error(t, err)
	require.True(t, objerr.Of(err, objerr.DuplicateKey))
}

func TestOrderedScanOf22Keys(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)

	keys := make([]uint32, 0, 22)
	for c1 := byte('a'); c1 <= 'v'; c1++ {
		key := uint32(c1)<<8 | uint32(c1)
		keys = append(keys, key)
	}
	for _, k := range keys {
		_, err := f.tree.Upsert(tx, f.entry(k, byte(k)))
		require.NoError(t, err)
	}

	it, err := f.tree.Begin()
	require.NoError(t, err)
	var seen []uint32
	for !it.IsEnd() {
		entry, err := f.tree.GetEntry(it)
		require.NoError(t, err)
		seen = append(seen, keyOf(entry))
		it, err = f.tree.Next(it)
		require.NoError(t, err)
	}
	require.True(t, it.IsEnd())

	require.Len(t, seen, len(keys))
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "scan must be strictly ascending")
	}
}

func insertSequential(t *testing.T, f *treeFixture, tx uint64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.tree.Upsert(tx, f.entry(uint32(i), byte(i)))
		require.NoError(t, err)
	}
}

func countEntries(t *testing.T, f *treeFixture) int {
	t.Helper()
	it, err := f.tree.Begin()
	require.NoError(t, err)
	count := 0
	for !it.IsEnd() {
		count++
		it, err = f.tree.Next(it)
		require.NoError(t, err)
	}
	return count
}

func TestDeleteMiddleKey(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 22)

	it, err := f.tree.SeekBegin(f.entry(5, 0)[:4])
	require.NoError(t, err)
	require.True(t, it.Leaf().IsFound)
	_, err = f.tree.Remove(tx, it)
	require.NoError(t, err)

	it, err = f.tree.SeekBegin(f.entry(5, 0)[:4])
	require.NoError(t, err)
	require.False(t, it.Leaf().IsFound)

	it, err = f.tree.SeekBegin(f.entry(6, 0)[:4])
	require.NoError(t, err)
	require.True(t, it.Leaf().IsFound)

	require.Equal(t, 21, countEntries(t, f))
}

func TestForcedSplitWideRows(t *testing.T) {
	cache, err := filecache.Open(t.TempDir())
	require.NoError(t, err)
	defer cache.Close()
	a := alloc.New(cache)

	b := rowtraits.NewBuilder()
	keyIdx := b.AddUint32Field()
	b.AddSpanField(726) // key_size 4 + value_size 726 = 730, per spec.md scenario 4
	layout := b.Build()
	traits := rowtraits.CompositeRowTraits(layout, []int{keyIdx})

	tree := Open(farptr.Null, cache, a, traits, 4, 726)
	tx, err := a.CreateTransaction()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		entry := make([]byte, 730)
		binary.BigEndian.PutUint32(entry, uint32(i))
		entry[4] = byte(i % 10)
		_, err := tree.Upsert(tx, entry)
		require.NoError(t, err)
	}

	root, err := tree.readNode(tree.Root())
	require.NoError(t, err)
	require.False(t, root.IsLeaf(), "root must become a branch node after forced splits")

	maxLeafEntries := uint16((4096 - 16) / 730)
	var walk func(ptr farptr.FarPtr)
	walk = func(ptr farptr.FarPtr) {
		node, err := tree.readNode(ptr)
		require.NoError(t, err)
		if node.IsLeaf() {
			require.LessOrEqual(t, node.EntryCount(), maxLeafEntries)
			return
		}
		for i := 0; i < int(node.EntryCount()); i++ {
			walk(node.ChildPtr(i))
		}
	}
	walk(tree.Root())
}

func TestCoWAcrossTransactionsIsolatesOldRoot(t *testing.T) {
	f := newFixture(t, 8)
	tx1 := f.newTx(t)
	insertSequential(t, f, tx1, 100)
	rootT1 := f.tree.Root()

	tx2 := f.newTx(t)
	it, err := f.tree.SeekBegin(f.entry(42, 0)[:4])
	require.NoError(t, err)
	require.True(t, it.Leaf().IsFound)
	_, err = f.tree.Update(tx2, it, f.entry(42, 'Z'))
	require.NoError(t, err)

	liveIt, err := f.tree.SeekBegin(f.entry(42, 0)[:4])
	require.NoError(t, err)
	liveEntry, err := f.tree.GetEntry(liveIt)
	require.NoError(t, err)
	require.Equal(t, byte('Z'), liveEntry[4])

	oldTree := Open(rootT1, f.tree.cache, f.alloc, f.traits, f.keySize, f.valSize)
	oldIt, err := oldTree.SeekBegin(f.entry(42, 0)[:4])
	require.NoError(t, err)
	oldEntry, err := oldTree.GetEntry(oldIt)
	require.NoError(t, err)
	require.Equal(t, byte(42), oldEntry[4], "the captured old root must still resolve to the pre-update value")
}

func TestMassDeleteEmptiesTree(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 100)

	for i := 0; i < 100; i++ {
		it, err := f.tree.SeekBegin(f.entry(uint32(i), 0)[:4])
		require.NoError(t, err)
		require.Truef(t, it.Leaf().IsFound, "key %d must be found before removal", i)
		_, err = f.tree.Remove(tx, it)
		require.NoError(t, err)
	}

	require.True(t, f.tree.Root().IsNull())
	begin, err := f.tree.Begin()
	require.NoError(t, err)
	require.True(t, begin.IsEnd())
	end := f.tree.End()
	require.True(t, end.IsEnd())
}

func TestSeekBeginOnEmptyTreeReturnsEnd(t *testing.T) {
	f := newFixture(t, 8)
	it, err := f.tree.SeekBegin(f.entry(1, 0)[:4])
	require.NoError(t, err)
	require.True(t, it.IsEnd())
}

func TestPrevFromBeginReturnsEnd(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 5)

	begin, err := f.tree.Begin()
	require.NoError(t, err)
	prev, err := f.tree.Prev(begin)
	require.NoError(t, err)
	require.True(t, prev.IsEnd())
}

func TestPrevFromEndReturnsLastEntry(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 5)

	end := f.tree.End()
	prev, err := f.tree.Prev(end)
	require.NoError(t, err)
	require.False(t, prev.IsEnd())
	entry, err := f.tree.GetEntry(prev)
	require.NoError(t, err)
	require.Equal(t, uint32(4), keyOf(entry))
}

func TestUpdatePastEndFails(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	end := f.tree.End()
	_, err := f.tree.Update(tx, end, f.entry(1, 'a'))
	require.Error(t, err)
	require.True(t, objerr.Of(err, objerr.PastEnd))
}

func TestRemovePastEndFails(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	end := f.tree.End()
	_, err := f.tree.Remove(tx, end)
	require.Error(t, err)
	require.True(t, objerr.Of(err, objerr.PastEnd))
}

func TestUpsertThenUpsertAgainIsEquivalentToSingleSecondUpsert(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)

	_, err := f.tree.Upsert(tx, f.entry(1, 'a'))
	require.NoError(t, err)
	it, err := f.tree.Upsert(tx, f.entry(1, 'b'))
	require.NoError(t, err)

	entry, err := f.tree.GetEntry(it)
	require.NoError(t, err)
	require.Equal(t, f.entry(1, 'b'), entry)
	require.Equal(t, 1, countEntries(t, f))
}

func TestInsertRemoveRestoresTree(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 10)
	before := countEntries(t, f)

	it, err := f.tree.SeekBegin(f.entry(50, 0)[:4])
	require.NoError(t, err)
	require.False(t, it.Leaf().IsFound)
	it, err = f.tree.Insert(tx, it, f.entry(50, 'x'))
	require.NoError(t, err)
	it, err = f.tree.SeekBegin(f.entry(50, 0)[:4])
	require.NoError(t, err)
	_, err = f.tree.Remove(tx, it)
	require.NoError(t, err)

	require.Equal(t, before, countEntries(t, f))
	after, err := f.tree.SeekBegin(f.entry(50, 0)[:4])
	require.NoError(t, err)
	require.False(t, after.Leaf().IsFound)
}

func TestSplitAndMergeOverLargerTreeRemainsOrdered(t *testing.T) {
	// 730-byte entries: at most 5 per leaf, so 200 inserts split into many
	// leaves and the removals below merge them back together.
	f := newFixture(t, 726)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 200)
	require.Equal(t, 200, countEntries(t, f))

	for i := 0; i < 150; i++ {
		it, err := f.tree.SeekBegin(f.entry(uint32(i), 0)[:4])
		require.NoError(t, err)
		require.True(t, it.Leaf().IsFound)
		_, err = f.tree.Remove(tx, it)
		require.NoError(t, err)
	}
	require.Equal(t, 50, countEntries(t, f))

	it, err := f.tree.Begin()
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	first, err := f.tree.GetEntry(it)
	require.NoError(t, err)
	require.Equal(t, uint32(150), keyOf(first))
}

func TestGetEntryAfterSeekBeginRoundTrip(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 30)

	it, err := f.tree.SeekBegin(f.entry(15, 0)[:4])
	require.NoError(t, err)
	entry1, err := f.tree.GetEntry(it)
	require.NoError(t, err)

	it2, err := f.tree.SeekBegin(f.traits.KeyTraits.Project(entry1))
	require.NoError(t, err)
	entry2, err := f.tree.GetEntry(it2)
	require.NoError(t, err)

	require.Equal(t, entry1, entry2)
}

func TestGetConvenienceWrapper(t *testing.T) {
	f := newFixture(t, 8)
	tx := f.newTx(t)
	_, err := f.tree.Upsert(tx, f.entry(9, 'q'))
	require.NoError(t, err)

	got, err := f.tree.Get(f.entry(9, 0)[:4])
	require.NoError(t, err)
	require.Equal(t, f.entry(9, 'q'), got)

	_, err = f.tree.Get(f.entry(123, 0)[:4])
	require.Error(t, err)
	require.True(t, objerr.Of(err, objerr.KeyNotFound))
}

func TestInvariant3EveryBlockStampedWithItsTransaction(t *testing.T) {
	f := newFixture(t, 30-4)
	tx := f.newTx(t)
	insertSequential(t, f, tx, 1)

	node, err := f.tree.readNode(f.tree.Root())
	require.NoError(t, err)
	require.Equal(t, tx, node.TransactionID())
	require.LessOrEqual(t, len(node.Bytes()), filecache.BlockSize)
}

