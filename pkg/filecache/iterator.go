package filecache

// Iterator is a span.Iterator over one file's bytes starting at a given
// offset, backed by the Cache's LRU block cache. It implements
// internal/span.Iterator so binenc and farptr can read/write through it
// exactly as they do over an in-memory span.Span.
type Iterator struct {
	cache  *Cache
	fileID uint64
	offset uint64
}

// HasNext reports whether the file extends past the iterator's position.
func (it *Iterator) HasNext() bool {
	size, err := it.cache.GetFileSize(it.fileID)
	if err != nil {
		return false
	}
	return it.offset < size
}

// ReadByte reads and advances past the byte at the iterator's position.
// Reading past end-of-file yields 0, per the cache's "empty == null"
// convention; callers that need strict bounds should check HasNext first.
func (it *Iterator) ReadByte() byte {
	b, err := it.cache.Read(it.fileID, it.offset)
	it.offset++
	if err != nil {
		return 0
	}
	return b
}

// WriteByte writes the byte at the iterator's position and advances.
func (it *Iterator) WriteByte(b byte) {
	_ = it.cache.Write(it.fileID, it.offset, b)
	it.offset++
}

// ReadBlock reads len(dst) bytes starting at the iterator's position.
func (it *Iterator) ReadBlock(dst []byte) error {
	if err := it.cache.ReadBytes(it.fileID, it.offset, dst); err != nil {
		return err
	}
	it.offset += uint64(len(dst))
	return nil
}

// WriteBlock writes src starting at the iterator's position.
func (it *Iterator) WriteBlock(src []byte) error {
	if err := it.cache.WriteBytes(it.fileID, it.offset, src); err != nil {
		return err
	}
	it.offset += uint64(len(src))
	return nil
}

// Offset returns the iterator's current file-relative offset.
func (it *Iterator) Offset() uint64 { return it.offset }

// FileID returns the file the iterator reads and writes.
func (it *Iterator) FileID() uint64 { return it.fileID }
