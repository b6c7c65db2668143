/*
Bucket page layout.

  - +------------+---------------+--------------------------------------+
  - | size (u32) | maxSize (u32) | entries ((key,value) x maxSize)      |
  - +------------+---------------+--------------------------------------+

Entries are fixed-size key bytes immediately followed by fixed-size value
bytes, packed without padding. Order within a bucket carries no meaning, so
removal swaps the last entry into the hole instead of shifting the tail.

Keys are unique within a bucket: insert refuses a key that is already present.
*/
package hash

import (
	"encoding/binary"

	"github.com/hmachida/minibase/storage/page"
)

const (
	bucketSizeOffset    = 0
	bucketMaxSizeOffset = 4
	bucketEntriesOffset = 8
)

// maxEntriesForSize returns how many (key, value) pairs of the given widths
// fit into one bucket page
func maxEntriesForSize(keySize, valueSize int) uint32 {
	return uint32((page.PageSize - bucketEntriesOffset) / (keySize + valueSize))
}

// bucketPage interprets a buffer pool page as an index bucket
type bucketPage struct {
	p         page.PagePtr
	keySize   int
	valueSize int
}

// init formats the page as an empty bucket with the given capacity
func (bp bucketPage) init(maxSize uint32) {
	binary.LittleEndian.PutUint32(bp.p[bucketSizeOffset:], 0)
	binary.LittleEndian.PutUint32(bp.p[bucketMaxSizeOffset:], maxSize)
}

// size returns the number of entries currently stored
func (bp bucketPage) size() uint32 {
	return binary.LittleEndian.Uint32(bp.p[bucketSizeOffset:])
}

func (bp bucketPage) setSize(n uint32) {
	binary.LittleEndian.PutUint32(bp.p[bucketSizeOffset:], n)
}

// maxSize returns the bucket capacity
func (bp bucketPage) maxSize() uint32 {
	return binary.LittleEndian.Uint32(bp.p[bucketMaxSizeOffset:])
}

// isFull reports whether another entry fits
func (bp bucketPage) isFull() bool {
	return bp.size() >= bp.maxSize()
}

// isEmpty reports whether the bucket holds no entries
func (bp bucketPage) isEmpty() bool {
	return bp.size() == 0
}

// entryOffset returns the byte offset of entry i
func (bp bucketPage) entryOffset(i uint32) uint32 {
	return bucketEntriesOffset + i*uint32(bp.keySize+bp.valueSize)
}

// keyAt returns the key bytes of entry i, aliasing the page
func (bp bucketPage) keyAt(i uint32) []byte {
	off := bp.entryOffset(i)
	return bp.p[off : off+uint32(bp.keySize)]
}

// valueAt returns the value bytes of entry i, aliasing the page
func (bp bucketPage) valueAt(i uint32) []byte {
	off := bp.entryOffset(i) + uint32(bp.keySize)
	return bp.p[off : off+uint32(bp.valueSize)]
}

// lookup returns the index of the entry with the key, or false
func (bp bucketPage) lookup(key []byte, cmp Comparator) (uint32, bool) {
	for i := uint32(0); i < bp.size(); i++ {
		if cmp(bp.keyAt(i), key) == 0 {
			return i, true
		}
	}
	return 0, false
}

// insert appends the entry. returns false when the bucket is full or the
// key is already present.
func (bp bucketPage) insert(key, value []byte, cmp Comparator) bool {
	if bp.isFull() {
		return false
	}
	if _, ok := bp.lookup(key, cmp); ok {
		return false
	}
	bp.appendEntry(key, value)
	return true
}

// appendEntry stores the entry at the end without any checks.
// used by insert and by bucket redistribution during a split, where the
// entry is known to fit and not to be a duplicate.
func (bp bucketPage) appendEntry(key, value []byte) {
	n := bp.size()
	copy(bp.keyAt(n), key)
	copy(bp.valueAt(n), value)
	bp.setSize(n + 1)
}

// removeAt deletes entry i by moving the last entry into its place
func (bp bucketPage) removeAt(i uint32) {
	n := bp.size()
	last := n - 1
	if i != last {
		copy(bp.keyAt(i), bp.keyAt(last))
		copy(bp.valueAt(i), bp.valueAt(last))
	}
	bp.setSize(last)
}

// removeKey deletes every entry with the key. returns whether any entry was deleted.
func (bp bucketPage) removeKey(key []byte, cmp Comparator) bool {
	removed := false
	for i := uint32(0); i < bp.size(); {
		if cmp(bp.keyAt(i), key) == 0 {
			bp.removeAt(i)
			removed = true
			// the swapped-in entry now sits at i; re-check the same slot
			continue
		}
		i++
	}
	return removed
}
