/*
Header page layout. The header is the root of the index, created once and
never moved, so its page id identifies the whole index.

  - +-----------------+----------------------------------------+
  - | maxDepth (u32)  | directoryPageIDs (i32 x 2^maxDepth)    |
  - +-----------------+----------------------------------------+

The directory slot for a hash value is taken from the TOP maxDepth bits of
the 32-bit hash; the directory level then consumes the LOW globalDepth bits.
Using opposite ends keeps the two levels independent of each other.

Multi-byte integers are stored little-endian, the host order of every
platform this engine targets. This is not a portable on-disk format.
*/
package hash

import (
	"encoding/binary"

	"github.com/hmachida/minibase/storage/page"
)

const (
	// HeaderMaxDepth is the largest max depth a header page can hold:
	// 2^9 directory page ids fit into one page alongside the depth field.
	HeaderMaxDepth = 9

	headerMaxDepthOffset   = 0
	headerDirectoryOffset  = 4
	headerDirectoryIDWidth = 4
)

// headerPage interprets a buffer pool page as the index header
type headerPage struct {
	p page.PagePtr
}

// init formats the page as an empty header: every directory slot invalid
func (hp headerPage) init(maxDepth uint32) {
	binary.LittleEndian.PutUint32(hp.p[headerMaxDepthOffset:], maxDepth)
	for i := uint32(0); i < hp.maxSize(); i++ {
		hp.setDirectoryPageID(i, page.InvalidPageID)
	}
}

// maxDepth returns how many top bits of the hash select the directory slot
func (hp headerPage) maxDepth() uint32 {
	return binary.LittleEndian.Uint32(hp.p[headerMaxDepthOffset:])
}

// maxSize returns the number of directory slots
func (hp headerPage) maxSize() uint32 {
	return 1 << hp.maxDepth()
}

// hashToDirectoryIndex selects the directory slot from the top maxDepth bits
// of the hash. with maxDepth 0 every hash maps to slot 0.
func (hp headerPage) hashToDirectoryIndex(h uint32) uint32 {
	// a shift by 32 yields 0 in Go, so the maxDepth == 0 case needs no branch
	return h >> (32 - hp.maxDepth())
}

// directoryPageID returns the page id stored in the slot, InvalidPageID when empty
func (hp headerPage) directoryPageID(idx uint32) page.PageID {
	off := headerDirectoryOffset + idx*headerDirectoryIDWidth
	return page.PageID(binary.LittleEndian.Uint32(hp.p[off:]))
}

// setDirectoryPageID stores the page id into the slot
func (hp headerPage) setDirectoryPageID(idx uint32, pid page.PageID) {
	off := headerDirectoryOffset + idx*headerDirectoryIDWidth
	binary.LittleEndian.PutUint32(hp.p[off:], uint32(pid))
}
