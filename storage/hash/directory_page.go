/*
Directory page layout.

  - +----------------+--------------------+-----------------------------------+------------------------------+
  - | maxDepth (u32) | globalDepth (u32)  | bucketPageIDs (i32 x 2^maxDepth)  | localDepths (u8 x 2^maxDepth) |
  - +----------------+--------------------+-----------------------------------+------------------------------+

Only the first 2^globalDepth slots are active. The arrays are laid out for
the maximum depth, so growing the directory never moves data; doubling just
copies the active half into the next half and bumps globalDepth.

Depth invariants maintained by the index (verified in table.go):
- localDepth(i) <= globalDepth for every active slot
- all active slots whose index agrees on the low localDepth bits reference
  the same bucket page and carry the same local depth
*/
package hash

import (
	"encoding/binary"

	"github.com/hmachida/minibase/storage/page"
)

const (
	// DirectoryMaxDepth is the largest max depth a directory page can hold:
	// 2^9 page ids plus 2^9 depth bytes fit into one page with the two
	// depth fields.
	DirectoryMaxDepth = 9

	directoryMaxDepthOffset    = 0
	directoryGlobalDepthOffset = 4
	directoryBucketIDsOffset   = 8
	directoryBucketIDWidth     = 4
)

// directoryPage interprets a buffer pool page as an index directory
type directoryPage struct {
	p page.PagePtr
}

// init formats the page as an empty directory: depth 0, one slot, no bucket
func (dp directoryPage) init(maxDepth uint32) {
	binary.LittleEndian.PutUint32(dp.p[directoryMaxDepthOffset:], maxDepth)
	binary.LittleEndian.PutUint32(dp.p[directoryGlobalDepthOffset:], 0)
	for i := uint32(0); i < dp.maxSize(); i++ {
		dp.setBucketPageID(i, page.InvalidPageID)
		dp.setLocalDepth(i, 0)
	}
}

// maxDepth returns the largest global depth this directory can grow to
func (dp directoryPage) maxDepth() uint32 {
	return binary.LittleEndian.Uint32(dp.p[directoryMaxDepthOffset:])
}

// globalDepth returns how many low bits of the hash are currently used
func (dp directoryPage) globalDepth() uint32 {
	return binary.LittleEndian.Uint32(dp.p[directoryGlobalDepthOffset:])
}

// globalDepthMask masks a hash down to the active slot range
func (dp directoryPage) globalDepthMask() uint32 {
	return (1 << dp.globalDepth()) - 1
}

// size returns the number of active slots
func (dp directoryPage) size() uint32 {
	return 1 << dp.globalDepth()
}

// maxSize returns the number of slots at full growth
func (dp directoryPage) maxSize() uint32 {
	return 1 << dp.maxDepth()
}

// hashToBucketIndex selects the active slot from the low globalDepth bits
func (dp directoryPage) hashToBucketIndex(h uint32) uint32 {
	return h & dp.globalDepthMask()
}

// bucketPageID returns the bucket page referenced by the slot
func (dp directoryPage) bucketPageID(idx uint32) page.PageID {
	off := directoryBucketIDsOffset + idx*directoryBucketIDWidth
	return page.PageID(binary.LittleEndian.Uint32(dp.p[off:]))
}

// setBucketPageID stores the bucket page id into the slot
func (dp directoryPage) setBucketPageID(idx uint32, pid page.PageID) {
	off := directoryBucketIDsOffset + idx*directoryBucketIDWidth
	binary.LittleEndian.PutUint32(dp.p[off:], uint32(pid))
}

// localDepthsOffset is where the local depth array starts; it follows the
// bucket page id array, whose length depends on maxDepth
func (dp directoryPage) localDepthsOffset() uint32 {
	return directoryBucketIDsOffset + dp.maxSize()*directoryBucketIDWidth
}

// localDepth returns how many low hash bits distinguish the slot's bucket
func (dp directoryPage) localDepth(idx uint32) uint32 {
	return uint32(dp.p[dp.localDepthsOffset()+idx])
}

// setLocalDepth stores the slot's local depth
func (dp directoryPage) setLocalDepth(idx uint32, depth uint8) {
	dp.p[dp.localDepthsOffset()+idx] = depth
}

// splitImageIndex returns the sibling slot of idx at its current local depth.
// only meaningful when the slot's local depth is above zero.
func (dp directoryPage) splitImageIndex(idx uint32) uint32 {
	return idx ^ (1 << (dp.localDepth(idx) - 1))
}

// canGrow reports whether the directory may double once more
func (dp directoryPage) canGrow() bool {
	return dp.globalDepth() < dp.maxDepth()
}

// incrGlobalDepth doubles the directory. every new slot inherits the bucket
// page id and local depth of its image in the old half, so all hash lookups
// keep resolving to the same buckets.
// the caller must have checked canGrow.
func (dp directoryPage) incrGlobalDepth() {
	oldSize := dp.size()
	for i := uint32(0); i < oldSize; i++ {
		dp.setBucketPageID(oldSize+i, dp.bucketPageID(i))
		dp.setLocalDepth(oldSize+i, uint8(dp.localDepth(i)))
	}
	binary.LittleEndian.PutUint32(dp.p[directoryGlobalDepthOffset:], dp.globalDepth()+1)
}

// decrGlobalDepth halves the directory. the upper half becomes inactive; its
// contents are left as-is and are undefined from now on.
// decrementing a depth of zero is a no-op.
func (dp directoryPage) decrGlobalDepth() {
	g := dp.globalDepth()
	if g == 0 {
		return
	}
	binary.LittleEndian.PutUint32(dp.p[directoryGlobalDepthOffset:], g-1)
}

// canShrink reports whether every active slot has a local depth strictly
// below the global depth, in which case the upper half of the directory
// mirrors the lower half and can be cut off.
func (dp directoryPage) canShrink() bool {
	g := dp.globalDepth()
	if g == 0 {
		return false
	}
	for i := uint32(0); i < dp.size(); i++ {
		if dp.localDepth(i) >= g {
			return false
		}
	}
	return true
}
