package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hmachida/minibase/storage/page"
)

func TestDirectoryPageInit(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(3)

	assert.Equal(t, uint32(3), dp.maxDepth())
	assert.Equal(t, uint32(0), dp.globalDepth())
	assert.Equal(t, uint32(1), dp.size())
	assert.Equal(t, uint32(8), dp.maxSize())
	assert.Equal(t, page.InvalidPageID, dp.bucketPageID(0))
	assert.Equal(t, uint32(0), dp.localDepth(0))
}

func TestDirectoryGrowCopiesLowerHalf(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(3)
	dp.setBucketPageID(0, page.PageID(10))
	dp.setLocalDepth(0, 0)

	assert.True(t, dp.canGrow())
	dp.incrGlobalDepth()
	assert.Equal(t, uint32(1), dp.globalDepth())
	assert.Equal(t, uint32(2), dp.size())
	// the new slot mirrors its image
	assert.Equal(t, page.PageID(10), dp.bucketPageID(1))
	assert.Equal(t, uint32(0), dp.localDepth(1))

	dp.setBucketPageID(1, page.PageID(20))
	dp.setLocalDepth(0, 1)
	dp.setLocalDepth(1, 1)
	dp.incrGlobalDepth()
	assert.Equal(t, uint32(4), dp.size())
	assert.Equal(t, page.PageID(10), dp.bucketPageID(2))
	assert.Equal(t, page.PageID(20), dp.bucketPageID(3))
	assert.Equal(t, uint32(1), dp.localDepth(2))
	assert.Equal(t, uint32(1), dp.localDepth(3))
}

func TestDirectoryCannotGrowPastMaxDepth(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(1)
	assert.True(t, dp.canGrow())
	dp.incrGlobalDepth()
	assert.False(t, dp.canGrow())
}

func TestDirectoryShrink(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(2)
	dp.incrGlobalDepth()
	dp.setBucketPageID(0, page.PageID(10))
	dp.setBucketPageID(1, page.PageID(10))
	dp.setLocalDepth(0, 1)
	dp.setLocalDepth(1, 1)

	// local depth equals global depth: must not shrink
	assert.False(t, dp.canShrink())

	dp.setLocalDepth(0, 0)
	dp.setLocalDepth(1, 0)
	assert.True(t, dp.canShrink())
	dp.decrGlobalDepth()
	assert.Equal(t, uint32(0), dp.globalDepth())

	// decrementing below zero is a no-op
	dp.decrGlobalDepth()
	assert.Equal(t, uint32(0), dp.globalDepth())
}

func TestDirectoryHashToBucketIndex(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(3)
	assert.Equal(t, uint32(0), dp.hashToBucketIndex(0xdeadbeef))
	dp.incrGlobalDepth()
	dp.incrGlobalDepth()
	// low two bits of 0xdeadbeef are 11
	assert.Equal(t, uint32(3), dp.hashToBucketIndex(0xdeadbeef))
}

func TestDirectorySplitImageIndex(t *testing.T) {
	dp := directoryPage{page.NewPagePtr()}
	dp.init(3)
	dp.incrGlobalDepth()
	dp.incrGlobalDepth()

	dp.setLocalDepth(1, 2)
	assert.Equal(t, uint32(3), dp.splitImageIndex(1))
	dp.setLocalDepth(3, 1)
	assert.Equal(t, uint32(2), dp.splitImageIndex(3))
}
