/*
Buffer descriptor stores metadata about each frame.

Three fields matter for the eviction protocol:

1. pin count
- This is used to grasp whether the frame is now referred by other goroutines.
- While the pin count is above zero the frame cannot be evicted.
- So the flow is: pin the frame (via FetchPage()/NewPage()) -> do anything with the frame
- -> unpin the frame (via UnpinPage()) after the process is completed.
- IMPORTANT: the caller is responsible for UnpinPage(). the guard types automate this.

2. dirty bit
- This is used to grasp whether the page in the frame is updated and not written out to disk yet.
- When the manager evicts the frame, a dirty page must be written to disk first.
- The dirty bit is sticky: UnpinPage(pid, false) never clears it. Only a flush
- or eviction write-back clears it.

3. page id
- which page currently occupies the frame. InvalidPageID when the frame is free.

All fields except contentLock are protected by the manager's pool mutex.
contentLock is the per-page readers-writer latch acquired through guards; it is
never taken while the pool mutex is held (lock ordering, see manager.go).
*/
package buffer

import (
	"sync"

	"github.com/hmachida/minibase/storage/page"
)

// descriptor is frame descriptor
type descriptor struct {
	// pageID of the page held by this frame. InvalidPageID when free.
	pageID page.PageID
	// pinCount counts the callers currently using the frame
	pinCount int
	// dirty reports whether the frame content differs from disk
	dirty bool
	// nextFreeID is the next free frame id. this forms the free list.
	nextFreeID FrameID
	// contentLock protects the frame content read/write.
	// acquired only through guards, never under the pool mutex.
	contentLock sync.RWMutex
}

// newDescriptors initializes descriptors with every frame chained into the free list
func newDescriptors(poolSize int) []*descriptor {
	descs := make([]*descriptor, poolSize)
	for i := 0; i < poolSize; i++ {
		descs[i] = &descriptor{
			pageID:     page.InvalidPageID,
			nextFreeID: FrameID(i + 1),
		}
	}
	descs[poolSize-1].nextFreeID = freeListInvalidID
	return descs
}

// reset clears the descriptor metadata.
// called when the frame passes through eviction or DeletePage.
// the caller must hold the pool mutex.
func (desc *descriptor) reset() {
	desc.pageID = page.InvalidPageID
	desc.pinCount = 0
	desc.dirty = false
}
