/*
the implementation of free list

The free list is an intrusive singly linked list threaded through the
descriptors (nextFreeID). A frame is in exactly one of the free list or the
page table at any moment: it leaves the list when a page is installed into it
and returns to the list when DeletePage frees the page.

The list is protected by the manager's pool mutex; there is no separate
strategy lock at this pool size.
*/
package buffer

const (
	// this indicates the end of the free list
	freeListInvalidID FrameID = -1
)

// allocateFromFreeList returns a frame from the free list and removes it.
// if there is no frame in the free list, just return InvalidFrameID.
// the caller must hold the pool mutex.
func (m *Manager) allocateFromFreeList() FrameID {
	fid := m.freeList
	if fid == freeListInvalidID {
		return InvalidFrameID
	}
	desc := m.descriptors[fid]
	m.freeList = desc.nextFreeID
	desc.nextFreeID = freeListInvalidID
	return fid
}

// returnToFreeList pushes the frame back onto the free list.
// the caller must hold the pool mutex.
func (m *Manager) returnToFreeList(fid FrameID) {
	desc := m.descriptors[fid]
	desc.nextFreeID = m.freeList
	m.freeList = fid
}
