/*
Buffer pool manager caches disk pages in a fixed set of frames.
Disk I/O is expensive, so pages are kept in memory and written back lazily.
All page traffic of the upper layers (the extendible hash index and whatever
access methods come later) goes through this manager; nobody else reads or
writes the database file while the pool is alive.

access rules for frames:
there are two layers.
- pin/unpin for the eviction policy: a pinned frame is never evicted. every
  FetchPage/NewPage pins; every pin must be paired with exactly one UnpinPage.
  the guard types (see guard.go) automate the pairing and are the only public
  way to reach the page bytes.
- per-page content latches for reading/writing the page bytes, acquired
  through guards. shared for readers, exclusive for writers.

the flow when reading a page is:
- fetch (pin) the frame -> acquire shared content latch -> read the bytes
- -> release content latch -> unpin

lock ordering:
One pool mutex protects the page table, the free list and all descriptor
metadata, and is held for the whole body of each public operation. The
replacer has its own mutex and is only called while the pool mutex is held
(pool -> replacer, never the reverse). Content latches are never acquired
while the pool mutex is held and the pool mutex is never acquired while
waiting for a content latch; guards take the latch strictly after the pool
call returns.

The manager conservatively keeps the pool mutex across scheduler waits
(the write-back of a dirty victim, the read of a fetched page). This costs
throughput under heavy eviction but keeps the frame-reuse reasoning trivial:
a frame being worked on is simply unreachable until the operation completes.

eviction protocol (see acquireFrame):
 1. take a frame from the free list; if empty, ask the replacer for a victim.
 2. if the victim is dirty, schedule a write and wait on its future.
 3. remove the victim's page from the page table.
 4. reset the frame memory and metadata.
 5. hand the frame to the caller, which installs the new page id. FetchPage
    always reads the page from disk (a never-written page reads back
    zero-filled); NewPage does not read.
*/
package buffer

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hmachida/minibase/storage/disk"
	"github.com/hmachida/minibase/storage/page"
)

// ErrOutOfFrames is returned when no frame is free and the replacer
// cannot find an eviction victim (every frame is pinned).
var ErrOutOfFrames = errors.New("no free frame and no evictable frame")

// Manager manages the buffer pool
type Manager struct {
	// scheduler serializes page I/O onto the disk worker
	scheduler *disk.Scheduler
	// buffers is the frame array. buffers[i] belongs to descriptors[i].
	buffers []buffer
	// descriptors of each frame
	descriptors []*descriptor
	// table maps resident page ids to frame ids
	table pageTable
	// freeList points to the head node (free frame) of the free list
	freeList FrameID
	// replacer picks eviction victims among unpinned frames
	replacer *Replacer
	// nextPageID is the next page id to allocate. page ids grow monotonically;
	// on an existing database the counter resumes past every page backed by the file.
	nextPageID page.PageID

	mu  sync.Mutex
	log *logrus.Entry
}

// NewManager initializes the buffer pool manager.
// poolSize is the number of frames, replacerK the K of the LRU-K policy.
func NewManager(dm *disk.Manager, poolSize, replacerK int) (*Manager, error) {
	if poolSize <= 0 {
		return nil, errors.Errorf("invalid pool size %d", poolSize)
	}
	persisted, err := dm.Size()
	if err != nil {
		return nil, errors.Wrap(err, "dm.Size failed")
	}
	return &Manager{
		scheduler:   disk.NewScheduler(dm),
		buffers:     newBuffers(poolSize),
		descriptors: newDescriptors(poolSize),
		table:       newPageTable(poolSize),
		freeList:    FirstFrameID,
		replacer:    NewReplacer(poolSize, replacerK),
		nextPageID:  page.PageID(persisted),
		log:         logrus.WithField("component", "buffer"),
	}, nil
}

// NewPage allocates a fresh page id, installs it into a frame and pins the frame.
// the caller must eventually call UnpinPage (or use NewPageGuarded).
// returns ErrOutOfFrames when every frame is pinned.
func (m *Manager) NewPage() (FrameID, page.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, err := m.acquireFrame()
	if err != nil {
		return InvalidFrameID, page.InvalidPageID, err
	}
	pid := m.nextPageID
	m.nextPageID++

	m.installPage(fid, pid)
	return fid, pid, nil
}

// FetchPage returns the frame holding the page, pinned.
// when the page is already resident, just pin it further.
// when it is not, acquire a frame (free or evicted) and read the page from disk.
// the caller must eventually call UnpinPage (or use the guard variants).
func (m *Manager) FetchPage(pid page.PageID) (FrameID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !pid.IsValid() {
		return InvalidFrameID, errors.Errorf("invalid page id %d", pid)
	}

	if fid, ok := m.table.get(pid); ok {
		desc := m.descriptors[fid]
		desc.pinCount++
		m.replacer.RecordAccess(fid)
		m.replacer.SetEvictable(fid, false)
		return fid, nil
	}

	fid, err := m.acquireFrame()
	if err != nil {
		return InvalidFrameID, err
	}
	// the read covers both cases: a persisted page comes back from disk, and
	// a page never written (including ids the allocator has not handed out
	// yet) comes back zero-filled, which is its last durable state. fetching
	// fails only when no frame can be acquired.
	req := disk.NewRequest(false, page.PagePtr(m.buffers[fid]), pid)
	m.scheduler.Schedule(req)
	<-req.Done

	m.installPage(fid, pid)
	return fid, nil
}

// UnpinPage decrements the page's pin count.
// isDirty marks the page dirty; the dirty bit is sticky, so passing false
// never clears an earlier mark. returns false when the page is not resident
// or its pin count is already zero.
func (m *Manager) UnpinPage(pid page.PageID, isDirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.table.get(pid)
	if !ok {
		return false
	}
	desc := m.descriptors[fid]
	if desc.pinCount == 0 {
		return false
	}
	if isDirty {
		desc.dirty = true
	}
	desc.pinCount--
	if desc.pinCount == 0 {
		m.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes the resident page to disk through the scheduler and
// clears its dirty bit. flushes even when the page is not dirty.
// returns false when the page is not resident.
func (m *Manager) FlushPage(pid page.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushPage(pid)
}

// flushPage is FlushPage with the pool mutex already held
func (m *Manager) flushPage(pid page.PageID) bool {
	fid, ok := m.table.get(pid)
	if !ok {
		return false
	}
	desc := m.descriptors[fid]
	req := disk.NewRequest(true, page.PagePtr(m.buffers[fid]), pid)
	m.scheduler.Schedule(req)
	<-req.Done
	desc.dirty = false
	return true
}

// FlushAllPages flushes every resident page
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid := range m.table.table {
		m.flushPage(pid)
	}
}

// DeletePage frees the page's frame and notifies the page id allocator.
// deleting a page that is not resident is a no-op returning true.
// deleting a pinned page is refused with false.
func (m *Manager) DeletePage(pid page.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.table.get(pid)
	if !ok {
		return true
	}
	desc := m.descriptors[fid]
	if desc.pinCount > 0 {
		return false
	}
	m.table.delete(pid)
	m.replacer.Remove(fid)
	page.Reset(page.PagePtr(m.buffers[fid]))
	desc.reset()
	m.returnToFreeList(fid)
	m.deallocatePage(pid)
	return true
}

// deallocatePage notifies the page id allocator that the page is gone.
// the allocator is a bare monotonic counter for now, so there is nothing to
// reclaim; the hook exists so a free-page map can slot in without touching callers.
func (m *Manager) deallocatePage(pid page.PageID) {
}

// Close flushes every resident page and stops the disk scheduler.
// the manager must not be used afterwards.
func (m *Manager) Close() {
	m.FlushAllPages()
	m.scheduler.Shutdown()
}

// acquireFrame returns a frame ready to receive a page, following the
// eviction protocol described at the head of this file.
// the caller must hold the pool mutex.
func (m *Manager) acquireFrame() (FrameID, error) {
	if fid := m.allocateFromFreeList(); fid != InvalidFrameID {
		return fid, nil
	}
	fid, ok := m.replacer.Evict()
	if !ok {
		return InvalidFrameID, ErrOutOfFrames
	}
	desc := m.descriptors[fid]
	if desc.dirty {
		// write back before the frame is reused. waiting on the future under
		// the pool mutex is the conservative policy described above.
		m.log.WithFields(logrus.Fields{"page_id": desc.pageID, "frame_id": fid}).
			Debug("writing back dirty victim")
		req := disk.NewRequest(true, page.PagePtr(m.buffers[fid]), desc.pageID)
		m.scheduler.Schedule(req)
		<-req.Done
	}
	m.table.delete(desc.pageID)
	page.Reset(page.PagePtr(m.buffers[fid]))
	desc.reset()
	return fid, nil
}

// installPage installs the page into the frame, pinned with one reference,
// and records the access with the replacer.
// the caller must hold the pool mutex.
func (m *Manager) installPage(fid FrameID, pid page.PageID) {
	desc := m.descriptors[fid]
	desc.pageID = pid
	desc.pinCount = 1
	desc.dirty = false
	m.table.insert(pid, fid)
	m.replacer.RecordAccess(fid)
	m.replacer.SetEvictable(fid, false)
}

// getPage returns the frame's page bytes.
// internal on purpose: the public way to reach page bytes is a guard, which
// pairs the access with the right latch and a guaranteed unpin.
func (m *Manager) getPage(fid FrameID) page.PagePtr {
	return page.PagePtr(m.buffers[fid])
}

// markDirty turns on the dirty bit of the resident page's frame.
// called by write guards when they hand out mutable page bytes.
func (m *Manager) markDirty(fid FrameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors[fid].dirty = true
}
