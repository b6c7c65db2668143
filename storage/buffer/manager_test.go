package buffer

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hmachida/minibase/storage/disk"
	"github.com/hmachida/minibase/storage/page"
)

// freeListLen walks the free list. test helper for the pool invariant
// poolSize == len(free list) + len(page table).
func freeListLen(m *Manager) int {
	n := 0
	for fid := m.freeList; fid != freeListInvalidID; fid = m.descriptors[fid].nextFreeID {
		n++
	}
	return n
}

func assertPoolInvariant(t *testing.T, m *Manager) {
	t.Helper()
	assert.Equal(t, len(m.buffers), freeListLen(m)+m.table.len())
	for pid, fid := range m.table.table {
		assert.Equal(t, pid, m.descriptors[fid].pageID)
	}
}

func TestNewPageAndFetchPage(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	fid, pid, err := m.NewPage()
	assert.Nil(t, err)
	assert.Equal(t, page.FirstPageID, pid)

	copy(m.getPage(fid)[:], []byte("hello"))
	assert.True(t, m.UnpinPage(pid, true))
	assertPoolInvariant(t, m)

	fid2, err := m.FetchPage(pid)
	assert.Nil(t, err)
	assert.Equal(t, []byte("hello"), m.getPage(fid2)[:5])
	assert.True(t, m.UnpinPage(pid, false))
}

func TestFetchPageInvalid(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	_, err = m.FetchPage(page.InvalidPageID)
	assert.NotNil(t, err)
}

func TestFetchPageNeverPersisted(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	// an id the allocator never handed out still gets a frame, pinned;
	// nothing of it is on disk, so the frame content is zero
	fid, err := m.FetchPage(page.PageID(42))
	assert.Nil(t, err)
	assert.True(t, bytes.Equal(page.NewPagePtr()[:], m.getPage(fid)[:]))
	_, resident := m.table.get(page.PageID(42))
	assert.True(t, resident)
	assert.True(t, m.UnpinPage(page.PageID(42), false))
}

func TestEvictionFollowsLRUK(t *testing.T) {
	// pool of 3 frames, K=2
	m, err := TestingNewManagerWithSize(3, 2)
	assert.Nil(t, err)
	defer m.Close()

	_, p1, err := m.NewPage()
	assert.Nil(t, err)
	_, p2, err := m.NewPage()
	assert.Nil(t, err)
	_, p3, err := m.NewPage()
	assert.Nil(t, err)
	assert.True(t, m.UnpinPage(p1, false))
	assert.True(t, m.UnpinPage(p2, false))
	assert.True(t, m.UnpinPage(p3, false))

	// touch p1 twice and p2 once. p3 keeps a single access, so its
	// K-distance stays infinite with the oldest first access.
	for _, pid := range []page.PageID{p1, p1, p2} {
		_, err := m.FetchPage(pid)
		assert.Nil(t, err)
		assert.True(t, m.UnpinPage(pid, false))
	}

	// allocating a fourth page must evict p3
	_, p4, err := m.NewPage()
	assert.Nil(t, err)
	_, resident := m.table.get(p3)
	assert.False(t, resident)
	_, resident = m.table.get(p1)
	assert.True(t, resident)
	_, resident = m.table.get(p2)
	assert.True(t, resident)
	_, resident = m.table.get(p4)
	assert.True(t, resident)
	assertPoolInvariant(t, m)
}

func TestDirtyEvictionWritesBack(t *testing.T) {
	m, err := TestingNewManagerWithSize(3, 2)
	assert.Nil(t, err)
	defer m.Close()

	fid, pid, err := m.NewPage()
	assert.Nil(t, err)
	copy(m.getPage(fid)[:], []byte("dirty page content"))
	assert.True(t, m.UnpinPage(pid, true))

	// force pid out of the pool
	for i := 0; i < 3; i++ {
		_, other, err := m.NewPage()
		assert.Nil(t, err)
		assert.True(t, m.UnpinPage(other, false))
	}
	_, resident := m.table.get(pid)
	assert.False(t, resident)

	// the content must have survived through the write-back
	fid2, err := m.FetchPage(pid)
	assert.Nil(t, err)
	assert.Equal(t, []byte("dirty page content"), m.getPage(fid2)[:18])
	assert.True(t, m.UnpinPage(pid, false))
}

func TestPinPreventsEviction(t *testing.T) {
	m, err := TestingNewManagerWithSize(3, 2)
	assert.Nil(t, err)
	defer m.Close()

	// fill the pool with pinned pages
	for i := 0; i < 3; i++ {
		_, _, err := m.NewPage()
		assert.Nil(t, err)
	}
	_, _, err = m.NewPage()
	assert.True(t, errors.Is(err, ErrOutOfFrames))

	// the same holds for fetching a non-resident page: there is no frame for it
	assert.True(t, m.UnpinPage(page.PageID(0), false))
	_, p4, err := m.NewPage()
	assert.Nil(t, err)
	_, err = m.FetchPage(page.PageID(0))
	assert.True(t, errors.Is(err, ErrOutOfFrames))
	assert.True(t, m.UnpinPage(p4, false))
}

func TestUnpinPage(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	_, pid, err := m.NewPage()
	assert.Nil(t, err)

	// unknown page
	assert.False(t, m.UnpinPage(page.PageID(99), false))
	// first unpin drops the count to zero
	assert.True(t, m.UnpinPage(pid, false))
	// pin count is already zero
	assert.False(t, m.UnpinPage(pid, false))
}

func TestDirtyBitIsSticky(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	fid, pid, err := m.NewPage()
	assert.Nil(t, err)

	// pin twice, mark dirty once, then unpin clean. the dirty bit must survive.
	_, err = m.FetchPage(pid)
	assert.Nil(t, err)
	assert.True(t, m.UnpinPage(pid, true))
	assert.True(t, m.UnpinPage(pid, false))
	assert.True(t, m.descriptors[fid].dirty)

	// flushing clears it
	assert.True(t, m.FlushPage(pid))
	assert.False(t, m.descriptors[fid].dirty)
}

func TestFlushPage(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	assert.False(t, m.FlushPage(page.PageID(0)))

	fid, pid, err := m.NewPage()
	assert.Nil(t, err)
	copy(m.getPage(fid)[:], []byte("flush me"))
	assert.True(t, m.UnpinPage(pid, true))
	assert.True(t, m.FlushPage(pid))
}

func TestFlushDurabilityAcrossReopen(t *testing.T) {
	// one disk manager shared by two successive pools simulates a restart
	dm, err := disk.TestingNewBufferManager()
	assert.Nil(t, err)

	m1, err := NewManager(dm, 3, 2)
	assert.Nil(t, err)
	fid, pid, err := m1.NewPage()
	assert.Nil(t, err)
	copy(m1.getPage(fid)[:], []byte("pattern A"))
	assert.True(t, m1.UnpinPage(pid, true))
	assert.True(t, m1.FlushPage(pid))
	m1.Close()

	m2, err := NewManager(dm, 3, 2)
	assert.Nil(t, err)
	defer m2.Close()
	// the page id allocator resumes past the persisted pages
	fid2, err := m2.FetchPage(pid)
	assert.Nil(t, err)
	assert.True(t, bytes.Equal([]byte("pattern A"), m2.getPage(fid2)[:9]))
	assert.True(t, m2.UnpinPage(pid, false))
}

func TestDeletePage(t *testing.T) {
	m, err := TestingNewManagerWithSize(3, 2)
	assert.Nil(t, err)
	defer m.Close()

	// deleting a non-resident page is a no-op returning true
	assert.True(t, m.DeletePage(page.PageID(7)))

	_, pid, err := m.NewPage()
	assert.Nil(t, err)
	// pinned: refuse
	assert.False(t, m.DeletePage(pid))
	assert.True(t, m.UnpinPage(pid, false))
	// unpinned: delete and return the frame to the free list
	assert.True(t, m.DeletePage(pid))
	_, resident := m.table.get(pid)
	assert.False(t, resident)
	assertPoolInvariant(t, m)

	// the freed frame is allocatable again without eviction
	for i := 0; i < 3; i++ {
		_, _, err := m.NewPage()
		assert.Nil(t, err)
	}
}

func TestFlushAllPages(t *testing.T) {
	m, err := TestingNewManager()
	assert.Nil(t, err)
	defer m.Close()

	pids := make([]page.PageID, 3)
	for i := range pids {
		fid, pid, err := m.NewPage()
		assert.Nil(t, err)
		m.getPage(fid)[0] = byte(i + 1)
		assert.True(t, m.UnpinPage(pid, true))
		pids[i] = pid
	}
	m.FlushAllPages()
	for _, pid := range pids {
		fid, ok := m.table.get(pid)
		assert.True(t, ok)
		assert.False(t, m.descriptors[fid].dirty)
	}
}
