package disk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hmachida/minibase/storage/page"
)

func TestScheduleWriteThenRead(t *testing.T) {
	m, err := TestingNewBufferManager()
	assert.Nil(t, err)
	s := NewScheduler(m)
	defer s.Shutdown()

	p, err := page.TestingNewRandomPage()
	assert.Nil(t, err)

	write := NewRequest(true, p, page.PageID(0))
	s.Schedule(write)
	assert.True(t, <-write.Done)

	got := page.NewPagePtr()
	read := NewRequest(false, got, page.PageID(0))
	s.Schedule(read)
	assert.True(t, <-read.Done)

	assert.True(t, bytes.Equal(p[:], got[:]))
}

func TestScheduleFIFOOrder(t *testing.T) {
	m, err := TestingNewBufferManager()
	assert.Nil(t, err)
	s := NewScheduler(m)
	defer s.Shutdown()

	// issue many writes to the same page without waiting in between.
	// FIFO completion means the last scheduled write wins.
	pages := make([]page.PagePtr, 10)
	reqs := make([]*Request, 10)
	for i := range pages {
		p := page.NewPagePtr()
		p[0] = byte(i)
		pages[i] = p
		reqs[i] = NewRequest(true, p, page.PageID(7))
		s.Schedule(reqs[i])
	}
	for _, req := range reqs {
		assert.True(t, <-req.Done)
	}

	got := page.NewPagePtr()
	read := NewRequest(false, got, page.PageID(7))
	s.Schedule(read)
	assert.True(t, <-read.Done)
	assert.Equal(t, byte(9), got[0])
}

func TestShutdownDrainsEarlierRequests(t *testing.T) {
	m, err := TestingNewBufferManager()
	assert.Nil(t, err)
	s := NewScheduler(m)

	p, err := page.TestingNewRandomPage()
	assert.Nil(t, err)
	req := NewRequest(true, p, page.PageID(1))
	s.Schedule(req)

	// the sentinel is behind the write, so the write completes before the worker exits
	s.Shutdown()
	assert.True(t, <-req.Done)

	got := page.NewPagePtr()
	err = m.ReadPage(page.PageID(1), got)
	assert.Nil(t, err)
	assert.True(t, bytes.Equal(p[:], got[:]))
}

func TestShutdownIsIdempotent(t *testing.T) {
	m, err := TestingNewBufferManager()
	assert.Nil(t, err)
	s := NewScheduler(m)
	s.Shutdown()
	s.Shutdown()
}
