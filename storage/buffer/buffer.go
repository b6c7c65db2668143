package buffer

import (
	"github.com/hmachida/minibase/storage/page"
)

// FrameID is the index into the buffer pool's frame array.
// a frame holds at most one page at a time; the mapping from resident
// page ids to frame ids is the page table (see table.go).
type FrameID int32

const (
	// InvalidFrameID indicates `no frame`
	InvalidFrameID FrameID = -1
	// FirstFrameID is the first frame id
	FirstFrameID FrameID = 0
)

// buffer is byte array
// page is fetched from disk into this
type buffer *[page.PageSize]byte

// newBuffers initializes the frame array for the pool
func newBuffers(poolSize int) []buffer {
	buffers := make([]buffer, poolSize)
	for i := 0; i < poolSize; i++ {
		buffers[i] = &[page.PageSize]byte{}
	}
	return buffers
}
