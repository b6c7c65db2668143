/*
Dirty pages have to be written out to disk before eviction.
If that write happens inside the eviction path, the goroutine that merely
wanted a frame pays for someone else's deferred I/O. The background writer
smooths this out: it periodically scans the pool and writes back dirty,
unpinned frames ahead of time, so evictions mostly find clean victims.

The writer is purely an optimization. Correctness never depends on it; the
eviction path still writes back whatever is dirty when its turn comes.
*/
package buffer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hmachida/minibase/storage/disk"
	"github.com/hmachida/minibase/storage/page"
)

const (
	// DefaultBgWriterDelay is the delay between rounds
	DefaultBgWriterDelay = 200 * time.Millisecond
	// DefaultBgWriterMaxPages bounds how many frames one round writes back
	DefaultBgWriterMaxPages = 100
)

// BackgroundWriter periodically writes back dirty unpinned frames
type BackgroundWriter struct {
	m        *Manager
	delay    time.Duration
	maxPages int

	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
	log      *logrus.Entry
}

// NewBackgroundWriter initializes a background writer for the pool
func NewBackgroundWriter(m *Manager, delay time.Duration, maxPages int) *BackgroundWriter {
	return &BackgroundWriter{
		m:        m,
		delay:    delay,
		maxPages: maxPages,
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
		log:      logrus.WithField("component", "bgwriter"),
	}
}

// Start runs the writer until Stop is called
func (bw *BackgroundWriter) Start() {
	go bw.run()
}

// Stop stops the writer and waits for the current round to finish
func (bw *BackgroundWriter) Stop() {
	bw.stopOnce.Do(func() { close(bw.stop) })
	<-bw.exited
}

func (bw *BackgroundWriter) run() {
	defer close(bw.exited)
	ticker := time.NewTicker(bw.delay)
	defer ticker.Stop()
	for {
		select {
		case <-bw.stop:
			return
		case <-ticker.C:
			written := bw.writeRound()
			if written > 0 {
				bw.log.WithField("pages", written).Debug("background write round")
			}
		}
	}
}

// writeRound scans all frames once and writes back up to maxPages dirty ones
func (bw *BackgroundWriter) writeRound() int {
	written := 0
	for fid := range bw.m.descriptors {
		if written >= bw.maxPages {
			break
		}
		if bw.m.syncOneFrame(FrameID(fid)) {
			written++
		}
	}
	return written
}

// syncOneFrame writes the frame back to disk when it is dirty and unpinned.
// an unpinned frame has no outstanding guards, hence no content latch holder,
// so writing under the pool mutex cannot observe a torn page.
func (m *Manager) syncOneFrame(fid FrameID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	desc := m.descriptors[fid]
	if !desc.pageID.IsValid() || !desc.dirty || desc.pinCount > 0 {
		return false
	}
	req := disk.NewRequest(true, page.PagePtr(m.buffers[fid]), desc.pageID)
	m.scheduler.Schedule(req)
	<-req.Done
	desc.dirty = false
	return true
}
