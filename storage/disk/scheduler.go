/*
Scheduler serializes asynchronous page I/O onto one background worker.

The buffer manager does not call ReadPage/WritePage directly. It enqueues
requests here and waits on a per-request future. A single worker goroutine
drains the queue in FIFO order, so for any two requests the completion order
equals the enqueue order. This is what makes the eviction protocol sound:
the write-back of a victim page scheduled before the read of its replacement
is guaranteed to hit the disk first.

The future is a one-shot boolean channel with capacity 1. The worker never
blocks resolving it and the requester waits with a plain receive. A bounded
channel plus a per-request completion channel is the usual shape of this
rendezvous in Go, so no callback registry is needed.
*/
package disk

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hmachida/minibase/storage/page"
)

// requestQueueCapacity bounds the request queue.
// the buffer manager waits on each future before issuing a dependent request,
// so the queue depth stays tiny in practice. the capacity only has to absorb
// bursts from independent callers.
const requestQueueCapacity = 64

// Request is one page I/O request.
type Request struct {
	// Write selects the direction: write the buffer to disk, or read from disk into the buffer
	Write bool
	// Data is the caller's buffer. The scheduler borrows it until Done resolves;
	// the caller must not touch it in between.
	Data page.PagePtr
	// PageID is the page read from or written to
	PageID page.PageID
	// Done resolves to true when the request completed.
	// must be a buffered channel with capacity >= 1 so the worker never blocks.
	Done chan bool
}

// NewRequest initializes a request with a ready-to-use future
func NewRequest(write bool, data page.PagePtr, pageID page.PageID) *Request {
	return &Request{
		Write:  write,
		Data:   data,
		PageID: pageID,
		Done:   make(chan bool, 1),
	}
}

// Scheduler schedules page I/O to the disk manager
type Scheduler struct {
	dm *Manager
	// queue feeds the worker. a nil request is the shutdown sentinel.
	queue chan *Request
	// exited is closed when the worker returns
	exited chan struct{}
	// shutdownOnce makes Shutdown idempotent
	shutdownOnce sync.Once

	log *logrus.Entry
}

// NewScheduler initializes the scheduler and starts its worker goroutine
func NewScheduler(dm *Manager) *Scheduler {
	s := &Scheduler{
		dm:     dm,
		queue:  make(chan *Request, requestQueueCapacity),
		exited: make(chan struct{}),
		log:    logrus.WithField("component", "disk-scheduler"),
	}
	go s.worker()
	return s
}

// Schedule enqueues the request.
// the caller keeps ownership of req.Data until req.Done resolves.
func (s *Scheduler) Schedule(req *Request) {
	s.queue <- req
}

// worker processes requests in FIFO order until the shutdown sentinel arrives.
// earlier requests are always completed before the sentinel is observed.
func (s *Scheduler) worker() {
	defer close(s.exited)
	for req := range s.queue {
		if req == nil {
			// shutdown sentinel
			return
		}
		var err error
		if req.Write {
			err = s.dm.WritePage(req.PageID, req.Data, false)
		} else {
			err = s.dm.ReadPage(req.PageID, req.Data)
		}
		if err != nil {
			// the request contract has no error surface; the disk manager's
			// model treats I/O as infallible, so a failure here is logged
			// and the future still resolves.
			s.log.WithError(err).WithField("page_id", req.PageID).Error("page I/O failed")
		}
		req.Done <- true
	}
}

// Shutdown stops the worker after all previously scheduled requests completed.
// Schedule must not be called after Shutdown.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.queue <- nil
	})
	<-s.exited
}
