/*
This file defines storage interface and its implementations.
We don't want to execute disk I/O in test, so it's better to use byte slice instead of actual file in test.
For this reason, storage interface is defined. Possible operation with storage is
read at/write at/sync/get size/close. The implementations are:
- fileStorage: wrapper of os.File
- bufferStorage: byte slice which grows on demand. this is intended to be used in test.

note:
ReaderAt/WriterAt is chosen over Seek+Read/Write because every I/O in minibase is
a whole page at a page-aligned offset, and positioned I/O keeps the storage stateless.
*/
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// storage implements the operations necessary for the minibase database file.
type storage interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	Close() error
}

// fileStorage is file storage
type fileStorage struct {
	*os.File
}

// Size returns the storage's size
func (fs fileStorage) Size() (int64, error) {
	stat, err := fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "Stat failed")
	}
	return stat.Size(), nil
}

// bufferStorage is on-memory storage
type bufferStorage struct {
	// buf is actual contents
	buf []byte
	// bufferStorage is shared between the scheduler's worker goroutine and
	// whoever calls ReadPage/WritePage directly in test, so guard the slice
	mu sync.Mutex
}

// newBufferStorage initializes bufferStorage
func newBufferStorage() *bufferStorage {
	return &bufferStorage{}
}

// Size returns the buffer size
func (bs *bufferStorage) Size() (int64, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return int64(len(bs.buf)), nil
}

// Sync doesn't do anything
func (bs *bufferStorage) Sync() error {
	// on-memory byte slice doesn't need sync
	return nil
}

// Close doesn't do anything
func (bs *bufferStorage) Close() error {
	return nil
}

// ReadAt reads len(p) bytes at offset off
func (bs *bufferStorage) ReadAt(p []byte, off int64) (int, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if off >= int64(len(bs.buf)) {
		return 0, io.EOF
	}
	nread := copy(p, bs.buf[off:])
	if nread != len(p) {
		return nread, errors.Errorf("cannot fully read: nread %d, len %d", nread, len(p))
	}
	return nread, nil
}

// WriteAt writes p at offset off, growing the buffer when the write goes past the end
func (bs *bufferStorage) WriteAt(p []byte, off int64) (int, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if need := off + int64(len(p)); need > int64(len(bs.buf)) {
		grown := make([]byte, need)
		copy(grown, bs.buf)
		bs.buf = grown
	}
	nwritten := copy(bs.buf[off:], p)
	if nwritten != len(p) {
		return nwritten, errors.Errorf("cannot fully write: nwritten %d, len %d", nwritten, len(p))
	}
	return nwritten, nil
}
