/*
Disk manager deals with the database file.
It exposes exactly two page-granularity primitives, ReadPage and WritePage,
both synchronous. Asynchronous, ordered I/O on top of these primitives is the
scheduler's job (see scheduler.go).

The head of the file (one page) is reserved by the disk manager for its own
metadata: a magic number and a format version. Data pages follow, so the file
offset of data page N is (N + 1) * PageSize. Callers never see the metadata
page; page id 0 is an ordinary data page from the buffer manager's point of view.

Reading a page that has been allocated but never written returns a zero-filled
page instead of an error. The buffer manager allocates page ids eagerly and may
fetch such a page before the first flush.
*/
package disk

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/hmachida/minibase/storage/page"
)

// dataFileName is the name of the database file under the data directory
const dataFileName = "base"

const (
	// magic identifies a minibase data file
	magic uint32 = 0x6d626173
	// formatVersion is bumped when the file layout changes incompatibly
	formatVersion uint32 = 1
	// metaPages is how many pages at the head of the file belong to the disk manager
	metaPages = 1
)

// Manager manages the database file
type Manager struct {
	st storage
	// mu serializes metadata checks (file size) against writes.
	// page-level synchronization is NOT this manager's job; the buffer
	// manager guarantees that the same page is never read and written concurrently.
	mu sync.Mutex
}

// NewManager initializes disk manager with the file under dataDir
func NewManager(dataDir string) (*Manager, error) {
	return newManager(fileOpener{}, filepath.Join(dataDir, dataFileName))
}

// newManager initializes disk manager with the given opener
func newManager(o opener, path string) (*Manager, error) {
	st, err := o.open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open failed")
	}
	m := &Manager{st: st}
	if err := m.initMetaPage(); err != nil {
		return nil, errors.Wrap(err, "initMetaPage failed")
	}
	return m, nil
}

// initMetaPage writes the metadata page into a fresh file, or validates it in an existing one
func (m *Manager) initMetaPage() error {
	size, err := m.st.Size()
	if err != nil {
		return errors.Wrap(err, "st.Size failed")
	}
	if size == 0 {
		meta := page.NewPagePtr()
		binary.LittleEndian.PutUint32(meta[0:4], magic)
		binary.LittleEndian.PutUint32(meta[4:8], formatVersion)
		if _, err := m.st.WriteAt(meta[:], 0); err != nil {
			return errors.Wrap(err, "st.WriteAt failed")
		}
		return m.st.Sync()
	}

	var header [8]byte
	if _, err := m.st.ReadAt(header[:], 0); err != nil {
		return errors.Wrap(err, "st.ReadAt failed")
	}
	if got := binary.LittleEndian.Uint32(header[0:4]); got != magic {
		return errors.Errorf("not a minibase data file: magic %#x", got)
	}
	if got := binary.LittleEndian.Uint32(header[4:8]); got != formatVersion {
		return errors.Errorf("unsupported data file format version %d", got)
	}
	return nil
}

// fileOffset returns the file offset of the data page, skipping the metadata prelude
func fileOffset(pageID page.PageID) int64 {
	return int64(metaPages)*page.PageSize + page.CalculateFileOffset(pageID)
}

// ReadPage reads the page from disk into p.
// when the page has never been written, p is zero-filled.
func (m *Manager) ReadPage(pageID page.PageID, p page.PagePtr) error {
	if !pageID.IsValid() {
		return errors.Errorf("invalid page id %d", pageID)
	}
	off := fileOffset(pageID)

	m.mu.Lock()
	defer m.mu.Unlock()
	size, err := m.st.Size()
	if err != nil {
		return errors.Wrap(err, "st.Size failed")
	}
	if off+page.PageSize > size {
		// allocated but never flushed
		page.Reset(p)
		return nil
	}
	if _, err := m.st.ReadAt(p[:], off); err != nil {
		return errors.Wrap(err, "st.ReadAt failed")
	}
	return nil
}

// WritePage writes p to disk at the page's location.
// when sync is true the storage is synced after the write.
func (m *Manager) WritePage(pageID page.PageID, p page.PagePtr, sync bool) error {
	if !pageID.IsValid() {
		return errors.Errorf("invalid page id %d", pageID)
	}
	off := fileOffset(pageID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.st.WriteAt(p[:], off); err != nil {
		return errors.Wrap(err, "st.WriteAt failed")
	}
	if sync {
		if err := m.st.Sync(); err != nil {
			return errors.Wrap(err, "st.Sync failed")
		}
	}
	return nil
}

// Size returns the number of data pages currently backed by the file
func (m *Manager) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, err := m.st.Size()
	if err != nil {
		return 0, errors.Wrap(err, "st.Size failed")
	}
	if size < int64(metaPages)*page.PageSize {
		return 0, nil
	}
	return (size - int64(metaPages)*page.PageSize) / page.PageSize, nil
}

// Close syncs and closes the underlying storage
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.st.Sync(); err != nil {
		return errors.Wrap(err, "st.Sync failed")
	}
	return m.st.Close()
}
