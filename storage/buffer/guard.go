/*
Page guards bracket access to a pinned page.

A guard owns one pin on one frame plus, for the read/write flavors, one
content latch on its page. Drop releases the latch (if any) and the pin, in
that order, and is idempotent. This guarantees that every pin is paired with
exactly one unpin and every latch with its release on all exit paths,
including early returns on failure. Higher layers (the hash index) traverse
pages only through guards.

Guards are move-only. Go has no move semantics, so the convention is:
a guard is handed around by value, the transferring operations (the Upgrade
methods) invalidate their receiver, and a guard must never be copied by the
caller. Dropping an invalidated guard releases nothing.

Latch ordering: the pool call that produces the guard pins the frame under
the pool mutex and returns; the latch is acquired strictly afterwards, so the
pool mutex is never held while waiting for a latch. A pinned frame cannot be
evicted, so the descriptor (and its latch) stays valid for the guard's lifetime.
*/
package buffer

import (
	"github.com/pkg/errors"

	"github.com/hmachida/minibase/storage/page"
)

// PageGuard holds a pin on a frame, without any latch.
// useful when the caller serializes access some other way, or as the
// starting point for an upgrade to a read or write guard.
type PageGuard struct {
	m     *Manager
	fid   FrameID
	pid   page.PageID
	valid bool
}

// NewPageGuarded allocates a fresh page and returns a guard holding its pin
func (m *Manager) NewPageGuarded() (PageGuard, error) {
	fid, pid, err := m.NewPage()
	if err != nil {
		return PageGuard{}, errors.Wrap(err, "NewPage failed")
	}
	return PageGuard{m: m, fid: fid, pid: pid, valid: true}, nil
}

// FetchPageBasic fetches the page and returns a guard holding its pin
func (m *Manager) FetchPageBasic(pid page.PageID) (PageGuard, error) {
	fid, err := m.FetchPage(pid)
	if err != nil {
		return PageGuard{}, errors.Wrap(err, "FetchPage failed")
	}
	return PageGuard{m: m, fid: fid, pid: pid, valid: true}, nil
}

// PageID returns the guarded page's id
func (g *PageGuard) PageID() page.PageID {
	return g.pid
}

// Drop unpins the page. idempotent.
func (g *PageGuard) Drop() {
	if !g.valid {
		return
	}
	g.valid = false
	// the frame's dirty bit is already up to date (write guards mark it on
	// mutable access), so the unpin itself reports clean.
	g.m.UnpinPage(g.pid, false)
}

// UpgradeRead transfers the pin into a read guard, taking the shared latch.
// the receiver becomes inert.
func (g *PageGuard) UpgradeRead() ReadGuard {
	g.mustBeValid()
	g.valid = false
	rg := ReadGuard{m: g.m, fid: g.fid, pid: g.pid, valid: true}
	rg.m.descriptors[rg.fid].contentLock.RLock()
	return rg
}

// UpgradeWrite transfers the pin into a write guard, taking the exclusive latch.
// the receiver becomes inert.
func (g *PageGuard) UpgradeWrite() WriteGuard {
	g.mustBeValid()
	g.valid = false
	wg := WriteGuard{m: g.m, fid: g.fid, pid: g.pid, valid: true}
	wg.m.descriptors[wg.fid].contentLock.Lock()
	return wg
}

func (g *PageGuard) mustBeValid() {
	if !g.valid {
		panic("page guard: use of moved-from or dropped guard")
	}
}

// ReadGuard holds a pin plus the shared content latch
type ReadGuard struct {
	m     *Manager
	fid   FrameID
	pid   page.PageID
	valid bool
}

// FetchPageRead fetches the page and returns a guard holding its pin and shared latch
func (m *Manager) FetchPageRead(pid page.PageID) (ReadGuard, error) {
	g, err := m.FetchPageBasic(pid)
	if err != nil {
		return ReadGuard{}, err
	}
	return g.UpgradeRead(), nil
}

// PageID returns the guarded page's id
func (g *ReadGuard) PageID() page.PageID {
	return g.pid
}

// Data returns the page bytes for reading.
// the caller must not write through the returned pointer.
func (g *ReadGuard) Data() page.PagePtr {
	if !g.valid {
		panic("read guard: use of moved-from or dropped guard")
	}
	return g.m.getPage(g.fid)
}

// Drop releases the shared latch and unpins the page. idempotent.
func (g *ReadGuard) Drop() {
	if !g.valid {
		return
	}
	g.valid = false
	g.m.descriptors[g.fid].contentLock.RUnlock()
	g.m.UnpinPage(g.pid, false)
}

// WriteGuard holds a pin plus the exclusive content latch
type WriteGuard struct {
	m     *Manager
	fid   FrameID
	pid   page.PageID
	valid bool
}

// FetchPageWrite fetches the page and returns a guard holding its pin and exclusive latch
func (m *Manager) FetchPageWrite(pid page.PageID) (WriteGuard, error) {
	g, err := m.FetchPageBasic(pid)
	if err != nil {
		return WriteGuard{}, err
	}
	return g.UpgradeWrite(), nil
}

// NewPageGuardedWrite allocates a fresh page and returns a write guard on it.
// fresh pages are almost always initialized immediately, so this saves the
// separate upgrade at every allocation site.
func (m *Manager) NewPageGuardedWrite() (WriteGuard, error) {
	g, err := m.NewPageGuarded()
	if err != nil {
		return WriteGuard{}, err
	}
	return g.UpgradeWrite(), nil
}

// PageID returns the guarded page's id
func (g *WriteGuard) PageID() page.PageID {
	return g.pid
}

// Data returns the page bytes for writing and marks the page dirty.
// mutable access is assumed to mutate; a writer that ends up changing
// nothing costs one redundant write-back, never a lost update.
func (g *WriteGuard) Data() page.PagePtr {
	if !g.valid {
		panic("write guard: use of moved-from or dropped guard")
	}
	g.m.markDirty(g.fid)
	return g.m.getPage(g.fid)
}

// Drop releases the exclusive latch and unpins the page. idempotent.
func (g *WriteGuard) Drop() {
	if !g.valid {
		return
	}
	g.valid = false
	g.m.descriptors[g.fid].contentLock.Unlock()
	g.m.UnpinPage(g.pid, false)
}
