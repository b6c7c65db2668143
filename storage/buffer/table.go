/*
This is the page table (just a simple hash map).
It maps the id of each resident page to the frame holding it.
The table is protected by the manager's pool mutex, so the type itself
carries no lock.
*/
package buffer

import "github.com/hmachida/minibase/storage/page"

// pageTable is mapping from page id to frame id
type pageTable struct {
	table map[page.PageID]FrameID
}

// newPageTable initializes the page table
func newPageTable(poolSize int) pageTable {
	return pageTable{
		table: make(map[page.PageID]FrameID, poolSize),
	}
}

// get returns the frame holding the page, if resident
func (pt pageTable) get(pid page.PageID) (FrameID, bool) {
	fid, ok := pt.table[pid]
	return fid, ok
}

// insert records that the page is resident in the frame
func (pt pageTable) insert(pid page.PageID, fid FrameID) {
	pt.table[pid] = fid
}

// delete removes the page's entry
func (pt pageTable) delete(pid page.PageID) {
	delete(pt.table, pid)
}

// len returns the number of resident pages
func (pt pageTable) len() int {
	return len(pt.table)
}
