/*
Table is the disk extendible hash index over the buffer pool.

latching policy:
Mutations (Insert, Remove) take write guards on the whole descent, lookups
take read guards. A parent's guard is released only after the child's guard
is held (latch crabbing), so a concurrent split can never pull a page out
from under a traversal. Finer policies (optimistic descent with retry) exist
but are not worth it at this scale.

growth:
A full bucket splits by allocating a sibling bucket one local depth deeper
and redistributing entries on the newly significant hash bit. When the
bucket's local depth already equals the directory's global depth, the
directory doubles first; when the directory is at its own maximum depth the
insert fails. A split that leaves the target bucket full (all entries landed
on one side) simply splits again; the loop terminates because every round
consumes one more hash bit.

shrinking:
Removal that empties a bucket merges it with its split image when both sit
at the same local depth, then halves the directory for as long as every
active slot's local depth is below the global depth. The global depth never
drops below zero.
*/
package hash

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hmachida/minibase/storage/buffer"
	"github.com/hmachida/minibase/storage/page"
)

// Config carries the index parameters.
// zero values select the defaults noted on each field.
type Config struct {
	// KeySize is the fixed width of encoded keys in bytes. required.
	KeySize int
	// ValueSize is the fixed width of values in bytes. required.
	ValueSize int
	// Comparator orders keys. default: bytewise comparison.
	Comparator Comparator
	// HashFn hashes keys to 32 bits. default: xxhash32.
	// must be stable across restarts, the hash shapes the on-disk layout.
	HashFn HashFn
	// HeaderMaxDepth is how many top hash bits the header consumes.
	// default (and maximum): HeaderMaxDepth.
	HeaderMaxDepth uint32
	// DirectoryMaxDepth bounds every directory's global depth.
	// default (and maximum): DirectoryMaxDepth.
	DirectoryMaxDepth uint32
	// BucketMaxSize caps entries per bucket.
	// default: as many as fit into one page.
	BucketMaxSize uint32
}

// withDefaults fills the zero values and validates the result
func (cfg Config) withDefaults() (Config, error) {
	if cfg.KeySize <= 0 || cfg.ValueSize <= 0 {
		return cfg, errors.Errorf("invalid key/value sizes %d/%d", cfg.KeySize, cfg.ValueSize)
	}
	if cfg.Comparator == nil {
		cfg.Comparator = defaultComparator
	}
	if cfg.HashFn == nil {
		cfg.HashFn = defaultHashFn
	}
	if cfg.HeaderMaxDepth == 0 {
		cfg.HeaderMaxDepth = HeaderMaxDepth
	}
	if cfg.HeaderMaxDepth > HeaderMaxDepth {
		return cfg, errors.Errorf("header max depth %d above limit %d", cfg.HeaderMaxDepth, HeaderMaxDepth)
	}
	if cfg.DirectoryMaxDepth == 0 {
		cfg.DirectoryMaxDepth = DirectoryMaxDepth
	}
	if cfg.DirectoryMaxDepth > DirectoryMaxDepth {
		return cfg, errors.Errorf("directory max depth %d above limit %d", cfg.DirectoryMaxDepth, DirectoryMaxDepth)
	}
	fit := maxEntriesForSize(cfg.KeySize, cfg.ValueSize)
	if fit == 0 {
		return cfg, errors.Errorf("key/value sizes %d/%d do not fit a page", cfg.KeySize, cfg.ValueSize)
	}
	if cfg.BucketMaxSize == 0 || cfg.BucketMaxSize > fit {
		cfg.BucketMaxSize = fit
	}
	return cfg, nil
}

// Table is a disk extendible hash index
type Table struct {
	bm        *buffer.Manager
	headerPID page.PageID

	keySize           int
	valueSize         int
	cmp               Comparator
	hashFn            HashFn
	directoryMaxDepth uint32
	bucketMaxSize     uint32

	log *logrus.Entry
}

// NewTable creates a fresh index: allocates and formats the header page.
// the returned table's HeaderPageID identifies the index from now on.
func NewTable(bm *buffer.Manager, cfg Config) (*Table, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	hg, err := bm.NewPageGuardedWrite()
	if err != nil {
		return nil, errors.Wrap(err, "NewPageGuardedWrite failed")
	}
	headerPage{hg.Data()}.init(cfg.HeaderMaxDepth)
	headerPID := hg.PageID()
	hg.Drop()
	return newTable(bm, headerPID, cfg), nil
}

// OpenTable opens an existing index rooted at headerPID.
// cfg must match the configuration the index was created with; only the
// header depth is stored on disk, the rest is the caller's responsibility.
func OpenTable(bm *buffer.Manager, headerPID page.PageID, cfg Config) (*Table, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	hg, err := bm.FetchPageRead(headerPID)
	if err != nil {
		return nil, errors.Wrap(err, "FetchPageRead failed")
	}
	depth := headerPage{hg.Data()}.maxDepth()
	hg.Drop()
	if depth > HeaderMaxDepth {
		return nil, errors.Errorf("page %d is not an index header: depth %d", headerPID, depth)
	}
	return newTable(bm, headerPID, cfg), nil
}

func newTable(bm *buffer.Manager, headerPID page.PageID, cfg Config) *Table {
	return &Table{
		bm:                bm,
		headerPID:         headerPID,
		keySize:           cfg.KeySize,
		valueSize:         cfg.ValueSize,
		cmp:               cfg.Comparator,
		hashFn:            cfg.HashFn,
		directoryMaxDepth: cfg.DirectoryMaxDepth,
		bucketMaxSize:     cfg.BucketMaxSize,
		log:               logrus.WithField("component", "hash-index"),
	}
}

// HeaderPageID returns the page id of the index's header page
func (t *Table) HeaderPageID() page.PageID {
	return t.headerPID
}

func (t *Table) validateKey(key []byte) error {
	if len(key) != t.keySize {
		return errors.Errorf("key size %d, want %d", len(key), t.keySize)
	}
	return nil
}

func (t *Table) validateKV(key, value []byte) error {
	if err := t.validateKey(key); err != nil {
		return err
	}
	if len(value) != t.valueSize {
		return errors.Errorf("value size %d, want %d", len(value), t.valueSize)
	}
	return nil
}

func (t *Table) bucket(p page.PagePtr) bucketPage {
	return bucketPage{p: p, keySize: t.keySize, valueSize: t.valueSize}
}

// GetValue returns every value stored under the key. order is unspecified.
// a missing key yields an empty result, not an error.
func (t *Table) GetValue(key []byte) ([][]byte, error) {
	if err := t.validateKey(key); err != nil {
		return nil, err
	}
	h := t.hashFn(key)

	hg, err := t.bm.FetchPageRead(t.headerPID)
	if err != nil {
		return nil, errors.Wrap(err, "FetchPageRead failed")
	}
	hp := headerPage{hg.Data()}
	dpid := hp.directoryPageID(hp.hashToDirectoryIndex(h))
	if !dpid.IsValid() {
		hg.Drop()
		return nil, nil
	}
	dg, err := t.bm.FetchPageRead(dpid)
	hg.Drop()
	if err != nil {
		return nil, errors.Wrap(err, "FetchPageRead failed")
	}
	dp := directoryPage{dg.Data()}
	bpid := dp.bucketPageID(dp.hashToBucketIndex(h))
	if !bpid.IsValid() {
		dg.Drop()
		return nil, nil
	}
	bg, err := t.bm.FetchPageRead(bpid)
	dg.Drop()
	if err != nil {
		return nil, errors.Wrap(err, "FetchPageRead failed")
	}
	defer bg.Drop()

	bp := t.bucket(bg.Data())
	var values [][]byte
	for i := uint32(0); i < bp.size(); i++ {
		if t.cmp(bp.keyAt(i), key) == 0 {
			v := make([]byte, t.valueSize)
			copy(v, bp.valueAt(i))
			values = append(values, v)
		}
	}
	return values, nil
}

// Insert stores the (key, value) pair, splitting buckets and growing the
// directory as needed. returns false when the key is already present or
// when the directory is full and cannot split further.
func (t *Table) Insert(key, value []byte) (bool, error) {
	if err := t.validateKV(key, value); err != nil {
		return false, err
	}
	h := t.hashFn(key)

	hg, err := t.bm.FetchPageWrite(t.headerPID)
	if err != nil {
		return false, errors.Wrap(err, "FetchPageWrite failed")
	}
	hp := headerPage{hg.Data()}
	dirIdx := hp.hashToDirectoryIndex(h)

	var dg buffer.WriteGuard
	if dpid := hp.directoryPageID(dirIdx); dpid.IsValid() {
		dg, err = t.bm.FetchPageWrite(dpid)
		if err != nil {
			hg.Drop()
			return false, errors.Wrap(err, "FetchPageWrite failed")
		}
	} else {
		dg, err = t.bm.NewPageGuardedWrite()
		if err != nil {
			hg.Drop()
			return false, errors.Wrap(err, "NewPageGuardedWrite failed")
		}
		directoryPage{dg.Data()}.init(t.directoryMaxDepth)
		hp.setDirectoryPageID(dirIdx, dg.PageID())
	}
	// directory latched; the header is not needed anymore
	hg.Drop()
	defer func() { dg.Drop() }()
	dp := directoryPage{dg.Data()}

	bucketIdx := dp.hashToBucketIndex(h)
	var bg buffer.WriteGuard
	if bpid := dp.bucketPageID(bucketIdx); bpid.IsValid() {
		bg, err = t.bm.FetchPageWrite(bpid)
		if err != nil {
			return false, errors.Wrap(err, "FetchPageWrite failed")
		}
	} else {
		// only a fresh directory has missing buckets; install the first one
		// into every active slot (they all share local depth zero)
		bg, err = t.bm.NewPageGuardedWrite()
		if err != nil {
			return false, errors.Wrap(err, "NewPageGuardedWrite failed")
		}
		t.bucket(bg.Data()).init(t.bucketMaxSize)
		for i := uint32(0); i < dp.size(); i++ {
			dp.setBucketPageID(i, bg.PageID())
			dp.setLocalDepth(i, 0)
		}
	}
	defer func() { bg.Drop() }()
	bp := t.bucket(bg.Data())

	// duplicate keys are rejected before any structural change
	if _, ok := bp.lookup(key, t.cmp); ok {
		return false, nil
	}

	for bp.isFull() {
		if dp.localDepth(bucketIdx) == dp.globalDepth() {
			if !dp.canGrow() {
				t.log.WithField("global_depth", dp.globalDepth()).Debug("directory full")
				return false, nil
			}
			dp.incrGlobalDepth()
			bucketIdx = dp.hashToBucketIndex(h)
		}

		// split: allocate the sibling one bit deeper and redistribute
		ld := dp.localDepth(bucketIdx)
		oldPID := bg.PageID()
		ng, err := t.bm.NewPageGuardedWrite()
		if err != nil {
			return false, errors.Wrap(err, "NewPageGuardedWrite failed")
		}
		np := t.bucket(ng.Data())
		np.init(t.bucketMaxSize)

		for i := uint32(0); i < dp.size(); i++ {
			if dp.bucketPageID(i) == oldPID {
				if i&(1<<ld) != 0 {
					dp.setBucketPageID(i, ng.PageID())
				}
				dp.setLocalDepth(i, uint8(ld+1))
			}
		}
		for i := uint32(0); i < bp.size(); {
			if t.hashFn(bp.keyAt(i))&(1<<ld) != 0 {
				np.appendEntry(bp.keyAt(i), bp.valueAt(i))
				bp.removeAt(i)
				// removeAt swapped another entry into i; re-check it
				continue
			}
			i++
		}

		// follow the key into whichever of the two buckets it hashes to now.
		// when every entry stayed on the other side the target may still be
		// full, and the loop splits again on the next bit.
		bucketIdx = dp.hashToBucketIndex(h)
		if dp.bucketPageID(bucketIdx) == ng.PageID() {
			bg.Drop()
			bg, bp = ng, np
		} else {
			ng.Drop()
		}
	}

	if !bp.insert(key, value, t.cmp) {
		return false, errors.Errorf("bucket insert failed for page %d", bg.PageID())
	}
	return true, nil
}

// Remove deletes every entry under the key. returns false when the key is
// not present. an emptied bucket is merged with its split image and the
// directory shrinks as far as the local depths allow.
func (t *Table) Remove(key []byte) (bool, error) {
	if err := t.validateKey(key); err != nil {
		return false, err
	}
	h := t.hashFn(key)

	hg, err := t.bm.FetchPageWrite(t.headerPID)
	if err != nil {
		return false, errors.Wrap(err, "FetchPageWrite failed")
	}
	hp := headerPage{hg.Data()}
	dpid := hp.directoryPageID(hp.hashToDirectoryIndex(h))
	if !dpid.IsValid() {
		hg.Drop()
		return false, nil
	}
	dg, err := t.bm.FetchPageWrite(dpid)
	hg.Drop()
	if err != nil {
		return false, errors.Wrap(err, "FetchPageWrite failed")
	}
	defer func() { dg.Drop() }()
	dp := directoryPage{dg.Data()}

	bucketIdx := dp.hashToBucketIndex(h)
	bpid := dp.bucketPageID(bucketIdx)
	if !bpid.IsValid() {
		return false, nil
	}
	bg, err := t.bm.FetchPageWrite(bpid)
	if err != nil {
		return false, errors.Wrap(err, "FetchPageWrite failed")
	}
	defer func() { bg.Drop() }()
	bp := t.bucket(bg.Data())

	if !bp.removeKey(key, t.cmp) {
		return false, nil
	}

	// merge emptied buckets upwards. each round retires one bucket page and
	// shallows the slots by one bit; a merge result that is still empty
	// merges again.
	for bp.isEmpty() && dp.localDepth(bucketIdx) > 0 {
		ld := dp.localDepth(bucketIdx)
		imageIdx := dp.splitImageIndex(bucketIdx)
		if dp.localDepth(imageIdx) != ld {
			break
		}
		emptyPID := bg.PageID()
		keepPID := dp.bucketPageID(imageIdx)
		if keepPID == emptyPID {
			break
		}
		for i := uint32(0); i < dp.size(); i++ {
			pid := dp.bucketPageID(i)
			if pid == emptyPID {
				dp.setBucketPageID(i, keepPID)
			}
			if pid == emptyPID || pid == keepPID {
				dp.setLocalDepth(i, uint8(ld-1))
			}
		}
		bg.Drop()
		if !t.bm.DeletePage(emptyPID) {
			// a concurrent reader still pins the page. it is unreachable from
			// the directory now, so leaking it is safe, just wasteful.
			t.log.WithField("page_id", emptyPID).Warn("could not free merged bucket page")
		}
		bucketIdx = dp.hashToBucketIndex(h)
		bg, err = t.bm.FetchPageWrite(keepPID)
		if err != nil {
			return false, errors.Wrap(err, "FetchPageWrite failed")
		}
		bp = t.bucket(bg.Data())
	}

	for dp.canShrink() {
		dp.decrGlobalDepth()
	}
	return true, nil
}

// VerifyIntegrity checks the directory invariants of the whole index.
// meant for tests and debugging; a violation means a bug in this package.
func (t *Table) VerifyIntegrity() error {
	hg, err := t.bm.FetchPageRead(t.headerPID)
	if err != nil {
		return errors.Wrap(err, "FetchPageRead failed")
	}
	defer hg.Drop()
	hp := headerPage{hg.Data()}

	for i := uint32(0); i < hp.maxSize(); i++ {
		dpid := hp.directoryPageID(i)
		if !dpid.IsValid() {
			continue
		}
		dg, err := t.bm.FetchPageRead(dpid)
		if err != nil {
			return errors.Wrap(err, "FetchPageRead failed")
		}
		err = verifyDirectory(directoryPage{dg.Data()})
		dg.Drop()
		if err != nil {
			return errors.Wrapf(err, "directory %d (page %d)", i, dpid)
		}
	}
	return nil
}

// verifyDirectory checks the depth and sharing invariants of one directory
func verifyDirectory(dp directoryPage) error {
	g := dp.globalDepth()
	if g > dp.maxDepth() {
		return errors.Errorf("global depth %d above max depth %d", g, dp.maxDepth())
	}

	// count how many slots reference each bucket page; a bucket at local
	// depth ld must be referenced by exactly 2^(g-ld) slots, all agreeing
	// with the canonical slot for their low bits
	refs := make(map[page.PageID]uint32)
	for i := uint32(0); i < dp.size(); i++ {
		ld := dp.localDepth(i)
		if ld > g {
			return errors.Errorf("slot %d: local depth %d above global depth %d", i, ld, g)
		}
		pid := dp.bucketPageID(i)
		if !pid.IsValid() {
			continue
		}
		canonical := i & ((1 << ld) - 1)
		if dp.bucketPageID(canonical) != pid {
			return errors.Errorf("slot %d and canonical slot %d reference different buckets", i, canonical)
		}
		if dp.localDepth(canonical) != ld {
			return errors.Errorf("slot %d and canonical slot %d disagree on local depth", i, canonical)
		}
		refs[pid]++
	}
	for i := uint32(0); i < dp.size(); i++ {
		pid := dp.bucketPageID(i)
		if !pid.IsValid() {
			continue
		}
		want := uint32(1) << (g - dp.localDepth(i))
		if refs[pid] != want {
			return errors.Errorf("bucket page %d referenced by %d slots, want %d", pid, refs[pid], want)
		}
	}
	return nil
}
