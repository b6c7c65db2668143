package hash

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hmachida/minibase/storage/buffer"
)

// TestingNewTable initializes an index over an in-memory buffer pool
func TestingNewTable(cfg Config) (*Table, *buffer.Manager, error) {
	// a pool large enough that index growth never starves for frames,
	// small enough that long tests still exercise eviction
	bm, err := buffer.TestingNewManagerWithSize(16, 2)
	if err != nil {
		return nil, nil, errors.Wrap(err, "buffer.TestingNewManagerWithSize failed")
	}
	t, err := NewTable(bm, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "NewTable failed")
	}
	return t, bm, nil
}

// testingUint32Key encodes an integer as a fixed 4-byte key or value
func testingUint32Key(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// testingIdentityHash hashes a 4-byte key to its own integer value.
// tests use it to steer keys into specific buckets.
func testingIdentityHash(key []byte) uint32 {
	return binary.LittleEndian.Uint32(key)
}

// testingGlobalDepth reads the global depth of the directory responsible for
// the hash value
func (t *Table) testingGlobalDepth(h uint32) (uint32, error) {
	hg, err := t.bm.FetchPageRead(t.headerPID)
	if err != nil {
		return 0, errors.Wrap(err, "FetchPageRead failed")
	}
	hp := headerPage{hg.Data()}
	dpid := hp.directoryPageID(hp.hashToDirectoryIndex(h))
	hg.Drop()
	if !dpid.IsValid() {
		return 0, errors.New("no directory for hash")
	}
	dg, err := t.bm.FetchPageRead(dpid)
	if err != nil {
		return 0, errors.Wrap(err, "FetchPageRead failed")
	}
	defer dg.Drop()
	return directoryPage{dg.Data()}.globalDepth(), nil
}
