/*
Disk extendible hash index.

The index is a three-level structure living entirely in buffer pool pages:
- one header page fans the top bits of the key hash out to directory pages
- each directory page maps the low `global depth` bits of the hash to bucket pages
- each bucket page stores fixed-size (key, value) pairs

Buckets split on overflow by doubling directory regions (extendible hashing),
and merge back when emptied by removals. All pages are reached through buffer
guards, so every traversal holds the right latch and every pin is released on
every exit path.
*/
package hash

import (
	"bytes"

	"github.com/OneOfOne/xxhash"
)

// Comparator compares two encoded keys.
// returns a negative value when a sorts before b, zero when equal.
type Comparator func(a, b []byte) int

// defaultComparator compares keys bytewise
func defaultComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}

// HashFn hashes an encoded key to 32 bits
type HashFn func([]byte) uint32

// defaultHashFn is xxhash32. fast, well distributed, and stable across runs,
// which matters because the hash values are baked into the on-disk directory layout.
func defaultHashFn(key []byte) uint32 {
	return xxhash.Checksum32(key)
}
