package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hmachida/minibase/storage/page"
)

func TestHeaderPageInit(t *testing.T) {
	hp := headerPage{page.NewPagePtr()}
	hp.init(2)

	assert.Equal(t, uint32(2), hp.maxDepth())
	assert.Equal(t, uint32(4), hp.maxSize())
	for i := uint32(0); i < hp.maxSize(); i++ {
		assert.Equal(t, page.InvalidPageID, hp.directoryPageID(i))
	}
}

func TestHeaderHashToDirectoryIndex(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth uint32
		hash     uint32
		expected uint32
	}{
		{
			name:     "depth 0 maps everything to slot 0",
			maxDepth: 0,
			hash:     0xffffffff,
			expected: 0,
		},
		{
			name:     "top bits select the slot",
			maxDepth: 2,
			hash:     0xc0000000,
			expected: 3,
		},
		{
			name:     "low bits are ignored",
			maxDepth: 2,
			hash:     0x3fffffff,
			expected: 0,
		},
		{
			name:     "depth 9",
			maxDepth: 9,
			hash:     0x80000000,
			expected: 1 << 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp := headerPage{page.NewPagePtr()}
			hp.init(tt.maxDepth)
			assert.Equal(t, tt.expected, hp.hashToDirectoryIndex(tt.hash))
		})
	}
}

func TestHeaderSetDirectoryPageID(t *testing.T) {
	hp := headerPage{page.NewPagePtr()}
	hp.init(3)

	hp.setDirectoryPageID(5, page.PageID(42))
	assert.Equal(t, page.PageID(42), hp.directoryPageID(5))
	// neighbors untouched
	assert.Equal(t, page.InvalidPageID, hp.directoryPageID(4))
	assert.Equal(t, page.InvalidPageID, hp.directoryPageID(6))
}
