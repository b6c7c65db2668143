package buffer

import (
	"github.com/pkg/errors"

	"github.com/hmachida/minibase/storage/disk"
)

const (
	// pool dimensions small enough to force evictions in test
	testingPoolSize  = 10
	testingReplacerK = 2
)

// TestingNewManager initializes the buffer pool manager over in-memory storage
func TestingNewManager() (*Manager, error) {
	return TestingNewManagerWithSize(testingPoolSize, testingReplacerK)
}

// TestingNewManagerWithSize initializes the buffer pool manager over in-memory
// storage with the given pool dimensions
func TestingNewManagerWithSize(poolSize, replacerK int) (*Manager, error) {
	dm, err := disk.TestingNewBufferManager()
	if err != nil {
		return nil, errors.Wrap(err, "disk.TestingNewBufferManager failed")
	}
	return NewManager(dm, poolSize, replacerK)
}
