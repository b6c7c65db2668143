package disk

import "testing"

// TestingNewFileManager initializes disk manager with file storage.
func TestingNewFileManager(t *testing.T) (*Manager, error) {
	// t.TempDir() removes the generated file after test is completed
	return NewManager(t.TempDir())
}

// TestingNewBufferManager initializes disk manager with buffer storage instead of
// file storage. This prevents unnecessary disk I/O.
func TestingNewBufferManager() (*Manager, error) {
	return newManager(bufferOpener{}, "")
}
