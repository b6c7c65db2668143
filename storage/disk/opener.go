/*
This file defines opener interface and its implementations.
Opener opens the database file's storage. The implementations are:
- fileOpener: open and return file.
- bufferOpener: open and return byte slice. this is intended to be used in test.
*/
package disk

import (
	"os"

	"github.com/pkg/errors"
)

// opener opens storage
type opener interface {
	open(path string) (storage, error)
}

// fileOpener opens file
type fileOpener struct{}

// open opens and returns the database file
func (fo fileOpener) open(path string) (storage, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	return fileStorage{fd}, nil
}

// bufferOpener opens buffer
type bufferOpener struct{}

// open returns fresh on-memory storage
func (bo bufferOpener) open(path string) (storage, error) {
	return newBufferStorage(), nil
}
