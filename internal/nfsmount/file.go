package nfsmount

import (
	"bytes"

	billy "github.com/go-git/go-billy/v5"
)

// diskFile exposes a real workspace file under its mount path. Writes are
// refused.
type diskFile struct {
	billy.File
	name string
}

func (f *diskFile) Name() string              { return f.name }
func (f *diskFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *diskFile) Truncate(int64) error      { return errReadOnly }

// exportFile serves a snapshot of the tree export taken at open time.
type exportFile struct {
	*bytes.Reader
	name string
}

func newExportFile(name string, data []byte) *exportFile {
	return &exportFile{Reader: bytes.NewReader(data), name: name}
}

func (f *exportFile) Name() string              { return f.name }
func (f *exportFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *exportFile) Truncate(int64) error      { return errReadOnly }
func (f *exportFile) Lock() error               { return nil }
func (f *exportFile) Unlock() error             { return nil }
func (f *exportFile) Close() error              { return nil }
