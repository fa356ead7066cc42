// File: internal/interfaces/filesystem.go
package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// FileSystemReader provides read access to the filesystem inside a mounted
// volume. Paths are slash-separated and rooted at "/"; lookup is
// case-insensitive, matching FAT semantics.
type FileSystemReader interface {
	// List returns the entries of a directory, excluding "." and "..".
	List(path string) ([]types.FileEntry, error)

	// Stat returns the entry for a single path.
	Stat(path string) (types.FileEntry, error)

	// Exists reports whether a path resolves.
	Exists(path string) (bool, error)

	// Read returns the full content of a file.
	Read(path string) ([]byte, error)

	// ReadRange returns length bytes of a file starting at offset.
	ReadRange(path string, offset, length uint64) ([]byte, error)

	// Stream writes the full content of a file to sink without
	// materialising it. A sink that stops accepting data ends the stream
	// without error.
	Stream(path string, sink io.Writer) error
}

// FileSystemWriter provides mutation access to the filesystem inside a
// mounted volume.
type FileSystemWriter interface {
	// Write replaces the content of path with data, creating the file if
	// it does not exist.
	Write(path string, data []byte) error

	// WriteStream replaces the content of path with size bytes drawn from
	// source. progress, when non-nil, receives the running byte count.
	WriteStream(path string, source io.Reader, size uint64, progress func(written uint64)) error

	// CreateFile creates an empty file named name under parent.
	CreateFile(parent, name string) error

	// CreateDirectory creates a directory named name under parent.
	CreateDirectory(parent, name string) error

	// Delete removes a file, or a directory and everything beneath it.
	Delete(path string) error
}

// SpaceReporter exposes capacity figures for a mounted volume.
type SpaceReporter interface {
	// FreeSpace returns an estimate of the free bytes in the data area.
	FreeSpace() (uint64, error)

	// TotalSpace returns the usable size of the data area in bytes.
	TotalSpace() uint64
}

// Volume is a fully mounted container: filesystem access plus lifecycle.
// Close zeroises all key material before releasing the device.
type Volume interface {
	FileSystemReader
	FileSystemWriter
	SpaceReporter
	io.Closer
}
