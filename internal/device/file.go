// File: internal/device/file.go
package device

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

const (
	fileReadWrite  = os.O_RDWR
	fileCreateExcl = os.O_RDWR | os.O_CREATE | os.O_EXCL
)

// fileDevice backs a container with a regular file accessed through an
// afero filesystem. Reads and writes are full or failed: a short transfer
// inside the device bounds is reported as corruption, and any access past
// the end of the container fails before touching the file.
type fileDevice struct {
	mu     sync.RWMutex
	file   afero.File
	size   int64
	closed bool
}

// OpenFile opens an existing container file for reading and writing.
func OpenFile(fs afero.Fs, path string) (interfaces.BlockDevice, error) {
	file, err := fs.OpenFile(path, fileReadWrite, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open container file %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat container file %s: %w", path, err)
	}

	return &fileDevice{file: file, size: stat.Size()}, nil
}

// CreateFile creates a new container file of the given size, failing if a
// file already exists at path. The file is extended with zeros to its full
// length so every later access stays within allocated bounds.
func CreateFile(fs afero.Fs, path string, size int64) (interfaces.BlockDevice, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: container size must be positive, got %d", types.ErrInvalidArgument, size)
	}
	if exists, err := afero.Exists(fs, path); err != nil {
		return nil, fmt.Errorf("failed to check container path %s: %w", path, err)
	} else if exists {
		return nil, fmt.Errorf("%w: container file %s", types.ErrAlreadyExists, path)
	}

	file, err := fs.OpenFile(path, fileCreateExcl, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create container file %s: %w", path, err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		fs.Remove(path)
		return nil, fmt.Errorf("failed to allocate container file %s: %w", path, err)
	}

	return &fileDevice{file: file, size: size}, nil
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.checkRange(len(p), off); err != nil {
		return 0, err
	}
	n, err := d.file.ReadAt(p, off)
	if err != nil {
		return n, fmt.Errorf("%w: read of %d bytes at offset %d failed: %v", types.ErrCorrupt, len(p), off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: short read at offset %d: %d of %d bytes", types.ErrCorrupt, off, n, len(p))
	}
	return n, nil
}

func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkRange(len(p), off); err != nil {
		return 0, err
	}
	n, err := d.file.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("%w: write of %d bytes at offset %d failed: %v", types.ErrCorrupt, len(p), off, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: short write at offset %d: %d of %d bytes", types.ErrCorrupt, off, n, len(p))
	}
	return n, nil
}

func (d *fileDevice) checkRange(length int, off int64) error {
	if d.closed {
		return fmt.Errorf("%w: block device", types.ErrClosed)
	}
	if off < 0 || off+int64(length) > d.size {
		return fmt.Errorf("%w: access [%d, %d) outside device of %d bytes", types.ErrOutOfBounds, off, off+int64(length), d.size)
	}
	return nil
}

func (d *fileDevice) Size() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

func (d *fileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}
