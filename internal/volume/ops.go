// File: internal/volume/ops.go
package volume

import (
	"errors"
	"io"

	"github.com/deploymenttheory/go-veracrypt/internal/fat32"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// List returns the entries of the directory at path, from cache when the
// directory was listed since the last mutation.
func (v *Volume) List(path string) ([]types.FileEntry, error) {
	if err := v.requireMounted(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	norm := fat32.NormalizePath(path)
	return v.caches.loadListing(norm, func() ([]types.FileEntry, error) {
		return v.fs.List(norm)
	})
}

// Stat returns the entry at path.
func (v *Volume) Stat(path string) (types.FileEntry, error) {
	if err := v.requireMounted(); err != nil {
		return types.FileEntry{}, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	norm := fat32.NormalizePath(path)
	if entry, ok := v.caches.stat(norm); ok {
		return entry, nil
	}
	entry, err := v.fs.Stat(norm)
	if err != nil {
		return types.FileEntry{}, err
	}
	v.caches.storeStat(entry)
	return entry, nil
}

// Exists reports whether path resolves.
func (v *Volume) Exists(path string) (bool, error) {
	_, err := v.Stat(path)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// Read returns the full content of the file at path.
func (v *Volume) Read(path string) ([]byte, error) {
	if err := v.requireMounted(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fs.Read(path)
}

// ReadRange returns length bytes of the file at path starting at offset.
func (v *Volume) ReadRange(path string, offset, length uint64) ([]byte, error) {
	if err := v.requireMounted(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fs.ReadRange(path, offset, length)
}

// Stream pipes the content of the file at path to sink.
func (v *Volume) Stream(path string, sink io.Writer) error {
	if err := v.requireMounted(); err != nil {
		return err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fs.Stream(path, sink)
}

// Write replaces the content of path with data, creating the file when it
// does not exist.
func (v *Volume) Write(path string, data []byte) error {
	return v.mutate(func() error {
		return v.fs.Write(path, data)
	})
}

// WriteStream replaces the content of path with size bytes from source.
func (v *Volume) WriteStream(path string, source io.Reader, size uint64, progress func(written uint64)) error {
	return v.mutate(func() error {
		return v.fs.WriteStream(path, source, size, progress)
	})
}

// CreateFile creates an empty file named name under parent.
func (v *Volume) CreateFile(parent, name string) error {
	return v.mutate(func() error {
		_, err := v.fs.CreateFile(parent, name)
		return err
	})
}

// CreateDirectory creates a directory named name under parent.
func (v *Volume) CreateDirectory(parent, name string) error {
	return v.mutate(func() error {
		_, err := v.fs.CreateDirectory(parent, name)
		return err
	})
}

// Delete removes the file at path, or the directory at path and
// everything beneath it.
func (v *Volume) Delete(path string) error {
	return v.mutate(func() error {
		return v.fs.Delete(path)
	})
}

// mutate runs fn under the exclusive lock and drops the caches afterwards
// even on failure, since a failed mutation may have partially landed.
func (v *Volume) mutate(fn func() error) error {
	if err := v.requireMounted(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	err := fn()
	v.caches.invalidate()
	return err
}

// FreeSpace estimates the free bytes in the data area. The figure comes
// from a full FAT scan the first time and is served from cache until the
// next mutation.
func (v *Volume) FreeSpace() (uint64, error) {
	if err := v.requireMounted(); err != nil {
		return 0, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	if free, ok := v.caches.freeSpace(); ok {
		return free, nil
	}
	free, err := v.fs.FreeSpace()
	if err != nil {
		return 0, err
	}
	v.caches.storeFreeSpace(free)
	return free, nil
}

// TotalSpace is the byte capacity of the data clusters.
func (v *Volume) TotalSpace() uint64 {
	if v.State() != StateMounted {
		return 0
	}
	return v.fs.TotalSpace()
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrNotADirectory)
}
