// File: internal/fat32/reader.go
package fat32

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// errSinkClosed marks a write failure on a streaming sink, which the
// stream API treats as normal completion.
var errSinkClosed = errors.New("stream sink closed")

// Resolve walks path component by component from the root directory and
// returns the matching entry. Matching is case-insensitive; the returned
// entry keeps the on-disk casing in Name and the caller's normalized path
// in Path.
func (fs *FS) Resolve(path string) (types.FileEntry, error) {
	norm := NormalizePath(path)
	if norm == "/" {
		return fs.RootEntry(), nil
	}

	current := fs.RootEntry()
	walked := ""
	for _, comp := range strings.Split(strings.TrimPrefix(norm, "/"), "/") {
		if comp == "" {
			continue
		}
		if !current.IsDirectory {
			return types.FileEntry{}, fmt.Errorf("%w: %s", types.ErrNotADirectory, current.Path)
		}

		dir, err := fs.loadDir(fs.dirCluster(current.FirstCluster))
		if err != nil {
			return types.FileEntry{}, err
		}
		found, err := dir.find(comp)
		if err != nil {
			return types.FileEntry{}, fmt.Errorf("%w: %s", types.ErrNotFound, norm)
		}

		walked = walked + "/" + strings.ToLower(found.entry.Name)
		current = found.entry
		current.Path = walked
	}
	return current, nil
}

// dirCluster maps a zero first-cluster field onto the root cluster, the
// FAT32 convention used by ".." entries of first-level directories.
func (fs *FS) dirCluster(c uint32) uint32 {
	if c == 0 {
		return fs.bs.RootDirCluster
	}
	return c
}

// List returns the entries of the directory at path.
func (fs *FS) List(path string) ([]types.FileEntry, error) {
	entry, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !entry.IsDirectory {
		return nil, fmt.Errorf("%w: %s", types.ErrNotADirectory, entry.Path)
	}

	dir, err := fs.loadDir(fs.dirCluster(entry.FirstCluster))
	if err != nil {
		return nil, err
	}
	entries, err := dir.list()
	if err != nil {
		return nil, err
	}

	base := entry.Path
	if base == "/" {
		base = ""
	}
	for i := range entries {
		entries[i].Path = base + "/" + strings.ToLower(entries[i].Name)
	}
	return entries, nil
}

// Stat returns the entry at path.
func (fs *FS) Stat(path string) (types.FileEntry, error) {
	return fs.Resolve(path)
}

// Exists reports whether path resolves.
func (fs *FS) Exists(path string) (bool, error) {
	_, err := fs.Resolve(path)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrNotADirectory)
}

// Read returns the whole content of the file at path.
func (fs *FS) Read(path string) ([]byte, error) {
	entry, err := fs.fileEntry(path)
	if err != nil {
		return nil, err
	}
	if entry.Size == 0 || entry.FirstCluster == 0 {
		return []byte{}, nil
	}

	chain, err := fs.table.WalkChain(entry.FirstCluster)
	if err != nil {
		return nil, err
	}

	cs := int(fs.bs.ClusterSize)
	buf := make([]byte, len(chain)*cs)
	if err := fs.readChainRuns(chain, 0, len(chain)-1, fs.cfg.ReadRunClusters, func(idx int, data []byte) error {
		copy(buf[idx*cs:], data)
		return nil
	}); err != nil {
		return nil, err
	}
	return buf[:entry.Size], nil
}

// ReadRange returns length bytes of the file starting at offset, touching
// only the clusters the window covers.
func (fs *FS) ReadRange(path string, offset, length uint64) ([]byte, error) {
	entry, err := fs.fileEntry(path)
	if err != nil {
		return nil, err
	}
	size := uint64(entry.Size)
	if offset > size {
		return nil, fmt.Errorf("%w: offset %d beyond file of %d bytes", types.ErrOutOfBounds, offset, size)
	}
	if length > size-offset {
		length = size - offset
	}
	if length == 0 {
		return []byte{}, nil
	}

	chain, err := fs.table.WalkChain(entry.FirstCluster)
	if err != nil {
		return nil, err
	}

	cs := uint64(fs.bs.ClusterSize)
	startIdx := int(offset / cs)
	endIdx := int((offset + length - 1) / cs)
	if endIdx >= len(chain) {
		return nil, fmt.Errorf("%w: file size %d exceeds cluster chain of %d clusters", types.ErrCorrupt, size, len(chain))
	}

	window := make([]byte, (endIdx-startIdx+1)*int(cs))
	if err := fs.readChainRuns(chain, startIdx, endIdx, fs.cfg.RangedRunClusters, func(idx int, data []byte) error {
		copy(window[(idx-startIdx)*int(cs):], data)
		return nil
	}); err != nil {
		return nil, err
	}

	lo := offset - uint64(startIdx)*cs
	return window[lo : lo+length], nil
}

// Stream pipes the file's content to sink run by run without holding the
// whole file in memory. A sink that stops accepting bytes ends the stream
// without error, matching a reader that closed its end of a pipe.
func (fs *FS) Stream(path string, sink io.Writer) error {
	entry, err := fs.fileEntry(path)
	if err != nil {
		return err
	}
	if entry.Size == 0 || entry.FirstCluster == 0 {
		return nil
	}

	chain, err := fs.table.WalkChain(entry.FirstCluster)
	if err != nil {
		return err
	}

	remaining := int(entry.Size)
	err = fs.readChainRuns(chain, 0, len(chain)-1, fs.cfg.StreamBatchClusters, func(idx int, data []byte) error {
		n := len(data)
		if n > remaining {
			n = remaining
		}
		if _, werr := sink.Write(data[:n]); werr != nil {
			return fmt.Errorf("%w: %v", errSinkClosed, werr)
		}
		remaining -= n
		return nil
	})
	if errors.Is(err, errSinkClosed) {
		return nil
	}
	return err
}

// fileEntry resolves path and insists on a regular file.
func (fs *FS) fileEntry(path string) (types.FileEntry, error) {
	entry, err := fs.Resolve(path)
	if err != nil {
		return types.FileEntry{}, err
	}
	if entry.IsDirectory {
		return types.FileEntry{}, fmt.Errorf("%w: %s", types.ErrNotAFile, entry.Path)
	}
	return entry, nil
}

// readChainRuns coalesces consecutive clusters of chain[start..end] into
// multi-sector reads of at most runCap clusters, handing each run's bytes
// to fn with the chain index it starts at.
func (fs *FS) readChainRuns(chain []uint32, start, end, runCap int, fn func(idx int, data []byte) error) error {
	if runCap < 1 {
		runCap = 1
	}
	spc := uint32(fs.bs.SectorsPerCluster)

	for i := start; i <= end; {
		j := i + 1
		for j <= end && chain[j] == chain[j-1]+1 && j-i < runCap {
			j++
		}
		data, err := fs.dev.ReadSectors(uint64(fs.bs.ClusterToSector(chain[i])), uint32(j-i)*spc)
		if err != nil {
			return err
		}
		if err := fn(i, data); err != nil {
			return err
		}
		i = j
	}
	return nil
}
