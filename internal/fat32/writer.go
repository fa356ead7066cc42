// File: internal/fat32/writer.go
package fat32

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// CreateFile adds an empty file entry under the parent directory. The new
// file has no cluster chain until the first write.
func (fs *FS) CreateFile(parentPath, name string) (types.FileEntry, error) {
	return fs.createEntry(parentPath, name, false)
}

// CreateDirectory adds a directory under the parent: one zeroed cluster
// carrying the "." and ".." entries, then the entry in the parent.
func (fs *FS) CreateDirectory(parentPath, name string) (types.FileEntry, error) {
	return fs.createEntry(parentPath, name, true)
}

func (fs *FS) createEntry(parentPath, name string, isDir bool) (types.FileEntry, error) {
	if err := ValidateName(name); err != nil {
		return types.FileEntry{}, err
	}
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return types.FileEntry{}, err
	}
	if !parent.IsDirectory {
		return types.FileEntry{}, fmt.Errorf("%w: %s", types.ErrNotADirectory, parent.Path)
	}

	dir, err := fs.loadDir(fs.dirCluster(parent.FirstCluster))
	if err != nil {
		return types.FileEntry{}, err
	}
	if _, err := dir.find(name); err == nil {
		return types.FileEntry{}, fmt.Errorf("%w: %s", types.ErrAlreadyExists, name)
	} else if !errors.Is(err, types.ErrNotFound) {
		return types.FileEntry{}, err
	}

	var firstCluster uint32
	attr := byte(types.AttrArchive)
	if isDir {
		attr = types.AttrDirectory
		firstCluster, err = fs.newDirectoryCluster(fs.dirCluster(parent.FirstCluster))
		if err != nil {
			return types.FileEntry{}, err
		}
	}

	now := time.Now()
	if err := fs.insertEntry(dir, name, attr, firstCluster, 0, now); err != nil {
		return types.FileEntry{}, err
	}

	base := NormalizePath(parent.Path)
	if base == "/" {
		base = ""
	}
	return types.FileEntry{
		Name:         name,
		Path:         base + "/" + NormalizePath(name)[1:],
		IsDirectory:  isDir,
		LastModified: now,
		FirstCluster: firstCluster,
	}, nil
}

// newDirectoryCluster allocates and initialises the first cluster of a new
// directory. The ".." entry stores cluster 0 when the parent is the root.
func (fs *FS) newDirectoryCluster(parentCluster uint32) (uint32, error) {
	chain, err := fs.table.Allocate(1)
	if err != nil {
		return 0, err
	}
	c := chain[0]

	dotParent := parentCluster
	if dotParent == fs.bs.RootDirCluster {
		dotParent = 0
	}

	now := time.Now()
	var dot, dotdot [11]byte
	copy(dot[:], ".          ")
	copy(dotdot[:], "..         ")

	cluster := make([]byte, fs.bs.ClusterSize)
	copy(cluster[0:], encodeShortEntry(&dot, types.AttrDirectory, c, 0, now))
	copy(cluster[types.DirEntrySize:], encodeShortEntry(&dotdot, types.AttrDirectory, dotParent, 0, now))

	if err := fs.dev.WriteSectors(uint64(fs.bs.ClusterToSector(c)), cluster); err != nil {
		return 0, err
	}
	return c, nil
}

// insertEntry emits the LFN sequence and 8.3 entry for a new child into a
// free slot run of the loaded directory.
func (fs *FS) insertEntry(dir *dirBuf, name string, attr byte, firstCluster, size uint32, modified time.Time) error {
	short, needLFN := shortNameBasis(name)
	used, err := dir.shortNames()
	if err != nil {
		return err
	}
	if used[short] {
		base := short
		for n := 1; ; n++ {
			short = base
			applyNumericTail(&short, n)
			if !used[short] {
				break
			}
			if n > 9999 {
				return fmt.Errorf("%w: no free short name for %q", types.ErrAlreadyExists, name)
			}
		}
		needLFN = true
	}

	slots := 1
	if needLFN {
		slots += lfnEntryCount(name)
	}

	start, err := dir.findFreeRun(slots)
	if err != nil {
		return err
	}

	if needLFN {
		lfn := encodeLFNEntries(name, lfnChecksum(&short))
		for i := 0; i < slots-1; i++ {
			dir.setEntry(start+entryLoc(i), lfn[i*types.DirEntrySize:(i+1)*types.DirEntrySize])
		}
	}
	dir.setEntry(start+entryLoc(slots-1), encodeShortEntry(&short, attr, firstCluster, size, modified))

	return dir.flush()
}

// Write replaces the content of the file at path, creating the file when
// it does not exist. The old chain is freed first, then a fresh chain is
// linked, the directory entry is updated, and the payload lands last.
func (fs *FS) Write(path string, data []byte) error {
	chain, dir, found, err := fs.prepareWrite(path, uint64(len(data)))
	if err != nil {
		return err
	}
	if err := fs.updateEntryForWrite(dir, found, chain[0], uint32(len(data))); err != nil {
		return err
	}
	return fs.writeChainPayload(chain, data)
}

// WriteStream writes size bytes pulled from source, in batches bounded by
// the streaming cluster cap, reporting progress after each batch.
func (fs *FS) WriteStream(path string, source io.Reader, size uint64, progress func(written uint64)) error {
	if size > 0xFFFFFFFF {
		return fmt.Errorf("%w: file size %d exceeds the FAT32 limit", types.ErrInvalidArgument, size)
	}

	chain, dir, found, err := fs.prepareWrite(path, size)
	if err != nil {
		return err
	}
	if err := fs.updateEntryForWrite(dir, found, chain[0], uint32(size)); err != nil {
		return err
	}

	cs := int(fs.bs.ClusterSize)
	batchClusters := fs.cfg.StreamBatchClusters
	if batchClusters < 1 {
		batchClusters = 1
	}

	buf := make([]byte, batchClusters*cs)
	var written uint64
	idx := 0
	for written < size {
		want := uint64(len(buf))
		if rest := size - written; rest < want {
			want = rest
		}
		if _, err := io.ReadFull(source, buf[:want]); err != nil {
			return fmt.Errorf("streaming source ended early at %d of %d bytes: %w", written, size, err)
		}

		n := (int(want) + cs - 1) / cs
		padded := buf[:n*cs]
		for i := int(want); i < len(padded); i++ {
			padded[i] = 0
		}
		if err := fs.writeClusterRun(chain[idx:idx+n], padded); err != nil {
			return err
		}
		idx += n
		written += want
		if progress != nil {
			progress(written)
		}
	}
	return nil
}

// prepareWrite resolves or creates the target entry, frees its previous
// chain, and allocates the new one.
func (fs *FS) prepareWrite(path string, size uint64) ([]uint32, *dirBuf, *foundEntry, error) {
	if size > 0xFFFFFFFF {
		return nil, nil, nil, fmt.Errorf("%w: file size %d exceeds the FAT32 limit", types.ErrInvalidArgument, size)
	}

	parentPath, name, err := SplitPath(path)
	if err != nil {
		return nil, nil, nil, err
	}
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if !parent.IsDirectory {
		return nil, nil, nil, fmt.Errorf("%w: %s", types.ErrNotADirectory, parent.Path)
	}

	dir, err := fs.loadDir(fs.dirCluster(parent.FirstCluster))
	if err != nil {
		return nil, nil, nil, err
	}

	found, err := dir.find(name)
	if errors.Is(err, types.ErrNotFound) {
		if verr := ValidateName(name); verr != nil {
			return nil, nil, nil, verr
		}
		if ierr := fs.insertEntry(dir, name, types.AttrArchive, 0, 0, time.Now()); ierr != nil {
			return nil, nil, nil, ierr
		}
		dir, err = fs.loadDir(fs.dirCluster(parent.FirstCluster))
		if err != nil {
			return nil, nil, nil, err
		}
		found, err = dir.find(name)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if found.entry.IsDirectory {
		return nil, nil, nil, fmt.Errorf("%w: %s", types.ErrNotAFile, path)
	}

	if found.entry.FirstCluster != 0 {
		if err := fs.table.FreeChain(found.entry.FirstCluster); err != nil {
			return nil, nil, nil, err
		}
	}

	cs := uint64(fs.bs.ClusterSize)
	count := int((size + cs - 1) / cs)
	if count == 0 {
		count = 1
	}
	chain, err := fs.table.Allocate(count)
	if err != nil {
		return nil, nil, nil, err
	}
	return chain, dir, found, nil
}

// updateEntryForWrite patches the found 8.3 entry in place with the new
// first cluster, size, and write time.
func (fs *FS) updateEntryForWrite(dir *dirBuf, found *foundEntry, firstCluster, size uint32) error {
	entry := dir.entry(found.loc)
	binary.LittleEndian.PutUint16(entry[types.DirOfsFirstClusterHi:], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(entry[types.DirOfsFirstClusterLo:], uint16(firstCluster))
	binary.LittleEndian.PutUint32(entry[types.DirOfsFileSize:], size)
	date, tod := EncodeTimestamp(time.Now())
	binary.LittleEndian.PutUint16(entry[types.DirOfsWriteTime:], tod)
	binary.LittleEndian.PutUint16(entry[types.DirOfsWriteDate:], date)
	dir.markDirty(found.loc)
	return dir.flush()
}

// writeChainPayload spreads data over the chain, zero-padding the final
// cluster.
func (fs *FS) writeChainPayload(chain []uint32, data []byte) error {
	cs := int(fs.bs.ClusterSize)
	padded := data
	if len(data)%cs != 0 || len(data) == 0 {
		padded = make([]byte, len(chain)*cs)
		copy(padded, data)
	}
	return fs.writeClusterRun(chain, padded)
}

// writeClusterRun writes cluster-aligned data across the given clusters,
// coalescing contiguous clusters into single multi-sector writes.
func (fs *FS) writeClusterRun(chain []uint32, data []byte) error {
	cs := int(fs.bs.ClusterSize)
	runCap := fs.cfg.StreamBatchClusters
	if runCap < 1 {
		runCap = 1
	}

	for i := 0; i < len(chain); {
		j := i + 1
		for j < len(chain) && chain[j] == chain[j-1]+1 && j-i < runCap {
			j++
		}
		sector := uint64(fs.bs.ClusterToSector(chain[i]))
		if err := fs.dev.WriteSectors(sector, data[i*cs:j*cs]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// Delete removes the entry at path, recursing through directories first.
func (fs *FS) Delete(path string) error {
	norm := NormalizePath(path)
	if norm == "/" {
		return fmt.Errorf("%w: cannot delete the root directory", types.ErrInvalidArgument)
	}

	entry, err := fs.Resolve(norm)
	if err != nil {
		return err
	}

	if entry.IsDirectory {
		children, err := fs.List(norm)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := fs.Delete(child.Path); err != nil {
				return err
			}
		}
	}

	parentPath, name, err := SplitPath(norm)
	if err != nil {
		return err
	}
	parent, err := fs.Resolve(parentPath)
	if err != nil {
		return err
	}

	dir, err := fs.loadDir(fs.dirCluster(parent.FirstCluster))
	if err != nil {
		return err
	}
	found, err := dir.find(name)
	if err != nil {
		return err
	}

	// Erase the LFN run first, then the 8.3 entry that anchors it.
	if found.lfnStart >= 0 {
		for loc := found.lfnStart; loc < found.loc; loc++ {
			dir.entry(loc)[0] = types.DirEntryDeleted
			dir.markDirty(loc)
		}
	}
	dir.entry(found.loc)[0] = types.DirEntryDeleted
	dir.markDirty(found.loc)
	if err := dir.flush(); err != nil {
		return err
	}

	if found.entry.FirstCluster != 0 {
		return fs.table.FreeChain(found.entry.FirstCluster)
	}
	return nil
}
