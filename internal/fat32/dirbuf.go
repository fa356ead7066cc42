// File: internal/fat32/dirbuf.go
package fat32

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// dirBuf holds one directory's chain and cluster contents in memory so
// scans and mutations work on a flat byte view. Mutations mark the
// affected cluster dirty; flush writes only dirty clusters back.
type dirBuf struct {
	fs    *FS
	chain []uint32
	data  []byte
	dirty map[int]bool
}

// entryLoc addresses one 32-byte slot as an index into the flat view.
type entryLoc int

func (fs *FS) loadDir(firstCluster uint32) (*dirBuf, error) {
	chain, err := fs.table.WalkChain(firstCluster)
	if err != nil {
		return nil, err
	}

	cs := int(fs.bs.ClusterSize)
	spc := uint32(fs.bs.SectorsPerCluster)
	data := make([]byte, len(chain)*cs)

	// Coalesce consecutive clusters into one read per run.
	for i := 0; i < len(chain); {
		j := i + 1
		for j < len(chain) && chain[j] == chain[j-1]+1 && j-i < fs.cfg.ReadRunClusters {
			j++
		}
		sector := uint64(fs.bs.ClusterToSector(chain[i]))
		if err := fs.dev.ReadSectorsInto(data[i*cs:j*cs], sector, uint32(j-i)*spc); err != nil {
			return nil, err
		}
		i = j
	}

	return &dirBuf{fs: fs, chain: chain, data: data, dirty: make(map[int]bool)}, nil
}

func (d *dirBuf) clusterSize() int {
	return int(d.fs.bs.ClusterSize)
}

func (d *dirBuf) entriesPerCluster() int {
	return d.clusterSize() / types.DirEntrySize
}

func (d *dirBuf) totalEntries() int {
	return len(d.data) / types.DirEntrySize
}

func (d *dirBuf) entry(loc entryLoc) []byte {
	return d.data[int(loc)*types.DirEntrySize : (int(loc)+1)*types.DirEntrySize]
}

func (d *dirBuf) markDirty(loc entryLoc) {
	d.dirty[int(loc)/d.entriesPerCluster()] = true
}

// flush writes every dirty cluster back through the sector device.
func (d *dirBuf) flush() error {
	cs := d.clusterSize()
	for idx := range d.dirty {
		sector := uint64(d.fs.bs.ClusterToSector(d.chain[idx]))
		if err := d.fs.dev.WriteSectors(sector, d.data[idx*cs:(idx+1)*cs]); err != nil {
			return err
		}
	}
	d.dirty = make(map[int]bool)
	return nil
}

// appendCluster grows the directory by one zeroed cluster and returns the
// flat index of its first entry slot. The new cluster is written out
// immediately so readers of the extended chain never see stale bytes.
func (d *dirBuf) appendCluster() (entryLoc, error) {
	fresh, err := d.fs.table.ExtendChain(d.chain[len(d.chain)-1], 1)
	if err != nil {
		return 0, err
	}
	c := fresh[0]

	zero := make([]byte, d.clusterSize())
	if err := d.fs.dev.WriteSectors(uint64(d.fs.bs.ClusterToSector(c)), zero); err != nil {
		return 0, err
	}

	loc := entryLoc(d.totalEntries())
	d.chain = append(d.chain, c)
	d.data = append(d.data, zero...)
	return loc, nil
}

// walkEntries visits every short entry with its validated long name. The
// 0x00 first byte ends the scan within a cluster only; the walk resumes at
// the next cluster of the chain.
func (d *dirBuf) walkEntries(fn func(loc entryLoc, entry []byte, longName string, lfnStart entryLoc) (stop bool, err error)) error {
	var acc lfnAccumulator
	lfnStart := entryLoc(-1)
	epc := d.entriesPerCluster()

	for ci := 0; ci < len(d.chain); ci++ {
		for ei := 0; ei < epc; ei++ {
			loc := entryLoc(ci*epc + ei)
			entry := d.entry(loc)

			switch {
			case entry[0] == types.DirEntryFree:
				acc.reset()
				lfnStart = -1
				ei = epc // continue with next cluster in the chain
				continue
			case entry[0] == types.DirEntryDeleted:
				acc.reset()
				lfnStart = -1
				continue
			case entry[types.DirOfsAttributes]&types.AttrLongNameMask == types.AttrLongName:
				if entry[0]&types.LFNLastEntryFlag != 0 || lfnStart < 0 {
					lfnStart = loc
				}
				acc.add(entry)
				continue
			case entry[types.DirOfsAttributes]&types.AttrVolumeID != 0:
				acc.reset()
				lfnStart = -1
				continue
			}

			var short [11]byte
			copy(short[:], entry[:11])
			longName, ok := acc.take(&short)
			start := lfnStart
			if !ok {
				longName = ""
				start = -1
			}
			lfnStart = -1

			stop, err := fn(loc, entry, longName, start)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// foundEntry is the location bundle a mutation needs: the short entry slot
// and the start of its LFN run when one validated.
type foundEntry struct {
	loc      entryLoc
	lfnStart entryLoc
	entry    types.FileEntry
}

// find locates name case-insensitively among the directory's entries.
func (d *dirBuf) find(name string) (*foundEntry, error) {
	var found *foundEntry
	err := d.walkEntries(func(loc entryLoc, entry []byte, longName string, lfnStart entryLoc) (bool, error) {
		fe := parseDirEntry(entry, longName)
		if fe.Name == "." || fe.Name == ".." {
			return false, nil
		}
		if strings.EqualFold(fe.Name, name) {
			found = &foundEntry{loc: loc, lfnStart: lfnStart, entry: fe}
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, name)
	}
	return found, nil
}

// list returns the directory's entries in on-disk order.
func (d *dirBuf) list() ([]types.FileEntry, error) {
	var out []types.FileEntry
	err := d.walkEntries(func(_ entryLoc, entry []byte, longName string, _ entryLoc) (bool, error) {
		fe := parseDirEntry(entry, longName)
		if fe.Name == "." || fe.Name == ".." {
			return false, nil
		}
		out = append(out, fe)
		return false, nil
	})
	return out, err
}

// shortNames collects the 11-byte short names in use, for numeric-tail
// collision checks.
func (d *dirBuf) shortNames() (map[[11]byte]bool, error) {
	used := make(map[[11]byte]bool)
	err := d.walkEntries(func(_ entryLoc, entry []byte, _ string, _ entryLoc) (bool, error) {
		var short [11]byte
		copy(short[:], entry[:11])
		used[short] = true
		return false, nil
	})
	return used, err
}

// findFreeRun locates slots consecutive free or deleted entry slots,
// growing the directory by a cluster when the existing chain has no run
// long enough.
func (d *dirBuf) findFreeRun(slots int) (entryLoc, error) {
	run := 0
	for i := 0; i < d.totalEntries(); i++ {
		b := d.data[i*types.DirEntrySize]
		if b == types.DirEntryFree || b == types.DirEntryDeleted {
			run++
			if run == slots {
				return entryLoc(i - slots + 1), nil
			}
		} else {
			run = 0
		}
	}

	start, err := d.appendCluster()
	if err != nil {
		return 0, err
	}
	// A 255-unit name needs 21 slots; a 512-byte cluster holds 16, so one
	// appended cluster may not be enough.
	for d.totalEntries()-int(start) < slots {
		if _, err := d.appendCluster(); err != nil {
			return 0, err
		}
	}
	if run > 0 && d.data[(int(start)-1)*types.DirEntrySize] == types.DirEntryFree {
		// Merge with the free tail of the previous cluster.
		return entryLoc(int(start) - run), nil
	}
	return start, nil
}

// setEntry copies a 32-byte entry into a slot and marks it dirty.
func (d *dirBuf) setEntry(loc entryLoc, entry []byte) {
	copy(d.entry(loc), entry)
	d.markDirty(loc)
}
