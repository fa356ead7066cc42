// File: internal/fat32/table.go
package fat32

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

const fatEntrySize = 4

// Table gives cached access to the file allocation table and owns the
// allocation cursor. Reads go through a bounded sector cache with run
// prefetch on miss; writes land in both FAT copies and refresh the cache
// with the written payload.
type Table struct {
	dev interfaces.SectorDevice
	bs  *BootSector

	cacheCap int
	prefetch int

	mu        sync.Mutex
	cache     map[uint32][]byte
	order     []uint32
	allocHint uint32
	freeCount int64
}

// NewTable builds a FAT accessor over the sector device.
func NewTable(dev interfaces.SectorDevice, bs *BootSector, cacheCap, prefetch int) *Table {
	if cacheCap < 1 {
		cacheCap = 1
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if prefetch > cacheCap {
		prefetch = cacheCap
	}
	return &Table{
		dev:       dev,
		bs:        bs,
		cacheCap:  cacheCap,
		prefetch:  prefetch,
		cache:     make(map[uint32][]byte),
		allocHint: types.FATFirstDataCluster,
		freeCount: -1,
	}
}

func (t *Table) entriesPerSector() uint32 {
	return uint32(t.bs.BytesPerSector) / fatEntrySize
}

// Entry returns the FAT entry of cluster c, masked to 28 bits.
func (t *Table) Entry(c uint32) (uint32, error) {
	if c > t.bs.MaxCluster() {
		return 0, fmt.Errorf("%w: FAT entry %d beyond last cluster %d", types.ErrCorrupt, c, t.bs.MaxCluster())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sectorIdx := c / t.entriesPerSector()
	sector, err := t.fatSectorLocked(sectorIdx)
	if err != nil {
		return 0, err
	}
	ofs := (c % t.entriesPerSector()) * fatEntrySize
	return binary.LittleEndian.Uint32(sector[ofs:]) & types.FATEntryMask, nil
}

// fatSectorLocked returns the cached FAT sector at the given index within
// the first FAT copy, reading a prefetch run on miss.
func (t *Table) fatSectorLocked(idx uint32) ([]byte, error) {
	if s, ok := t.cache[idx]; ok {
		return s, nil
	}

	run := uint32(t.prefetch)
	if idx+run > t.bs.SectorsPerFAT {
		run = t.bs.SectorsPerFAT - idx
	}
	if run == 0 {
		return nil, fmt.Errorf("%w: FAT sector %d beyond table of %d sectors", types.ErrCorrupt, idx, t.bs.SectorsPerFAT)
	}

	abs := uint64(t.bs.ReservedSectors) + uint64(idx)
	buf, err := t.dev.ReadSectors(abs, run)
	if err != nil {
		return nil, err
	}

	ss := int(t.dev.SectorSize())
	for i := uint32(0); i < run; i++ {
		t.installLocked(idx+i, buf[int(i)*ss:int(i+1)*ss])
	}
	return t.cache[idx], nil
}

// installLocked adds one FAT sector to the cache, bulk-evicting a quarter
// of the cache when full. Eviction order is approximate; correctness comes
// from invalidation on write, not from recency.
func (t *Table) installLocked(idx uint32, sector []byte) {
	if _, ok := t.cache[idx]; !ok {
		if len(t.order) >= t.cacheCap {
			drop := t.cacheCap / 4
			if drop < 1 {
				drop = 1
			}
			for _, old := range t.order[:drop] {
				delete(t.cache, old)
			}
			t.order = append(t.order[:0], t.order[drop:]...)
		}
		t.order = append(t.order, idx)
	}
	t.cache[idx] = sector
}

// SetEntries applies FAT updates, batched by FAT sector, writing every
// modified sector to both FAT copies. The top four bits of each entry are
// preserved as the format requires.
func (t *Table) SetEntries(updates map[uint32]uint32) error {
	if len(updates) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bySector := make(map[uint32][]uint32)
	for c := range updates {
		if c > t.bs.MaxCluster() {
			return fmt.Errorf("%w: FAT entry %d beyond last cluster %d", types.ErrInvalidArgument, c, t.bs.MaxCluster())
		}
		idx := c / t.entriesPerSector()
		bySector[idx] = append(bySector[idx], c)
	}

	for idx, clusters := range bySector {
		sector, err := t.fatSectorLocked(idx)
		if err != nil {
			return err
		}
		for _, c := range clusters {
			ofs := (c % t.entriesPerSector()) * fatEntrySize
			old := binary.LittleEndian.Uint32(sector[ofs:])
			binary.LittleEndian.PutUint32(sector[ofs:], old&^uint32(types.FATEntryMask)|updates[c]&types.FATEntryMask)
		}

		first := uint64(t.bs.ReservedSectors) + uint64(idx)
		second := first + uint64(t.bs.SectorsPerFAT)
		if err := t.dev.WriteSectors(first, sector); err != nil {
			return err
		}
		if err := t.dev.WriteSectors(second, sector); err != nil {
			return err
		}
	}
	return nil
}

// WalkChain follows a cluster chain from first to its end-of-chain marker.
// A chain longer than the cluster count or an entry outside the valid
// range is reported as corruption.
func (t *Table) WalkChain(first uint32) ([]uint32, error) {
	if first < types.FATFirstDataCluster || first > t.bs.MaxCluster() {
		return nil, fmt.Errorf("%w: chain start %d out of range", types.ErrCorrupt, first)
	}

	chain := make([]uint32, 0, 8)
	c := first
	for {
		chain = append(chain, c)
		if uint32(len(chain)) > t.bs.TotalClusters {
			return nil, fmt.Errorf("%w: cluster chain from %d loops", types.ErrCorrupt, first)
		}

		next, err := t.Entry(c)
		if err != nil {
			return nil, err
		}
		if next >= types.FATEntryEOCMin {
			return chain, nil
		}
		if next < types.FATFirstDataCluster || next > t.bs.MaxCluster() || next == types.FATEntryBad {
			return nil, fmt.Errorf("%w: FAT chain from %d hits invalid entry %#x at cluster %d", types.ErrCorrupt, first, next, c)
		}
		c = next
	}
}

// Allocate claims count free clusters starting the scan at the rolling
// hint and wrapping once. The claimed clusters are linked into a chain
// ending in EOC before being returned.
func (t *Table) Allocate(count int) ([]uint32, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: allocation of %d clusters", types.ErrInvalidArgument, count)
	}

	t.mu.Lock()
	start := t.allocHint
	if start < types.FATFirstDataCluster || start > t.bs.MaxCluster() {
		start = types.FATFirstDataCluster
	}
	t.mu.Unlock()

	found := make([]uint32, 0, count)
	c := start
	wrapped := false
	for {
		v, err := t.Entry(c)
		if err != nil {
			return nil, err
		}
		if v == types.FATEntryFree {
			found = append(found, c)
			if len(found) == count {
				break
			}
		}

		c++
		if c > t.bs.MaxCluster() {
			c = types.FATFirstDataCluster
			wrapped = true
		}
		if wrapped && c == start {
			return nil, fmt.Errorf("%w: need %d clusters, found %d free", types.ErrDiskFull, count, len(found))
		}
	}

	updates := make(map[uint32]uint32, count)
	for i, cl := range found {
		if i+1 < len(found) {
			updates[cl] = found[i+1]
		} else {
			updates[cl] = types.FATEntryEOC
		}
	}
	if err := t.SetEntries(updates); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.allocHint = found[len(found)-1] + 1
	if t.allocHint > t.bs.MaxCluster() {
		t.allocHint = types.FATFirstDataCluster
	}
	if t.freeCount >= 0 {
		t.freeCount -= int64(count)
	}
	t.mu.Unlock()

	return found, nil
}

// ExtendChain links extra clusters onto the chain ending at lastCluster.
func (t *Table) ExtendChain(lastCluster uint32, count int) ([]uint32, error) {
	fresh, err := t.Allocate(count)
	if err != nil {
		return nil, err
	}
	if err := t.SetEntries(map[uint32]uint32{lastCluster: fresh[0]}); err != nil {
		return nil, err
	}
	return fresh, nil
}

// FreeChain records the whole chain before zeroing any entry, so the walk
// never reads an entry it already overwrote.
func (t *Table) FreeChain(first uint32) error {
	chain, err := t.WalkChain(first)
	if err != nil {
		return err
	}

	updates := make(map[uint32]uint32, len(chain))
	for _, c := range chain {
		updates[c] = types.FATEntryFree
	}
	if err := t.SetEntries(updates); err != nil {
		return err
	}

	t.mu.Lock()
	if t.freeCount >= 0 {
		t.freeCount += int64(len(chain))
	}
	t.mu.Unlock()
	return nil
}

// FreeClusterCount scans the FAT once and then serves the figure from a
// counter maintained by allocate and free. InvalidateFreeCount drops it
// back to unknown.
func (t *Table) FreeClusterCount() (uint32, error) {
	t.mu.Lock()
	cached := t.freeCount
	t.mu.Unlock()
	if cached >= 0 {
		return uint32(cached), nil
	}

	var free uint32
	for c := uint32(types.FATFirstDataCluster); c <= t.bs.MaxCluster(); c++ {
		v, err := t.Entry(c)
		if err != nil {
			return 0, err
		}
		if v == types.FATEntryFree {
			free++
		}
	}

	t.mu.Lock()
	t.freeCount = int64(free)
	t.mu.Unlock()
	return free, nil
}

// InvalidateFreeCount forgets the cached free-cluster figure.
func (t *Table) InvalidateFreeCount() {
	t.mu.Lock()
	t.freeCount = -1
	t.mu.Unlock()
}

// AllocHint exposes the rolling cursor for FSInfo maintenance.
func (t *Table) AllocHint() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocHint
}
