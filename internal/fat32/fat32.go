// File: internal/fat32/fat32.go
package fat32

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// FS drives a FAT32 filesystem over a plaintext sector device. It holds
// the parsed boot sector, the FAT accessor, and the engine tunables; path
// and listing caches live one layer up so FS stays a pure driver.
type FS struct {
	dev   interfaces.SectorDevice
	bs    *BootSector
	table *Table
	cfg   *device.EngineConfig
}

// New mounts the filesystem found at sector 0 of dev. Only FAT32 volumes
// with the device's sector size are driven.
func New(dev interfaces.SectorDevice, cfg *device.EngineConfig) (*FS, error) {
	if cfg == nil {
		cfg = device.DefaultEngineConfig()
	}

	sector, err := dev.ReadSector(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot sector: %w", err)
	}
	bs, err := ParseBootSector(sector)
	if err != nil {
		return nil, err
	}
	if bs.Type != types.FATType32 {
		return nil, fmt.Errorf("%w: %s volume, only FAT32 is supported", types.ErrCorrupt, bs.Type)
	}
	if uint32(bs.BytesPerSector) != dev.SectorSize() {
		return nil, fmt.Errorf("%w: filesystem sector size %d does not match device sector size %d", types.ErrCorrupt, bs.BytesPerSector, dev.SectorSize())
	}

	return &FS{
		dev:   dev,
		bs:    bs,
		table: NewTable(dev, bs, cfg.FATCacheSectors, cfg.FATPrefetchSectors),
		cfg:   cfg,
	}, nil
}

// BootSector exposes the parsed boot record.
func (fs *FS) BootSector() *BootSector {
	return fs.bs
}

// Table exposes the FAT accessor.
func (fs *FS) Table() *Table {
	return fs.table
}

// TotalSpace is the byte capacity of the data clusters.
func (fs *FS) TotalSpace() uint64 {
	return uint64(fs.bs.TotalClusters) * uint64(fs.bs.ClusterSize)
}

// FreeSpace is the byte capacity of the currently free clusters.
func (fs *FS) FreeSpace() (uint64, error) {
	free, err := fs.table.FreeClusterCount()
	if err != nil {
		return 0, err
	}
	return uint64(free) * uint64(fs.bs.ClusterSize), nil
}

// NormalizePath lowercases a path and strips the trailing slash, the form
// every cache key and comparison uses. The root normalizes to "/".
func NormalizePath(path string) string {
	p := strings.ToLower(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// SplitPath returns the parent path and leaf name of a non-root path.
func SplitPath(path string) (parent, name string, err error) {
	p := path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	if p == "/" {
		return "", "", fmt.Errorf("%w: root has no parent", types.ErrInvalidArgument)
	}
	idx := strings.LastIndexByte(p, '/')
	parent = p[:idx]
	if parent == "" {
		parent = "/"
	}
	return parent, p[idx+1:], nil
}

// ValidateName rejects names no directory entry can carry.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", types.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: name %q contains a path separator", types.ErrInvalidArgument, name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: name %q is reserved", types.ErrInvalidArgument, name)
	}
	if nameUnitCount(name) > types.MaxLongNameLength {
		return fmt.Errorf("%w: name longer than %d characters", types.ErrInvalidArgument, types.MaxLongNameLength)
	}
	return nil
}

// RootEntry synthesizes the entry for "/". The root directory has no
// on-disk entry of its own.
func (fs *FS) RootEntry() types.FileEntry {
	return types.FileEntry{
		Name:         "",
		Path:         "/",
		IsDirectory:  true,
		FirstCluster: fs.bs.RootDirCluster,
	}
}
