// File: internal/fat32/bootsector.go
package fat32

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// BootSector is the decoded FAT boot record plus the derived geometry the
// driver needs on every access. Fields follow the on-disk names; all
// multi-byte boot sector fields are little-endian.
type BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	SectorsPerFAT     uint32
	RootDirCluster    uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	VolumeID          uint32
	VolumeLabel       string
	FileSystemType    string

	Type types.FATType

	// Derived geometry.
	FirstDataSector uint32
	ClusterSize     uint32
	TotalClusters   uint32
}

// ParseBootSector decodes a 512-byte boot record. FAT16 records parse
// without error so callers can report the variant, but only FAT32 volumes
// are driven further.
func ParseBootSector(sector []byte) (*BootSector, error) {
	if len(sector) < types.SectorSize {
		return nil, fmt.Errorf("%w: boot sector must be %d bytes, got %d", types.ErrInvalidArgument, types.SectorSize, len(sector))
	}
	if sector[types.BootSignatureOffset] != types.BootSignature1 || sector[types.BootSignatureOffset+1] != types.BootSignature2 {
		return nil, fmt.Errorf("%w: boot sector signature missing", types.ErrCorrupt)
	}

	bs := &BootSector{
		BytesPerSector:    binary.LittleEndian.Uint16(sector[types.BootOfsBytesPerSector:]),
		SectorsPerCluster: sector[types.BootOfsSectorsPerCluster],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[types.BootOfsReservedSectors:]),
		NumberOfFATs:      sector[types.BootOfsNumberOfFATs],
		RootEntryCount:    binary.LittleEndian.Uint16(sector[types.BootOfsRootEntryCount:]),
	}

	bs.TotalSectors = uint32(binary.LittleEndian.Uint16(sector[types.BootOfsTotalSectors16:]))
	if bs.TotalSectors == 0 {
		bs.TotalSectors = binary.LittleEndian.Uint32(sector[types.BootOfsTotalSectors32:])
	}

	bs.SectorsPerFAT = uint32(binary.LittleEndian.Uint16(sector[types.BootOfsSectorsPerFAT16:]))
	if bs.SectorsPerFAT == 0 {
		bs.SectorsPerFAT = binary.LittleEndian.Uint32(sector[types.BootOfsSectorsPerFAT32:])
		bs.RootDirCluster = binary.LittleEndian.Uint32(sector[types.BootOfsRootDirCluster:])
		bs.FSInfoSector = binary.LittleEndian.Uint16(sector[types.BootOfsFSInfoSector:])
		bs.BackupBootSector = binary.LittleEndian.Uint16(sector[types.BootOfsBackupBootSector:])
		bs.VolumeID = binary.LittleEndian.Uint32(sector[types.BootOfsVolumeID32:])
		bs.VolumeLabel = strings.TrimRight(string(sector[types.BootOfsVolumeLabel32:types.BootOfsVolumeLabel32+11]), " ")
		bs.FileSystemType = strings.TrimRight(string(sector[types.BootOfsFileSystemType32:types.BootOfsFileSystemType32+8]), " ")
	}

	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 || bs.NumberOfFATs == 0 || bs.SectorsPerFAT == 0 {
		return nil, fmt.Errorf("%w: boot sector geometry is inconsistent", types.ErrCorrupt)
	}

	// Root directory sectors are zero on FAT32; the count distinguishes
	// the variants together with the cluster count.
	rootDirSectors := (uint32(bs.RootEntryCount)*types.DirEntrySize + uint32(bs.BytesPerSector) - 1) / uint32(bs.BytesPerSector)
	bs.FirstDataSector = uint32(bs.ReservedSectors) + uint32(bs.NumberOfFATs)*bs.SectorsPerFAT + rootDirSectors
	bs.ClusterSize = uint32(bs.BytesPerSector) * uint32(bs.SectorsPerCluster)

	if bs.TotalSectors <= bs.FirstDataSector {
		return nil, fmt.Errorf("%w: boot sector geometry is inconsistent", types.ErrCorrupt)
	}
	bs.TotalClusters = (bs.TotalSectors - bs.FirstDataSector) / uint32(bs.SectorsPerCluster)

	// The 32-bit FAT size field plus an empty fixed root directory mark a
	// FAT32 layout regardless of cluster count; encrypted containers are
	// often far below the nominal 65525-cluster threshold.
	fat32Layout := binary.LittleEndian.Uint16(sector[types.BootOfsSectorsPerFAT16:]) == 0 && bs.RootEntryCount == 0
	switch {
	case fat32Layout:
		bs.Type = types.FATType32
	case bs.TotalClusters < 4085:
		bs.Type = types.FATType12
	default:
		bs.Type = types.FATType16
	}

	return bs, nil
}

// ClusterToSector returns the first sector of a data cluster.
func (bs *BootSector) ClusterToSector(cluster uint32) uint32 {
	return bs.FirstDataSector + (cluster-types.FATFirstDataCluster)*uint32(bs.SectorsPerCluster)
}

// MaxCluster is the highest addressable cluster number.
func (bs *BootSector) MaxCluster() uint32 {
	return types.FATFirstDataCluster + bs.TotalClusters - 1
}
