// File: internal/fat32/mkfs.go
package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

const (
	mkfsReservedSectors = 32
	mkfsNumberOfFATs    = 2
	mkfsMedia           = 0xF8
	mkfsRootCluster     = 2
	mkfsFSInfoSector    = 1
	mkfsBackupBoot      = 6
	mkfsDefaultLabel    = "NO NAME"
)

// SectorsPerClusterFor picks the cluster size by volume size: 4 KiB
// clusters up to 8 GiB, then 8, 16, and 32 KiB.
func SectorsPerClusterFor(totalBytes uint64) uint8 {
	const gib = 1 << 30
	switch {
	case totalBytes <= 8*gib:
		return 8
	case totalBytes <= 16*gib:
		return 16
	case totalBytes <= 32*gib:
		return 32
	default:
		return 64
	}
}

// Format writes a fresh FAT32 filesystem across the whole sector device:
// boot sector, FSInfo, signed reserved sectors, backup copies, both FAT
// tables, and a zeroed root directory cluster.
func Format(dev interfaces.SectorDevice, label string) error {
	total := dev.TotalSectors()
	if total > 0xFFFFFFFF {
		return fmt.Errorf("%w: %d sectors exceed the FAT32 limit", types.ErrInvalidArgument, total)
	}

	totalSectors := uint32(total)
	spc := SectorsPerClusterFor(total * uint64(types.SectorSize))
	spf, clusters, err := fatGeometry(totalSectors, spc)
	if err != nil {
		return err
	}

	serial := volumeSerial()
	boot := buildBootSector(totalSectors, spc, spf, serial, label)
	fsinfo := buildFSInfoSector(clusters-1, mkfsRootCluster+1)

	// Reserved sectors 2 through 5 carry only the trailing signature.
	signed := make([]byte, types.SectorSize)
	signed[types.BootSignatureOffset] = types.BootSignature1
	signed[types.BootSignatureOffset+1] = types.BootSignature2
	zero := make([]byte, types.SectorSize)

	for s := uint64(0); s < mkfsReservedSectors; s++ {
		var payload []byte
		switch s {
		case 0:
			payload = boot
		case mkfsFSInfoSector:
			payload = fsinfo
		case 2, 3, 4, 5:
			payload = signed
		case mkfsBackupBoot:
			payload = boot
		case mkfsBackupBoot + 1:
			payload = fsinfo
		default:
			payload = zero
		}
		if err := dev.WriteSector(s, payload); err != nil {
			return err
		}
	}

	if err := writeInitialFATs(dev, spf); err != nil {
		return err
	}

	rootSector := uint64(mkfsReservedSectors) + uint64(mkfsNumberOfFATs)*uint64(spf)
	rootCluster := make([]byte, int(spc)*types.SectorSize)
	return dev.WriteSectors(rootSector, rootCluster)
}

// fatGeometry solves for the FAT size: each FAT sector indexes 128
// clusters, and growing the FAT shrinks the data region it has to cover.
// A few fixpoint rounds converge for any valid geometry.
func fatGeometry(totalSectors uint32, spc uint8) (sectorsPerFAT, clusters uint32, err error) {
	entriesPerSector := uint32(types.SectorSize / fatEntrySize)
	spf := uint32(1)
	for i := 0; i < 8; i++ {
		dataSectors := totalSectors - mkfsReservedSectors - mkfsNumberOfFATs*spf
		if int32(dataSectors) <= 0 {
			return 0, 0, fmt.Errorf("%w: %d sectors cannot hold a FAT32 filesystem", types.ErrInvalidArgument, totalSectors)
		}
		clusters = dataSectors / uint32(spc)
		need := (clusters + types.FATFirstDataCluster + entriesPerSector - 1) / entriesPerSector
		if need == spf {
			break
		}
		spf = need
	}
	if clusters < 1 {
		return 0, 0, fmt.Errorf("%w: %d sectors leave no data clusters", types.ErrInvalidArgument, totalSectors)
	}
	return spf, clusters, nil
}

// volumeSerial folds a random UUID into the 32-bit volume ID.
func volumeSerial() uint32 {
	u := uuid.New()
	return binary.LittleEndian.Uint32(u[0:4]) ^ binary.LittleEndian.Uint32(u[4:8]) ^
		binary.LittleEndian.Uint32(u[8:12]) ^ binary.LittleEndian.Uint32(u[12:16])
}

func buildBootSector(totalSectors uint32, spc uint8, spf, serial uint32, label string) []byte {
	s := make([]byte, types.SectorSize)

	copy(s[0:], []byte{0xEB, 0x58, 0x90})
	copy(s[3:], "MSWIN4.1")

	binary.LittleEndian.PutUint16(s[types.BootOfsBytesPerSector:], types.SectorSize)
	s[types.BootOfsSectorsPerCluster] = spc
	binary.LittleEndian.PutUint16(s[types.BootOfsReservedSectors:], mkfsReservedSectors)
	s[types.BootOfsNumberOfFATs] = mkfsNumberOfFATs
	s[types.BootOfsMedia] = mkfsMedia
	binary.LittleEndian.PutUint16(s[24:], 63)  // sectors per track
	binary.LittleEndian.PutUint16(s[26:], 255) // heads
	binary.LittleEndian.PutUint32(s[types.BootOfsTotalSectors32:], totalSectors)
	binary.LittleEndian.PutUint32(s[types.BootOfsSectorsPerFAT32:], spf)
	binary.LittleEndian.PutUint32(s[types.BootOfsRootDirCluster:], mkfsRootCluster)
	binary.LittleEndian.PutUint16(s[types.BootOfsFSInfoSector:], mkfsFSInfoSector)
	binary.LittleEndian.PutUint16(s[types.BootOfsBackupBootSector:], mkfsBackupBoot)

	s[64] = 0x80 // drive number
	s[66] = 0x29 // extended boot signature
	binary.LittleEndian.PutUint32(s[types.BootOfsVolumeID32:], serial)

	if label == "" {
		label = mkfsDefaultLabel
	}
	padded := fmt.Sprintf("%-11.11s", label)
	copy(s[types.BootOfsVolumeLabel32:], padded)
	copy(s[types.BootOfsFileSystemType32:], "FAT32   ")

	s[types.BootSignatureOffset] = types.BootSignature1
	s[types.BootSignatureOffset+1] = types.BootSignature2
	return s
}

func buildFSInfoSector(freeCount, nextFree uint32) []byte {
	s := make([]byte, types.SectorSize)
	binary.LittleEndian.PutUint32(s[0:], types.FSInfoLeadSignature)
	binary.LittleEndian.PutUint32(s[types.FSInfoOfsStructSig:], types.FSInfoStructSignature)
	binary.LittleEndian.PutUint32(s[types.FSInfoOfsFreeCount:], freeCount)
	binary.LittleEndian.PutUint32(s[types.FSInfoOfsNextFree:], nextFree)
	s[types.BootSignatureOffset] = types.BootSignature1
	s[types.BootSignatureOffset+1] = types.BootSignature2
	return s
}

// writeInitialFATs lays down both FAT copies: media mark in entry 0,
// end-of-chain in entry 1, and the root directory cluster 2 marked EOC.
func writeInitialFATs(dev interfaces.SectorDevice, spf uint32) error {
	first := make([]byte, types.SectorSize)
	binary.LittleEndian.PutUint32(first[0:], 0x0FFFFF00|uint32(mkfsMedia))
	binary.LittleEndian.PutUint32(first[4:], types.FATEntryEOC)
	binary.LittleEndian.PutUint32(first[8:], types.FATEntryEOC)

	zero := make([]byte, types.SectorSize)
	for copyIdx := 0; copyIdx < mkfsNumberOfFATs; copyIdx++ {
		base := uint64(mkfsReservedSectors) + uint64(copyIdx)*uint64(spf)
		if err := dev.WriteSector(base, first); err != nil {
			return err
		}
		for s := uint64(1); s < uint64(spf); s++ {
			if err := dev.WriteSector(base+s, zero); err != nil {
				return err
			}
		}
	}
	return nil
}

// SyncFSInfo refreshes the FSInfo hints from the live FAT state.
func (fs *FS) SyncFSInfo() error {
	free, err := fs.table.FreeClusterCount()
	if err != nil {
		return err
	}
	return UpdateFSInfo(fs.dev, fs.bs, free, fs.table.AllocHint())
}

// UpdateFSInfo refreshes the free-count and next-free hints in both
// FSInfo copies. Best effort on unmount; the FAT itself stays the source
// of truth.
func UpdateFSInfo(dev interfaces.SectorDevice, bs *BootSector, freeClusters, nextFree uint32) error {
	if bs.FSInfoSector == 0 || bs.FSInfoSector == 0xFFFF {
		return nil
	}

	update := func(sector uint64) error {
		buf, err := dev.ReadSector(sector)
		if err != nil {
			return err
		}
		if binary.LittleEndian.Uint32(buf[0:]) != types.FSInfoLeadSignature ||
			binary.LittleEndian.Uint32(buf[types.FSInfoOfsStructSig:]) != types.FSInfoStructSignature {
			return nil
		}
		binary.LittleEndian.PutUint32(buf[types.FSInfoOfsFreeCount:], freeClusters)
		binary.LittleEndian.PutUint32(buf[types.FSInfoOfsNextFree:], nextFree)
		return dev.WriteSector(sector, buf)
	}

	if err := update(uint64(bs.FSInfoSector)); err != nil {
		return err
	}
	if bs.BackupBootSector != 0 && bs.BackupBootSector != 0xFFFF {
		return update(uint64(bs.BackupBootSector) + uint64(mkfsFSInfoSector))
	}
	return nil
}
