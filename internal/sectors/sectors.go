// File: internal/sectors/sectors.go
package sectors

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// sectorDevice translates plaintext sector I/O to encrypted byte I/O on
// the underlying block device. The XTS tweak for a data sector is its
// absolute sector index from the container start, so the device carries
// the data-area offset both as a byte base and a tweak base.
//
// Batches at or above the parallel threshold are split across worker
// goroutines for the cipher pass; the device read or write itself is a
// single positioned call either side of it.
type sectorDevice struct {
	dev    interfaces.BlockDevice
	cipher interfaces.SectorCipher

	dataOffset   int64
	tweakBase    uint64
	totalSectors uint64

	workers           int
	parallelThreshold int
}

// New builds a sector device over the data area [dataOffset,
// dataOffset+dataSize) of dev. Both bounds must be sector-aligned.
func New(dev interfaces.BlockDevice, cipher interfaces.SectorCipher, dataOffset, dataSize int64, cfg *device.EngineConfig) (interfaces.SectorDevice, error) {
	if dataOffset%types.SectorSize != 0 || dataSize%types.SectorSize != 0 {
		return nil, fmt.Errorf("%w: data area [%d, +%d) is not sector aligned", types.ErrInvalidArgument, dataOffset, dataSize)
	}
	if dataSize <= 0 || dataOffset < 0 || dataOffset+dataSize > dev.Size() {
		return nil, fmt.Errorf("%w: data area [%d, +%d) outside device of %d bytes", types.ErrOutOfBounds, dataOffset, dataSize, dev.Size())
	}
	if cfg == nil {
		cfg = device.DefaultEngineConfig()
	}

	return &sectorDevice{
		dev:               dev,
		cipher:            cipher,
		dataOffset:        dataOffset,
		tweakBase:         uint64(dataOffset) / types.SectorSize,
		totalSectors:      uint64(dataSize) / types.SectorSize,
		workers:           cfg.XTSWorkers,
		parallelThreshold: cfg.ParallelThresholdSectors,
	}, nil
}

func (s *sectorDevice) SectorSize() uint32 {
	return types.SectorSize
}

func (s *sectorDevice) TotalSectors() uint64 {
	return s.totalSectors
}

func (s *sectorDevice) checkRange(sector uint64, count uint32) error {
	if count == 0 {
		return fmt.Errorf("%w: zero sector count", types.ErrInvalidArgument)
	}
	if sector >= s.totalSectors || uint64(count) > s.totalSectors-sector {
		return fmt.Errorf("%w: sectors [%d, +%d) outside volume of %d sectors", types.ErrOutOfBounds, sector, count, s.totalSectors)
	}
	return nil
}

// ReadSector returns the plaintext of one sector.
func (s *sectorDevice) ReadSector(sector uint64) ([]byte, error) {
	return s.ReadSectors(sector, 1)
}

// ReadSectors returns the plaintext of count consecutive sectors.
func (s *sectorDevice) ReadSectors(sector uint64, count uint32) ([]byte, error) {
	dst := make([]byte, int(count)*types.SectorSize)
	if err := s.ReadSectorsInto(dst, sector, count); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadSectorsInto reads count consecutive sectors into dst, which must be
// exactly count sectors long. One positioned read pulls the ciphertext,
// then the batch is decrypted in place.
func (s *sectorDevice) ReadSectorsInto(dst []byte, sector uint64, count uint32) error {
	if err := s.checkRange(sector, count); err != nil {
		return err
	}
	if len(dst) != int(count)*types.SectorSize {
		return fmt.Errorf("%w: destination is %d bytes, want %d", types.ErrInvalidArgument, len(dst), int(count)*types.SectorSize)
	}

	off := s.dataOffset + int64(sector)*types.SectorSize
	if _, err := s.dev.ReadAt(dst, off); err != nil {
		return err
	}

	return s.runCipher(dst, dst, s.tweakBase+sector, false)
}

// WriteSector encrypts and writes one sector.
func (s *sectorDevice) WriteSector(sector uint64, data []byte) error {
	return s.WriteSectors(sector, data)
}

// WriteSectors encrypts data into a scratch buffer, leaving the caller's
// plaintext untouched, and writes the batch with one positioned write.
func (s *sectorDevice) WriteSectors(sector uint64, data []byte) error {
	if len(data) == 0 || len(data)%types.SectorSize != 0 {
		return fmt.Errorf("%w: write length %d is not a multiple of %d", types.ErrInvalidArgument, len(data), types.SectorSize)
	}
	count := uint32(len(data) / types.SectorSize)
	if err := s.checkRange(sector, count); err != nil {
		return err
	}

	ciphertext := make([]byte, len(data))
	if err := s.runCipher(ciphertext, data, s.tweakBase+sector, true); err != nil {
		return err
	}

	off := s.dataOffset + int64(sector)*types.SectorSize
	_, err := s.dev.WriteAt(ciphertext, off)
	return err
}

// runCipher applies the sector cipher over a batch, fanning out across
// workers once the batch reaches the parallel threshold. Chunks are
// contiguous sector runs so every worker keeps a sequential tweak
// schedule.
func (s *sectorDevice) runCipher(dst, src []byte, tweak uint64, encrypt bool) error {
	count := len(src) / types.SectorSize
	apply := s.cipher.DecryptSectors
	if encrypt {
		apply = s.cipher.EncryptSectors
	}

	if count < s.parallelThreshold || s.workers < 2 {
		return apply(dst, src, tweak)
	}

	chunk := (count + s.workers - 1) / s.workers
	var g errgroup.Group
	for start := 0; start < count; start += chunk {
		end := start + chunk
		if end > count {
			end = count
		}
		lo := start * types.SectorSize
		hi := end * types.SectorSize
		chunkTweak := tweak + uint64(start)
		g.Go(func() error {
			return apply(dst[lo:hi], src[lo:hi], chunkTweak)
		})
	}
	return g.Wait()
}
