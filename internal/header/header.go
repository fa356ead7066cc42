// File: internal/header/header.go
package header

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-veracrypt/internal/crypto"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// BackupOffset returns the byte offset of the backup header record for a
// container of the given total size.
func BackupOffset(totalSize int64) int64 {
	return totalSize - types.BackupHeaderGroupSize
}

// Open reads the primary header record, trial-decrypts it with the given
// password and PIM, and falls back to the backup header when the primary
// fails validation. The password must already have any keyfiles mixed in.
func Open(dev interfaces.BlockDevice, password []byte, pim int) (*types.VolumeHeader, error) {
	h, primaryErr := OpenAt(dev, 0, password, pim)
	if primaryErr == nil {
		return h, nil
	}

	if dev.Size() >= types.MinContainerSize {
		h, backupErr := OpenAt(dev, BackupOffset(dev.Size()), password, pim)
		if backupErr == nil {
			return h, nil
		}
	}
	return nil, primaryErr
}

// OpenAt trial-decrypts the header record at the given byte offset.
func OpenAt(dev interfaces.BlockDevice, offset int64, password []byte, pim int) (*types.VolumeHeader, error) {
	record := make([]byte, types.HeaderSize)
	if _, err := dev.ReadAt(record, offset); err != nil {
		return nil, fmt.Errorf("failed to read header record at offset %d: %w", offset, err)
	}

	salt := record[:types.SaltSize]
	encrypted := record[types.SaltSize:]

	headerKey := crypto.DeriveHeaderKey(password, salt, crypto.Iterations(types.VolumeKindNormal, pim))
	defer crypto.Wipe(headerKey)

	x, err := crypto.NewXTS(headerKey)
	if err != nil {
		return nil, err
	}
	defer x.Wipe()

	payload := make([]byte, types.HeaderPayloadSize)
	if err := x.DecryptBlocks(payload, encrypted, 0); err != nil {
		return nil, err
	}
	defer crypto.Wipe(payload)

	return decodePayload(payload)
}

// CreateParams carries everything Create needs beyond the device.
type CreateParams struct {
	Password  []byte
	PIM       int
	TotalSize int64
}

// Create generates a fresh salt and master key, writes the primary header
// record at offset 0 and the backup record at totalSize minus 128 KiB, and
// returns the decoded header for immediate mounting. Each record gets its
// own salt and therefore its own header key.
func Create(dev interfaces.BlockDevice, params CreateParams) (*types.VolumeHeader, error) {
	if params.TotalSize < types.MinContainerSize {
		return nil, fmt.Errorf("%w: container size %d below minimum %d", types.ErrInvalidArgument, params.TotalSize, types.MinContainerSize)
	}
	if params.TotalSize%types.SectorSize != 0 {
		return nil, fmt.Errorf("%w: container size %d is not a multiple of %d", types.ErrInvalidArgument, params.TotalSize, types.SectorSize)
	}

	dataAreaSize := params.TotalSize - types.DataAreaOffset - types.BackupHeaderGroupSize
	if dataAreaSize <= 0 {
		return nil, fmt.Errorf("%w: container size %d leaves no data area", types.ErrInvalidArgument, params.TotalSize)
	}

	now := uint64(time.Now().Unix())
	h := &types.VolumeHeader{
		Version:           types.HeaderVersion,
		MinProgramVersion: types.HeaderMinProgramVersion,
		VolumeCreated:     now,
		HeaderModified:    now,
		VolumeSize:        uint64(dataAreaSize),
		EncAreaStart:      types.DataAreaOffset,
		EncAreaLength:     uint64(dataAreaSize),
		SectorSize:        types.SectorSize,
	}
	if _, err := rand.Read(h.MasterKeydata[:]); err != nil {
		return nil, fmt.Errorf("failed to generate master keydata: %w", err)
	}

	if err := writeRecord(dev, 0, h, params); err != nil {
		return nil, err
	}
	if err := writeRecord(dev, BackupOffset(params.TotalSize), h, params); err != nil {
		return nil, err
	}

	return h, nil
}

// Rewrite re-encrypts the current header under fresh salts and writes both
// records again. Used after header mutations such as a modification-time
// bump.
func Rewrite(dev interfaces.BlockDevice, h *types.VolumeHeader, password []byte, pim int, totalSize int64) error {
	params := CreateParams{Password: password, PIM: pim, TotalSize: totalSize}
	if err := writeRecord(dev, 0, h, params); err != nil {
		return err
	}
	return writeRecord(dev, BackupOffset(totalSize), h, params)
}

func writeRecord(dev interfaces.BlockDevice, offset int64, h *types.VolumeHeader, params CreateParams) error {
	record := make([]byte, types.HeaderSize)
	salt := record[:types.SaltSize]
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate header salt: %w", err)
	}

	headerKey := crypto.DeriveHeaderKey(params.Password, salt, crypto.Iterations(types.VolumeKindNormal, params.PIM))
	defer crypto.Wipe(headerKey)

	x, err := crypto.NewXTS(headerKey)
	if err != nil {
		return err
	}
	defer x.Wipe()

	payload := encodePayload(h)
	defer crypto.Wipe(payload)
	if err := x.EncryptBlocks(record[types.SaltSize:], payload, 0); err != nil {
		return err
	}

	if _, err := dev.WriteAt(record, offset); err != nil {
		return fmt.Errorf("failed to write header record at offset %d: %w", offset, err)
	}
	return nil
}

// IsAuthFailure reports whether err comes from a failed trial decryption.
func IsAuthFailure(err error) bool {
	return errors.Is(err, types.ErrAuthFailure)
}
