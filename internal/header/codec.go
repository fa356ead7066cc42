// File: internal/header/codec.go
package header

import (
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-veracrypt/internal/checksum"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// encodePayload serializes a decoded header into the 448-byte plaintext
// payload. Both CRC fields are computed here: the key-area CRC over the
// 256-byte master keydata region and the header CRC over the first 188
// bytes.
func encodePayload(h *types.VolumeHeader) []byte {
	p := make([]byte, types.HeaderPayloadSize)

	copy(p[types.HeaderOfsMagic:], types.VolumeHeaderMagic)
	binary.BigEndian.PutUint16(p[types.HeaderOfsVersion:], h.Version)
	binary.BigEndian.PutUint16(p[types.HeaderOfsMinProgramVer:], h.MinProgramVersion)
	binary.BigEndian.PutUint64(p[types.HeaderOfsVolumeCreated:], h.VolumeCreated)
	binary.BigEndian.PutUint64(p[types.HeaderOfsHeaderModified:], h.HeaderModified)
	binary.BigEndian.PutUint64(p[types.HeaderOfsHiddenVolSize:], h.HiddenVolumeSize)
	binary.BigEndian.PutUint64(p[types.HeaderOfsVolumeSize:], h.VolumeSize)
	binary.BigEndian.PutUint64(p[types.HeaderOfsEncAreaStart:], h.EncAreaStart)
	binary.BigEndian.PutUint64(p[types.HeaderOfsEncAreaLength:], h.EncAreaLength)
	binary.BigEndian.PutUint32(p[types.HeaderOfsFlags:], h.Flags)
	binary.BigEndian.PutUint32(p[types.HeaderOfsSectorSize:], h.SectorSize)
	copy(p[types.HeaderOfsMasterKeydata:], h.MasterKeydata[:])

	keyAreaCRC := checksum.CRC32(p[types.HeaderOfsMasterKeydata : types.HeaderOfsMasterKeydata+types.HeaderMasterKeydataSize])
	binary.BigEndian.PutUint32(p[types.HeaderOfsKeyAreaCRC:], keyAreaCRC)

	headerCRC := checksum.CRC32(p[:types.HeaderCRCRegionSize])
	binary.BigEndian.PutUint32(p[types.HeaderOfsHeaderCRC:], headerCRC)

	return p
}

// decodePayload parses and validates a decrypted 448-byte payload. Magic
// and CRC failures all surface as ErrAuthFailure so a wrong password and a
// damaged header are indistinguishable to the caller.
func decodePayload(p []byte) (*types.VolumeHeader, error) {
	if len(p) != types.HeaderPayloadSize {
		return nil, fmt.Errorf("%w: header payload must be %d bytes, got %d", types.ErrInvalidArgument, types.HeaderPayloadSize, len(p))
	}

	if string(p[types.HeaderOfsMagic:types.HeaderOfsMagic+4]) != types.VolumeHeaderMagic {
		return nil, fmt.Errorf("%w: invalid password or corrupted header", types.ErrAuthFailure)
	}

	keyAreaCRC := binary.BigEndian.Uint32(p[types.HeaderOfsKeyAreaCRC:])
	if checksum.CRC32(p[types.HeaderOfsMasterKeydata:types.HeaderOfsMasterKeydata+types.HeaderMasterKeydataSize]) != keyAreaCRC {
		return nil, fmt.Errorf("%w: invalid password or corrupted header", types.ErrAuthFailure)
	}

	headerCRC := binary.BigEndian.Uint32(p[types.HeaderOfsHeaderCRC:])
	if checksum.CRC32(p[:types.HeaderCRCRegionSize]) != headerCRC {
		return nil, fmt.Errorf("%w: invalid password or corrupted header", types.ErrAuthFailure)
	}

	h := &types.VolumeHeader{
		Version:           binary.BigEndian.Uint16(p[types.HeaderOfsVersion:]),
		MinProgramVersion: binary.BigEndian.Uint16(p[types.HeaderOfsMinProgramVer:]),
		KeyAreaCRC:        keyAreaCRC,
		VolumeCreated:     binary.BigEndian.Uint64(p[types.HeaderOfsVolumeCreated:]),
		HeaderModified:    binary.BigEndian.Uint64(p[types.HeaderOfsHeaderModified:]),
		HiddenVolumeSize:  binary.BigEndian.Uint64(p[types.HeaderOfsHiddenVolSize:]),
		VolumeSize:        binary.BigEndian.Uint64(p[types.HeaderOfsVolumeSize:]),
		EncAreaStart:      binary.BigEndian.Uint64(p[types.HeaderOfsEncAreaStart:]),
		EncAreaLength:     binary.BigEndian.Uint64(p[types.HeaderOfsEncAreaLength:]),
		Flags:             binary.BigEndian.Uint32(p[types.HeaderOfsFlags:]),
		SectorSize:        binary.BigEndian.Uint32(p[types.HeaderOfsSectorSize:]),
	}
	copy(h.MasterKeydata[:], p[types.HeaderOfsMasterKeydata:])

	if h.Version > types.HeaderVersion {
		return nil, fmt.Errorf("%w: header version %d not supported", types.ErrCorrupt, h.Version)
	}
	if h.SectorSize != types.SectorSize {
		return nil, fmt.Errorf("%w: unsupported sector size %d", types.ErrCorrupt, h.SectorSize)
	}

	return h, nil
}
