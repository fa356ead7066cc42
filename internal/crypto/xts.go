// File: internal/crypto/xts.go
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// XTS implements the IEEE 1619 XTS-AES tweakable cipher over 512-byte disk
// sectors, with the tweak conventions VeraCrypt uses: the 64-bit unit
// number is encoded little-endian into the first 8 tweak bytes and
// encrypted under the second key half.
//
// The struct holds only expanded key schedules and is safe for concurrent
// use; batch calls keep their scratch on the stack or in per-call buffers.
type XTS struct {
	k1 cipher.Block // data cipher
	k2 cipher.Block // tweak cipher

	// Retained so Wipe can destroy the raw halves handed to NewXTS.
	k1key []byte
	k2key []byte
}

const (
	xtsBlockSize    = 16
	xtsSectorSize   = types.SectorSize
	blocksPerSector = xtsSectorSize / xtsBlockSize
)

// NewXTS builds an XTS cipher from a 32-byte (AES-128) or 64-byte
// (AES-256) key. The first half keys the data cipher, the second half the
// tweak cipher.
func NewXTS(key []byte) (*XTS, error) {
	if len(key) != 32 && len(key) != 64 {
		return nil, fmt.Errorf("%w: XTS key must be 32 or 64 bytes, got %d", types.ErrInvalidArgument, len(key))
	}

	half := len(key) / 2
	k1key := make([]byte, half)
	k2key := make([]byte, half)
	copy(k1key, key[:half])
	copy(k2key, key[half:])

	k1, err := aes.NewCipher(k1key)
	if err != nil {
		return nil, fmt.Errorf("%w: data cipher init failed: %v", types.ErrCorrupt, err)
	}
	k2, err := aes.NewCipher(k2key)
	if err != nil {
		return nil, fmt.Errorf("%w: tweak cipher init failed: %v", types.ErrCorrupt, err)
	}

	return &XTS{k1: k1, k2: k2, k1key: k1key, k2key: k2key}, nil
}

// Wipe overwrites the retained key halves. The expanded AES schedules
// inside crypto/aes cannot be reached; dropping the block references on
// unmount is the best the runtime allows.
func (x *XTS) Wipe() {
	Wipe(x.k1key)
	Wipe(x.k2key)
	x.k1 = nil
	x.k2 = nil
}

// initialTweak computes T0 for a unit number: the number little-endian in
// bytes 0..7, zeros in 8..15, encrypted with the tweak cipher.
func (x *XTS) initialTweak(tweak *[xtsBlockSize]byte, unitNum uint64) {
	binary.LittleEndian.PutUint64(tweak[0:8], unitNum)
	binary.LittleEndian.PutUint64(tweak[8:16], 0)
	x.k2.Encrypt(tweak[:], tweak[:])
}

// mulAlpha multiplies the tweak by alpha in GF(2^128) with the reduction
// polynomial x^128 + x^7 + x^2 + x + 1, operating on two little-endian
// 64-bit words.
func mulAlpha(tweak *[xtsBlockSize]byte) {
	lo := binary.LittleEndian.Uint64(tweak[0:8])
	hi := binary.LittleEndian.Uint64(tweak[8:16])

	var carry uint64
	if hi>>63 != 0 {
		carry = 0x87
	}
	hi = hi<<1 | lo>>63
	lo = lo<<1 ^ carry

	binary.LittleEndian.PutUint64(tweak[0:8], lo)
	binary.LittleEndian.PutUint64(tweak[8:16], hi)
}

// tweakSchedule fills sched with the 32 consecutive tweaks T0..T31 for one
// sector, as one 512-byte sweep buffer.
func (x *XTS) tweakSchedule(sched *[xtsSectorSize]byte, unitNum uint64) {
	var t [xtsBlockSize]byte
	x.initialTweak(&t, unitNum)
	for i := 0; i < blocksPerSector; i++ {
		copy(sched[i*xtsBlockSize:], t[:])
		mulAlpha(&t)
	}
}

// EncryptBlocks encrypts src as one continuous XTS unit under tweak number
// unitNum. len(src) must be a non-zero multiple of 16. The volume header
// payload is handled this way: 448 bytes as 28 blocks at unit 0.
func (x *XTS) EncryptBlocks(dst, src []byte, unitNum uint64) error {
	if err := checkBlockLen(dst, src); err != nil {
		return err
	}

	var t [xtsBlockSize]byte
	x.initialTweak(&t, unitNum)

	for i := 0; i < len(src); i += xtsBlockSize {
		for j := 0; j < xtsBlockSize; j++ {
			dst[i+j] = src[i+j] ^ t[j]
		}
		x.k1.Encrypt(dst[i:i+xtsBlockSize], dst[i:i+xtsBlockSize])
		for j := 0; j < xtsBlockSize; j++ {
			dst[i+j] ^= t[j]
		}
		mulAlpha(&t)
	}
	return nil
}

// DecryptBlocks is the inverse of EncryptBlocks.
func (x *XTS) DecryptBlocks(dst, src []byte, unitNum uint64) error {
	if err := checkBlockLen(dst, src); err != nil {
		return err
	}

	var t [xtsBlockSize]byte
	x.initialTweak(&t, unitNum)

	for i := 0; i < len(src); i += xtsBlockSize {
		for j := 0; j < xtsBlockSize; j++ {
			dst[i+j] = src[i+j] ^ t[j]
		}
		x.k1.Decrypt(dst[i:i+xtsBlockSize], dst[i:i+xtsBlockSize])
		for j := 0; j < xtsBlockSize; j++ {
			dst[i+j] ^= t[j]
		}
		mulAlpha(&t)
	}
	return nil
}

// EncryptSectors encrypts consecutive 512-byte sectors, the tweak number
// advancing by one per sector starting at sectorNum. The whole tweak
// schedule for a sector is precomputed so the cipher runs over the buffer
// in one pass between two XOR sweeps.
func (x *XTS) EncryptSectors(dst, src []byte, sectorNum uint64) error {
	return x.runSectors(dst, src, sectorNum, true)
}

// DecryptSectors is the inverse of EncryptSectors.
func (x *XTS) DecryptSectors(dst, src []byte, sectorNum uint64) error {
	return x.runSectors(dst, src, sectorNum, false)
}

func (x *XTS) runSectors(dst, src []byte, sectorNum uint64, encrypt bool) error {
	if len(dst) < len(src) {
		return fmt.Errorf("%w: destination shorter than source", types.ErrInvalidArgument)
	}
	if len(src) == 0 || len(src)%xtsSectorSize != 0 {
		return fmt.Errorf("%w: sector batch length %d is not a multiple of %d", types.ErrInvalidArgument, len(src), xtsSectorSize)
	}

	var sched [xtsSectorSize]byte
	for ofs := 0; ofs < len(src); ofs += xtsSectorSize {
		x.tweakSchedule(&sched, sectorNum)
		sectorNum++

		in := src[ofs : ofs+xtsSectorSize]
		out := dst[ofs : ofs+xtsSectorSize]

		for i := range in {
			out[i] = in[i] ^ sched[i]
		}
		if encrypt {
			for i := 0; i < xtsSectorSize; i += xtsBlockSize {
				x.k1.Encrypt(out[i:i+xtsBlockSize], out[i:i+xtsBlockSize])
			}
		} else {
			for i := 0; i < xtsSectorSize; i += xtsBlockSize {
				x.k1.Decrypt(out[i:i+xtsBlockSize], out[i:i+xtsBlockSize])
			}
		}
		for i := range out {
			out[i] ^= sched[i]
		}
	}
	return nil
}

func checkBlockLen(dst, src []byte) error {
	if len(dst) < len(src) {
		return fmt.Errorf("%w: destination shorter than source", types.ErrInvalidArgument)
	}
	if len(src) == 0 || len(src)%xtsBlockSize != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of %d", types.ErrInvalidArgument, len(src), xtsBlockSize)
	}
	return nil
}
