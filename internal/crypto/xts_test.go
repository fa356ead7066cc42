package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// Vector 1 from IEEE P1619: AES-128, both key halves zero, unit 0, 32 zero
// plaintext bytes.
func TestXTSIEEEVector1(t *testing.T) {
	key := make([]byte, 32)
	x, err := NewXTS(key)
	require.NoError(t, err)

	src := make([]byte, 32)
	dst := make([]byte, 32)
	require.NoError(t, x.EncryptBlocks(dst, src, 0))

	wantBlock1 := []byte{
		0x91, 0x7c, 0xf6, 0x9e, 0xbd, 0x68, 0xb2, 0xec,
		0x9b, 0x9f, 0xe9, 0xa3, 0xea, 0xdd, 0xa6, 0x92,
	}
	wantBlock2 := []byte{
		0xcd, 0x43, 0xd2, 0xf5, 0x95, 0x98, 0xed, 0x85,
		0x8c, 0x02, 0xc2, 0x65, 0x2f, 0xbf, 0x92, 0x2e,
	}
	assert.Equal(t, wantBlock1, dst[:16])
	assert.Equal(t, wantBlock2, dst[16:32])

	back := make([]byte, 32)
	require.NoError(t, x.DecryptBlocks(back, dst, 0))
	assert.Equal(t, src, back)
}

func TestXTSRoundTripSectors(t *testing.T) {
	for _, keyLen := range []int{32, 64} {
		key := make([]byte, keyLen)
		_, err := rand.Read(key)
		require.NoError(t, err)

		x, err := NewXTS(key)
		require.NoError(t, err)

		plain := make([]byte, 4*types.SectorSize)
		_, err = rand.Read(plain)
		require.NoError(t, err)

		cipher := make([]byte, len(plain))
		require.NoError(t, x.EncryptSectors(cipher, plain, 256))
		assert.NotEqual(t, plain, cipher)

		back := make([]byte, len(plain))
		require.NoError(t, x.DecryptSectors(back, cipher, 256))
		assert.Equal(t, plain, back)
	}
}

func TestXTSBatchMatchesPerSector(t *testing.T) {
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	x, err := NewXTS(key)
	require.NoError(t, err)

	plain := make([]byte, 8*types.SectorSize)
	_, err = rand.Read(plain)
	require.NoError(t, err)

	batch := make([]byte, len(plain))
	require.NoError(t, x.EncryptSectors(batch, plain, 1000))

	single := make([]byte, len(plain))
	for i := 0; i < 8; i++ {
		ofs := i * types.SectorSize
		require.NoError(t, x.EncryptSectors(single[ofs:ofs+types.SectorSize], plain[ofs:ofs+types.SectorSize], uint64(1000+i)))
	}

	assert.Equal(t, batch, single)
}

// The precomputed schedule must equal repeated scalar alpha multiplication
// of T0.
func TestXTSTweakScheduleMatchesScalar(t *testing.T) {
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	x, err := NewXTS(key)
	require.NoError(t, err)

	var sched [types.SectorSize]byte
	x.tweakSchedule(&sched, 777)

	var t0 [16]byte
	x.initialTweak(&t0, 777)
	for i := 0; i < blocksPerSector; i++ {
		assert.Equal(t, t0[:], sched[i*16:(i+1)*16], "tweak %d", i)
		mulAlpha(&t0)
	}
}

// A sector encrypted with per-block tweak multiplies must match the
// sector-batch path exactly.
func TestXTSSectorMatchesBlockUnit(t *testing.T) {
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	x, err := NewXTS(key)
	require.NoError(t, err)

	plain := make([]byte, types.SectorSize)
	_, err = rand.Read(plain)
	require.NoError(t, err)

	asSector := make([]byte, types.SectorSize)
	require.NoError(t, x.EncryptSectors(asSector, plain, 42))

	asBlocks := make([]byte, types.SectorSize)
	require.NoError(t, x.EncryptBlocks(asBlocks, plain, 42))

	assert.Equal(t, asBlocks, asSector)
}

func TestXTSRejectsBadLengths(t *testing.T) {
	x, err := NewXTS(make([]byte, 64))
	require.NoError(t, err)

	err = x.EncryptBlocks(make([]byte, 15), make([]byte, 15), 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = x.EncryptSectors(make([]byte, 100), make([]byte, 100), 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = x.DecryptSectors(make([]byte, 256), make([]byte, 256), 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestXTSRejectsBadKeyLength(t *testing.T) {
	_, err := NewXTS(make([]byte, 48))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestXTSInPlace(t *testing.T) {
	key := make([]byte, 64)
	_, err := rand.Read(key)
	require.NoError(t, err)
	x, err := NewXTS(key)
	require.NoError(t, err)

	plain := make([]byte, types.SectorSize)
	_, err = rand.Read(plain)
	require.NoError(t, err)

	buf := make([]byte, types.SectorSize)
	copy(buf, plain)
	require.NoError(t, x.EncryptSectors(buf, buf, 9))
	require.False(t, bytes.Equal(plain, buf))
	require.NoError(t, x.DecryptSectors(buf, buf, 9))
	assert.Equal(t, plain, buf)
}
