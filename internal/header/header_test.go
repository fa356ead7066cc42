// File: internal/header/header_test.go
package header

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

const testContainerSize = int64(types.MinContainerSize)

// Low PIM keeps PBKDF2 fast in tests: 15000 + 1000*1 = 16000 iterations.
const testPIM = 1

func newTestDevice(t *testing.T) interfaces.BlockDevice {
	t.Helper()
	fs := afero.NewMemMapFs()
	dev, err := device.CreateFile(fs, "vol.hc", testContainerSize)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestCreateOpenRoundTrip(t *testing.T) {
	dev := newTestDevice(t)

	created, err := Create(dev, CreateParams{
		Password:  []byte("testpassword"),
		PIM:       testPIM,
		TotalSize: testContainerSize,
	})
	require.NoError(t, err)

	opened, err := Open(dev, []byte("testpassword"), testPIM)
	require.NoError(t, err)

	wantDataArea := uint64(testContainerSize - types.DataAreaOffset - types.BackupHeaderGroupSize)
	assert.Equal(t, uint16(types.HeaderVersion), opened.Version)
	assert.Equal(t, uint64(types.DataAreaOffset), opened.EncAreaStart)
	assert.Equal(t, wantDataArea, opened.EncAreaLength)
	assert.Equal(t, wantDataArea, opened.VolumeSize)
	assert.Equal(t, uint32(types.SectorSize), opened.SectorSize)
	assert.Equal(t, created.MasterKeydata, opened.MasterKeydata)
	assert.False(t, opened.IsSystemEncryption())
}

func TestOpenWrongPassword(t *testing.T) {
	dev := newTestDevice(t)
	_, err := Create(dev, CreateParams{Password: []byte("right"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	_, err = Open(dev, []byte("wrong"), testPIM)
	assert.ErrorIs(t, err, types.ErrAuthFailure)
	assert.True(t, IsAuthFailure(err))
}

func TestOpenWrongPIM(t *testing.T) {
	dev := newTestDevice(t)
	_, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	_, err = Open(dev, []byte("pw"), testPIM+1)
	assert.ErrorIs(t, err, types.ErrAuthFailure)
}

func TestOpenFallsBackToBackupHeader(t *testing.T) {
	dev := newTestDevice(t)
	created, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	// Destroy the primary record.
	_, err = dev.WriteAt(make([]byte, types.HeaderSize), 0)
	require.NoError(t, err)

	opened, err := Open(dev, []byte("pw"), testPIM)
	require.NoError(t, err)
	assert.Equal(t, created.MasterKeydata, opened.MasterKeydata)
}

func TestOpenBothHeadersDestroyed(t *testing.T) {
	dev := newTestDevice(t)
	_, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	_, err = dev.WriteAt(make([]byte, types.HeaderSize), 0)
	require.NoError(t, err)
	_, err = dev.WriteAt(make([]byte, types.HeaderSize), BackupOffset(testContainerSize))
	require.NoError(t, err)

	_, err = Open(dev, []byte("pw"), testPIM)
	assert.ErrorIs(t, err, types.ErrAuthFailure)
}

func TestPrimaryAndBackupRecordsDiffer(t *testing.T) {
	dev := newTestDevice(t)
	_, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	primary := make([]byte, types.HeaderSize)
	backup := make([]byte, types.HeaderSize)
	_, err = dev.ReadAt(primary, 0)
	require.NoError(t, err)
	_, err = dev.ReadAt(backup, BackupOffset(testContainerSize))
	require.NoError(t, err)

	// Independent salts make the two ciphertext records distinct even
	// though they carry the same decoded header.
	assert.NotEqual(t, primary, backup)
}

func TestCreateRejectsBadSizes(t *testing.T) {
	dev := newTestDevice(t)

	_, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: types.MinContainerSize - 512})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: types.MinContainerSize + 100})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestRewritePreservesHeader(t *testing.T) {
	dev := newTestDevice(t)
	created, err := Create(dev, CreateParams{Password: []byte("pw"), PIM: testPIM, TotalSize: testContainerSize})
	require.NoError(t, err)

	created.HeaderModified++
	require.NoError(t, Rewrite(dev, created, []byte("pw"), testPIM, testContainerSize))

	opened, err := Open(dev, []byte("pw"), testPIM)
	require.NoError(t, err)
	assert.Equal(t, created.HeaderModified, opened.HeaderModified)
	assert.Equal(t, created.MasterKeydata, opened.MasterKeydata)
}

func TestEncodeDecodePayload(t *testing.T) {
	h := &types.VolumeHeader{
		Version:           types.HeaderVersion,
		MinProgramVersion: types.HeaderMinProgramVersion,
		VolumeCreated:     1700000000,
		HeaderModified:    1700000001,
		VolumeSize:        786432,
		EncAreaStart:      types.DataAreaOffset,
		EncAreaLength:     786432,
		SectorSize:        types.SectorSize,
	}
	for i := range h.MasterKeydata {
		h.MasterKeydata[i] = byte(i)
	}

	payload := encodePayload(h)
	require.Len(t, payload, types.HeaderPayloadSize)

	decoded, err := decodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, h.Version, decoded.Version)
	assert.Equal(t, h.VolumeSize, decoded.VolumeSize)
	assert.Equal(t, h.MasterKeydata, decoded.MasterKeydata)
}

func TestDecodePayloadRejectsTampering(t *testing.T) {
	h := &types.VolumeHeader{
		Version:    types.HeaderVersion,
		VolumeSize: 786432,
		SectorSize: types.SectorSize,
	}
	payload := encodePayload(h)

	bad := make([]byte, len(payload))
	copy(bad, payload)
	bad[0] = 'X'
	_, err := decodePayload(bad)
	assert.ErrorIs(t, err, types.ErrAuthFailure)

	copy(bad, payload)
	bad[types.HeaderOfsMasterKeydata] ^= 0xFF
	_, err = decodePayload(bad)
	assert.ErrorIs(t, err, types.ErrAuthFailure)

	copy(bad, payload)
	bad[types.HeaderOfsVolumeSize] ^= 0x01
	_, err = decodePayload(bad)
	assert.ErrorIs(t, err, types.ErrAuthFailure)
}
