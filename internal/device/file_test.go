// File: internal/device/file_test.go
package device

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

func TestCreateFileAllocatesFullSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := CreateFile(fs, "vol.hc", 4096)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, int64(4096), dev.Size())

	buf := make([]byte, 4096)
	n, err := dev.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestCreateFileRefusesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "vol.hc", []byte("x"), 0600))

	_, err := CreateFile(fs, "vol.hc", 1024)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestCreateFileRejectsBadSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := CreateFile(fs, "vol.hc", 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = CreateFile(fs, "vol.hc", -5)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestOpenFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := OpenFile(fs, "nope.hc")
	assert.Error(t, err)
}

func TestReadWriteRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := CreateFile(fs, "vol.hc", 2048)
	require.NoError(t, err)
	defer dev.Close()

	payload := []byte("sector payload bytes")
	n, err := dev.WriteAt(payload, 512)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	got := make([]byte, len(payload))
	n, err = dev.ReadAt(got, 512)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestWritesPersistAcrossReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := CreateFile(fs, "vol.hc", 1024)
	require.NoError(t, err)

	_, err = dev.WriteAt([]byte{0xDE, 0xAD}, 100)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	dev, err = OpenFile(fs, "vol.hc")
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, int64(1024), dev.Size())
	got := make([]byte, 2)
	_, err = dev.ReadAt(got, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, got)
}

func TestOutOfBoundsAccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := CreateFile(fs, "vol.hc", 1024)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 16)

	_, err = dev.ReadAt(buf, -1)
	assert.ErrorIs(t, err, types.ErrOutOfBounds)

	_, err = dev.ReadAt(buf, 1020)
	assert.ErrorIs(t, err, types.ErrOutOfBounds)

	_, err = dev.WriteAt(buf, 1024)
	assert.ErrorIs(t, err, types.ErrOutOfBounds)

	// Exactly at the end is fine.
	_, err = dev.WriteAt(buf, 1008)
	assert.NoError(t, err)
}

func TestClosedDevice(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := CreateFile(fs, "vol.hc", 1024)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	_, err = dev.ReadAt(make([]byte, 4), 0)
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = dev.WriteAt(make([]byte, 4), 0)
	assert.ErrorIs(t, err, types.ErrClosed)

	// Double close is a no-op.
	assert.NoError(t, dev.Close())
}
