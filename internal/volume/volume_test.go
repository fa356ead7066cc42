// File: internal/volume/volume_test.go
package volume

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// testPIM keeps the PBKDF2 iteration count low so the suite stays fast.
const testPIM = 1

const testContainerSize = 2 * 1024 * 1024

func testParams() MountParams {
	return MountParams{
		Password: []byte("volume test password"),
		PIM:      testPIM,
		Config:   device.DefaultEngineConfig(),
	}
}

func newTestContainer(t *testing.T) (afero.Fs, interfaces.BlockDevice) {
	t.Helper()
	fs := afero.NewMemMapFs()
	dev, err := device.CreateFile(fs, "/container.vc", testContainerSize)
	require.NoError(t, err)
	return fs, dev
}

func TestCreateMountsReadyVolume(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "VOLTEST")
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, StateMounted, v.State())

	entries, err := v.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	h, err := v.Header()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), h.Version)
	assert.Equal(t, uint64(types.DataAreaOffset), h.EncAreaStart)
	assert.Equal(t, uint64(testContainerSize-2*types.BackupHeaderGroupSize), h.VolumeSize)
	assert.Equal(t, [types.HeaderMasterKeydataSize]byte{}, h.MasterKeydata)
}

func TestRemountPersistsData(t *testing.T) {
	fs, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)

	content := bytes.Repeat([]byte("persistent payload "), 700)
	require.NoError(t, v.CreateDirectory("/", "docs"))
	require.NoError(t, v.Write("/docs/Notes über Go.txt", content))
	require.NoError(t, v.Close())
	assert.Equal(t, StateUnmounted, v.State())

	dev2, err := device.OpenFile(fs, "/container.vc")
	require.NoError(t, err)
	v2, err := Open(dev2, testParams())
	require.NoError(t, err)
	defer v2.Close()

	got, err := v2.Read("/docs/notes über go.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	entry, err := v2.Stat("/docs/Notes über Go.txt")
	require.NoError(t, err)
	assert.Equal(t, "Notes über Go.txt", entry.Name)
	assert.False(t, entry.IsDirectory)
}

func TestOpenWrongPasswordFails(t *testing.T) {
	fs, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	require.NoError(t, v.Close())

	dev2, err := device.OpenFile(fs, "/container.vc")
	require.NoError(t, err)
	defer dev2.Close()

	bad := testParams()
	bad.Password = []byte("not the password")
	_, err = Open(dev2, bad)
	assert.ErrorIs(t, err, types.ErrAuthFailure)
}

func TestKeyfileMountRoundTrip(t *testing.T) {
	fs, dev := newTestContainer(t)

	require.NoError(t, afero.WriteFile(fs, "/key.bin", bytes.Repeat([]byte{0x5A, 0x13}, 4096), 0o600))

	params := testParams()
	params.Keyfiles = []string{"/key.bin"}
	params.KeyfileFs = fs

	v, err := Create(dev, params, "")
	require.NoError(t, err)
	require.NoError(t, v.Write("/secret.txt", []byte("keyfile protected")))
	require.NoError(t, v.Close())

	dev2, err := device.OpenFile(fs, "/container.vc")
	require.NoError(t, err)
	v2, err := Open(dev2, params)
	require.NoError(t, err)
	got, err := v2.Read("/secret.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("keyfile protected"), got)
	require.NoError(t, v2.Close())

	// The same password without the keyfile must not open the volume.
	dev3, err := device.OpenFile(fs, "/container.vc")
	require.NoError(t, err)
	defer dev3.Close()
	_, err = Open(dev3, testParams())
	assert.ErrorIs(t, err, types.ErrAuthFailure)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.List("/")
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = v.Read("/a.txt")
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, v.Write("/a.txt", []byte("x")), types.ErrClosed)
	assert.ErrorIs(t, v.Delete("/a.txt"), types.ErrClosed)
	_, err = v.FreeSpace()
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.Zero(t, v.TotalSpace())
}

func TestMutationInvalidatesListingCache(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	defer v.Close()

	entries, err := v.List("/")
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, v.Write("/fresh.txt", []byte("one")))

	entries, err = v.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh.txt", entries[0].Name)

	require.NoError(t, v.Delete("/fresh.txt"))
	entries, err = v.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatServedFromListingCache(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.Write("/cached.txt", []byte("abc")))

	_, err = v.List("/")
	require.NoError(t, err)

	entry, err := v.Stat("/CACHED.TXT")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), entry.Size)

	ok, err := v.Exists("/cached.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = v.Exists("/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreeSpaceShrinksAfterWrite(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	defer v.Close()

	before, err := v.FreeSpace()
	require.NoError(t, err)
	require.Greater(t, before, uint64(0))
	assert.LessOrEqual(t, before, v.TotalSpace())

	require.NoError(t, v.Write("/big.bin", bytes.Repeat([]byte{0xAB}, 64*1024)))

	after, err := v.FreeSpace()
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestCreateRejectsTinyDevice(t *testing.T) {
	fs := afero.NewMemMapFs()
	dev, err := device.CreateFile(fs, "/tiny.vc", 256*1024)
	require.NoError(t, err)
	defer dev.Close()

	_, err = Create(dev, testParams(), "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestStreamThroughVolume(t *testing.T) {
	_, dev := newTestContainer(t)

	v, err := Create(dev, testParams(), "")
	require.NoError(t, err)
	defer v.Close()

	content := bytes.Repeat([]byte("stream me "), 2000)
	require.NoError(t, v.WriteStream("/s.bin", bytes.NewReader(content), uint64(len(content)), nil))

	var sink bytes.Buffer
	require.NoError(t, v.Stream("/s.bin", &sink))
	assert.Equal(t, content, sink.Bytes())

	got, err := v.ReadRange("/s.bin", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, content[10:30], got)
}
