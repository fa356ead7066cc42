// File: internal/fat32/fat32_test.go
package fat32

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// memSectorDevice is a plaintext in-memory sector device, standing in for
// the encrypted one so filesystem tests exercise only the driver.
type memSectorDevice struct {
	data []byte
}

func newMemSectorDevice(sectors int) *memSectorDevice {
	return &memSectorDevice{data: make([]byte, sectors*types.SectorSize)}
}

func (m *memSectorDevice) SectorSize() uint32   { return types.SectorSize }
func (m *memSectorDevice) TotalSectors() uint64 { return uint64(len(m.data) / types.SectorSize) }

func (m *memSectorDevice) check(sector uint64, count uint32) error {
	if sector+uint64(count) > m.TotalSectors() {
		return fmt.Errorf("%w: sectors [%d, +%d)", types.ErrOutOfBounds, sector, count)
	}
	return nil
}

func (m *memSectorDevice) ReadSector(sector uint64) ([]byte, error) {
	return m.ReadSectors(sector, 1)
}

func (m *memSectorDevice) ReadSectors(sector uint64, count uint32) ([]byte, error) {
	dst := make([]byte, int(count)*types.SectorSize)
	if err := m.ReadSectorsInto(dst, sector, count); err != nil {
		return nil, err
	}
	return dst, nil
}

func (m *memSectorDevice) ReadSectorsInto(dst []byte, sector uint64, count uint32) error {
	if err := m.check(sector, count); err != nil {
		return err
	}
	copy(dst, m.data[sector*types.SectorSize:])
	return nil
}

func (m *memSectorDevice) WriteSector(sector uint64, data []byte) error {
	return m.WriteSectors(sector, data)
}

func (m *memSectorDevice) WriteSectors(sector uint64, data []byte) error {
	if err := m.check(sector, uint32(len(data)/types.SectorSize)); err != nil {
		return err
	}
	copy(m.data[sector*types.SectorSize:], data)
	return nil
}

// newTestFS formats and mounts a filesystem over the given sector count.
func newTestFS(t *testing.T, sectors int) *FS {
	t.Helper()
	dev := newMemSectorDevice(sectors)
	require.NoError(t, Format(dev, "TESTVOL"))
	fs, err := New(dev, device.DefaultEngineConfig())
	require.NoError(t, err)
	return fs
}

func TestFormatAndMount(t *testing.T) {
	fs := newTestFS(t, 8192)

	bs := fs.BootSector()
	assert.Equal(t, types.FATType32, bs.Type)
	assert.Equal(t, uint16(types.SectorSize), bs.BytesPerSector)
	assert.Equal(t, uint8(8), bs.SectorsPerCluster)
	assert.Equal(t, uint32(2), bs.RootDirCluster)
	assert.Equal(t, "TESTVOL", bs.VolumeLabel)
	assert.Equal(t, "FAT32", bs.FileSystemType)
	assert.NotZero(t, bs.VolumeID)

	entries, err := fs.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	free, err := fs.FreeSpace()
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
	assert.LessOrEqual(t, free, fs.TotalSpace())
}

func TestCreateWriteReadDelete(t *testing.T) {
	fs := newTestFS(t, 8192)

	_, err := fs.CreateFile("/", "hello.txt")
	require.NoError(t, err)

	content := []byte("hello fat32 world")
	require.NoError(t, fs.Write("/hello.txt", content))

	got, err := fs.Read("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	st, err := fs.Stat("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(len(content)), st.Size)
	assert.False(t, st.IsDirectory)
	assert.Equal(t, "hello.txt", st.Name)

	require.NoError(t, fs.Delete("/hello.txt"))
	exists, err := fs.Exists("/hello.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteCreatesMissingFile(t *testing.T) {
	fs := newTestFS(t, 8192)

	content := []byte("created by write")
	require.NoError(t, fs.Write("/implicit.bin", content))

	got, err := fs.Read("/implicit.bin")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOverwriteShrinksAndGrows(t *testing.T) {
	fs := newTestFS(t, 8192)

	big := bytes.Repeat([]byte{0xAB}, 3*4096+17)
	require.NoError(t, fs.Write("/f", big))
	got, err := fs.Read("/f")
	require.NoError(t, err)
	assert.Equal(t, big, got)

	small := []byte("tiny")
	require.NoError(t, fs.Write("/f", small))
	got, err = fs.Read("/f")
	require.NoError(t, err)
	assert.Equal(t, small, got)

	free1, err := fs.FreeSpace()
	require.NoError(t, err)

	// Shrinking released the extra clusters.
	bigger := bytes.Repeat([]byte{0xCD}, 8*4096)
	require.NoError(t, fs.Write("/f", bigger))
	free2, err := fs.FreeSpace()
	require.NoError(t, err)
	assert.Less(t, free2, free1)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	fs := newTestFS(t, 8192)
	require.NoError(t, fs.Write("/MiXeD.txt", []byte("x")))

	st, err := fs.Stat("/mixed.TXT")
	require.NoError(t, err)
	assert.Equal(t, "MiXeD.txt", st.Name)

	_, err = fs.CreateFile("/", "MIXED.txt")
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestUnicodeLongNameRoundTrip(t *testing.T) {
	fs := newTestFS(t, 8192)

	name := "A file with a long name and unicode 测试.txt"
	require.NoError(t, fs.Write("/"+name, []byte("hello")))

	entries, err := fs.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, name, entries[0].Name)

	got, err := fs.Read(entries[0].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestDirectoryGrowthWith32LongNames(t *testing.T) {
	fs := newTestFS(t, 16384)

	names := make([]string, 32)
	for i := range names {
		names[i] = fmt.Sprintf("file-%06d.txt", i)
		require.NoError(t, fs.Write("/"+names[i], []byte(names[i])))
	}

	entries, err := fs.List("/")
	require.NoError(t, err)
	require.Len(t, entries, 32)

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.Name] = true
	}
	for _, n := range names {
		assert.True(t, seen[n], "missing %s", n)
		got, err := fs.Read("/" + n)
		require.NoError(t, err)
		assert.Equal(t, []byte(n), got)
	}
}

func TestSubdirectories(t *testing.T) {
	fs := newTestFS(t, 8192)

	_, err := fs.CreateDirectory("/", "docs")
	require.NoError(t, err)
	_, err = fs.CreateDirectory("/docs", "inner")
	require.NoError(t, err)

	require.NoError(t, fs.Write("/docs/inner/note.txt", []byte("nested")))

	st, err := fs.Stat("/docs/inner/note.txt")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), st.Size)

	entries, err := fs.List("/docs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDirectory)

	// Recursive delete removes the whole subtree.
	require.NoError(t, fs.Delete("/docs"))
	exists, err := fs.Exists("/docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListOnFileFails(t *testing.T) {
	fs := newTestFS(t, 8192)
	require.NoError(t, fs.Write("/f", []byte("x")))

	_, err := fs.List("/f")
	assert.ErrorIs(t, err, types.ErrNotADirectory)

	_, err = fs.Read("/")
	assert.ErrorIs(t, err, types.ErrNotAFile)
}

func TestNotFoundPaths(t *testing.T) {
	fs := newTestFS(t, 8192)

	_, err := fs.Stat("/missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = fs.Read("/missing/deeper")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestReadRange(t *testing.T) {
	fs := newTestFS(t, 8192)

	data := make([]byte, 3*4096+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, fs.Write("/r", data))

	cases := []struct{ ofs, length uint64 }{
		{0, 10},
		{4095, 2},
		{4096, 4096},
		{8000, 5000},
		{uint64(len(data)) - 1, 1},
	}
	for _, tc := range cases {
		got, err := fs.ReadRange("/r", tc.ofs, tc.length)
		require.NoError(t, err)
		want := data[tc.ofs:min64(tc.ofs+tc.length, uint64(len(data)))]
		assert.Equal(t, want, got, "ofs=%d len=%d", tc.ofs, tc.length)
	}

	// Length clamps at end of file.
	got, err := fs.ReadRange("/r", uint64(len(data))-5, 100)
	require.NoError(t, err)
	assert.Equal(t, data[len(data)-5:], got)

	_, err = fs.ReadRange("/r", uint64(len(data))+1, 1)
	assert.ErrorIs(t, err, types.ErrOutOfBounds)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func TestStream(t *testing.T) {
	fs := newTestFS(t, 8192)

	data := bytes.Repeat([]byte("stream-payload-"), 2000)
	require.NoError(t, fs.Write("/s", data))

	var sink bytes.Buffer
	require.NoError(t, fs.Stream("/s", &sink))
	assert.Equal(t, data, sink.Bytes())
}

// brokenSink fails after accepting a fixed number of bytes.
type brokenSink struct {
	accept int
}

func (b *brokenSink) Write(p []byte) (int, error) {
	if b.accept <= 0 {
		return 0, fmt.Errorf("pipe closed")
	}
	n := len(p)
	if n > b.accept {
		n = b.accept
	}
	b.accept -= n
	if n < len(p) {
		return n, fmt.Errorf("pipe closed")
	}
	return n, nil
}

func TestStreamBrokenSinkIsNotAnError(t *testing.T) {
	fs := newTestFS(t, 8192)

	data := bytes.Repeat([]byte{0x5A}, 6*4096)
	require.NoError(t, fs.Write("/s", data))

	assert.NoError(t, fs.Stream("/s", &brokenSink{accept: 100}))
}

func TestWriteStream(t *testing.T) {
	fs := newTestFS(t, 16384)

	data := make([]byte, 5*4096+123)
	for i := range data {
		data[i] = byte(i * 7)
	}

	var reports []uint64
	err := fs.WriteStream("/ws", bytes.NewReader(data), uint64(len(data)), func(w uint64) {
		reports = append(reports, w)
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	assert.Equal(t, uint64(len(data)), reports[len(reports)-1])

	got, err := fs.ReadRange("/ws", 0, uint64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteStreamShortSource(t *testing.T) {
	fs := newTestFS(t, 8192)

	err := fs.WriteStream("/short", bytes.NewReader([]byte("abc")), 1000, nil)
	assert.Error(t, err)
}

func TestDiskFull(t *testing.T) {
	// Small filesystem: fill it until allocation fails.
	fs := newTestFS(t, 2048)

	payload := bytes.Repeat([]byte{1}, int(fs.BootSector().ClusterSize))
	var err error
	for i := 0; i < 10000; i++ {
		err = fs.Write(fmt.Sprintf("/f%04d", i), payload)
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDiskFull)
}

func TestDeleteCreateIdempotence(t *testing.T) {
	fs := newTestFS(t, 8192)

	require.NoError(t, fs.Write("/cycle.txt", []byte("one")))
	require.NoError(t, fs.Delete("/cycle.txt"))
	require.NoError(t, fs.Write("/cycle.txt", []byte("two")))

	got, err := fs.Read("/cycle.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	entries, err := fs.List("/")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInvalidNames(t *testing.T) {
	fs := newTestFS(t, 8192)

	_, err := fs.CreateFile("/", "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = fs.CreateFile("/", "a/b")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = fs.CreateDirectory("/", ".")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestDeleteRootRejected(t *testing.T) {
	fs := newTestFS(t, 8192)
	assert.ErrorIs(t, fs.Delete("/"), types.ErrInvalidArgument)
}

func TestEmptyFileRead(t *testing.T) {
	fs := newTestFS(t, 8192)

	_, err := fs.CreateFile("/", "empty")
	require.NoError(t, err)

	got, err := fs.Read("/empty")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = fs.ReadRange("/empty", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
