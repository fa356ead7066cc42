// File: internal/fat32/dirent_test.go
package fat32

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

func shortFrom(s string) [11]byte {
	var short [11]byte
	copy(short[:], s)
	return short
}

func TestLFNChecksumKnownValue(t *testing.T) {
	// Reference value for "FILENAMETXT" computed with the rotate-and-add
	// algorithm from the FAT specification.
	short := shortFrom("FILENAMETXT")
	var want byte
	for _, b := range short {
		want = ((want & 1) << 7) + (want >> 1) + b
	}
	assert.Equal(t, want, lfnChecksum(&short))

	other := shortFrom("README  MD ")
	assert.NotEqual(t, lfnChecksum(&short), lfnChecksum(&other))
}

func TestParseShortName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"README  MD ", "README.MD"},
		{"NOEXT       ", "NOEXT"},
		{"A       B  ", "A.B"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, parseShortName([]byte(tc.raw)[:11]), tc.raw)
	}

	kanji := []byte("AFILE   TXT")
	kanji[0] = types.DirEntryKanjiEscape
	assert.Equal(t, "\xe5FILE.TXT", parseShortName(kanji))
}

func TestShortNameBasis(t *testing.T) {
	tests := []struct {
		name    string
		short   string
		needLFN bool
	}{
		{"README.MD", "README  MD ", false},
		{"readme.md", "README  MD ", true},
		{"NOEXT", "NOEXT      ", false},
		{"verylongfilename.txt", "VERYLONGTXT", true},
		{"spaced name.txt", "SPACED_NTXT", true},
		{"über.txt", "_BER    TXT", true},
	}
	for _, tc := range tests {
		short, needLFN := shortNameBasis(tc.name)
		assert.Equal(t, shortFrom(tc.short), short, tc.name)
		assert.Equal(t, tc.needLFN, needLFN, tc.name)
	}
}

func TestApplyNumericTail(t *testing.T) {
	short, _ := shortNameBasis("verylongfilename.txt")
	applyNumericTail(&short, 1)
	assert.Equal(t, shortFrom("VERYLO~1TXT"), short)

	applyNumericTail(&short, 123)
	assert.Equal(t, shortFrom("VERY~123TXT"), short)

	short2, _ := shortNameBasis("ab.txt")
	applyNumericTail(&short2, 2)
	assert.Equal(t, shortFrom("AB~2    TXT"), short2)
}

func TestLFNEncodeDecodeRoundTrip(t *testing.T) {
	names := []string{
		"simple long name.txt",
		"exactly-13-ch",
		"mixed 测试 ünïcode name.dat",
	}
	for _, name := range names {
		short, needLFN := shortNameBasis(name)
		require.True(t, needLFN, name)
		sum := lfnChecksum(&short)

		raw := encodeLFNEntries(name, sum)
		require.Equal(t, lfnEntryCount(name)*types.DirEntrySize, len(raw))

		var acc lfnAccumulator
		for off := 0; off < len(raw); off += types.DirEntrySize {
			acc.add(raw[off : off+types.DirEntrySize])
		}
		got, ok := acc.take(&short)
		require.True(t, ok, name)
		assert.Equal(t, name, got)
	}
}

func TestLFNChecksumMismatchDropsName(t *testing.T) {
	name := "orphaned long name.txt"
	short, _ := shortNameBasis(name)
	raw := encodeLFNEntries(name, lfnChecksum(&short)+1)

	var acc lfnAccumulator
	for off := 0; off < len(raw); off += types.DirEntrySize {
		acc.add(raw[off : off+types.DirEntrySize])
	}
	_, ok := acc.take(&short)
	assert.False(t, ok)
}

func TestShortEntryRoundTrip(t *testing.T) {
	short := shortFrom("REPORT  PDF")
	modified := time.Date(2026, 8, 6, 14, 30, 0, 0, time.Local)

	raw := encodeShortEntry(&short, types.AttrArchive, 0x00012345, 987654, modified)
	require.Len(t, raw, types.DirEntrySize)

	entry := parseDirEntry(raw, "")
	assert.Equal(t, "REPORT.PDF", entry.Name)
	assert.False(t, entry.IsDirectory)
	assert.Equal(t, uint32(0x00012345), entry.FirstCluster)
	assert.Equal(t, uint32(987654), entry.Size)
	assert.Equal(t, modified, entry.LastModified)
}

func TestTimestampCodec(t *testing.T) {
	ts := time.Date(2026, 8, 6, 14, 30, 42, 0, time.Local)
	date, tod := EncodeTimestamp(ts)
	got := DecodeTimestamp(date, tod)
	assert.Equal(t, ts.Year(), got.Year())
	assert.Equal(t, ts.Month(), got.Month())
	assert.Equal(t, ts.Day(), got.Day())
	assert.Equal(t, ts.Hour(), got.Hour())
	assert.Equal(t, ts.Minute(), got.Minute())
	// Seconds carry two-second granularity.
	assert.Equal(t, 42, got.Second())

	// Pre-epoch times clamp to the FAT epoch.
	date, tod = EncodeTimestamp(time.Date(1975, 1, 1, 0, 0, 0, 0, time.Local))
	got = DecodeTimestamp(date, tod)
	assert.Equal(t, 1980, got.Year())
}
