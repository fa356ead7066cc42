// File: internal/fat32/dirent.go
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// lfnChecksum computes the short-name checksum stored in every LFN entry
// of a sequence.
func lfnChecksum(short *[11]byte) byte {
	var c byte
	for _, b := range short {
		c = ((c & 1) << 7) + (c >> 1) + b
	}
	return c
}

// parseShortName renders the 11 stored bytes as "STEM.EXT", dropping the
// dot when the extension is blank. A leading 0x05 escape byte maps back to
// 0xE5.
func parseShortName(entry []byte) string {
	stemBytes := make([]byte, 8)
	copy(stemBytes, entry[:8])
	if stemBytes[0] == types.DirEntryKanjiEscape {
		stemBytes[0] = 0xE5
	}
	stem := strings.TrimRight(string(stemBytes), " ")
	ext := strings.TrimRight(string(entry[8:11]), " ")
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

// lfnUnits extracts the 13 UCS-2 code units of one LFN fragment.
func lfnUnits(entry []byte) []uint16 {
	units := make([]uint16, 0, types.LFNCharsPerEntry)
	for _, ofs := range types.LFNCharOffsets {
		units = append(units, binary.LittleEndian.Uint16(entry[ofs:]))
	}
	return units
}

// lfnAccumulator rebuilds a long name from fragments read in on-disk
// order, which is reverse name order. Fragments prepend; terminator and
// fill units end a fragment's contribution.
type lfnAccumulator struct {
	units    []uint16
	checksum byte
	active   bool
}

func (a *lfnAccumulator) reset() {
	a.units = nil
	a.active = false
}

// add consumes one LFN fragment entry.
func (a *lfnAccumulator) add(entry []byte) {
	ordinal := entry[0]
	if ordinal&types.LFNLastEntryFlag != 0 {
		a.units = nil
		a.checksum = entry[types.LFNOfsChecksum]
	}

	frag := make([]uint16, 0, types.LFNCharsPerEntry)
	for _, u := range lfnUnits(entry) {
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		frag = append(frag, u)
	}
	a.units = append(frag, a.units...)
	a.active = true
}

// take returns the accumulated name when its checksum matches the short
// entry, and resets the accumulator either way.
func (a *lfnAccumulator) take(short *[11]byte) (string, bool) {
	defer a.reset()
	if !a.active || len(a.units) == 0 {
		return "", false
	}
	if a.checksum != lfnChecksum(short) {
		return "", false
	}
	return string(utf16.Decode(a.units)), true
}

// parseDirEntry decodes one 32-byte short entry into a FileEntry, using
// longName when the LFN sequence validated.
func parseDirEntry(entry []byte, longName string) types.FileEntry {
	name := longName
	if name == "" {
		name = parseShortName(entry)
	}

	first := uint32(binary.LittleEndian.Uint16(entry[types.DirOfsFirstClusterHi:]))<<16 |
		uint32(binary.LittleEndian.Uint16(entry[types.DirOfsFirstClusterLo:]))
	date := binary.LittleEndian.Uint16(entry[types.DirOfsWriteDate:])
	tod := binary.LittleEndian.Uint16(entry[types.DirOfsWriteTime:])

	return types.FileEntry{
		Name:         name,
		IsDirectory:  entry[types.DirOfsAttributes]&types.AttrDirectory != 0,
		Size:         binary.LittleEndian.Uint32(entry[types.DirOfsFileSize:]),
		LastModified: DecodeTimestamp(date, tod),
		FirstCluster: first & types.FATEntryMask,
	}
}

// shortNameAllowed reports whether a byte may appear in an 8.3 name.
func shortNameAllowed(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case bytes.IndexByte([]byte("$%'-_@~`!(){}^#&"), b) >= 0:
		return true
	default:
		return false
	}
}

// shortNameBasis derives the 11-byte 8.3 rendition of a name and reports
// whether the name also needs an LFN sequence to survive a round trip.
// The basis uppercases, strips disallowed bytes to underscores, and
// truncates stem and extension to their fields.
func shortNameBasis(name string) (short [11]byte, needLFN bool) {
	for i := range short {
		short[i] = ' '
	}

	stem := name
	ext := ""
	if dot := strings.LastIndexByte(name, '.'); dot > 0 && dot < len(name)-1 {
		stem = name[:dot]
		ext = name[dot+1:]
	}

	fill := func(dst []byte, src string) (used int, lossy bool) {
		for _, r := range src {
			if used == len(dst) {
				return used, true
			}
			b := byte('_')
			switch {
			case r < 0x80:
				c := byte(r)
				if c >= 'a' && c <= 'z' {
					c -= 'a' - 'A'
				}
				if shortNameAllowed(c) {
					b = c
				} else {
					lossy = true
				}
			default:
				lossy = true
			}
			dst[used] = b
			used++
		}
		return used, lossy
	}

	stemUsed, stemLossy := fill(short[:8], stem)
	_, extLossy := fill(short[8:11], ext)
	if stemUsed == 0 {
		short[0] = '_'
	}

	needLFN = stemLossy || extLossy ||
		len(stem) > 8 || len(ext) > 3 || len(name) > 12 ||
		parseShortName(short[:]) != name
	if short[0] == 0xE5 {
		short[0] = types.DirEntryKanjiEscape
	}
	return short, needLFN
}

// applyNumericTail overwrites the stem end with "~N" so colliding basis
// names stay unique within a directory.
func applyNumericTail(short *[11]byte, n int) {
	tail := fmt.Sprintf("~%d", n)
	stemLen := 8
	for stemLen > 0 && short[stemLen-1] == ' ' {
		stemLen--
	}
	pos := stemLen
	if pos > 8-len(tail) {
		pos = 8 - len(tail)
	}
	copy(short[pos:], tail)
}

// encodeLFNEntries emits the LFN sequence for name in on-disk order:
// highest ordinal first with the last-entry flag, down to ordinal 1 just
// before the short entry. The result is a multiple of 32 bytes.
func encodeLFNEntries(name string, checksum byte) []byte {
	units := utf16.Encode([]rune(name))
	n := (len(units) + types.LFNCharsPerEntry - 1) / types.LFNCharsPerEntry
	out := make([]byte, n*types.DirEntrySize)

	for ord := n; ord >= 1; ord-- {
		entry := out[(n-ord)*types.DirEntrySize : (n-ord+1)*types.DirEntrySize]
		entry[0] = byte(ord)
		if ord == n {
			entry[0] |= types.LFNLastEntryFlag
		}
		entry[types.DirOfsAttributes] = types.AttrLongName
		entry[types.LFNOfsChecksum] = checksum

		base := (ord - 1) * types.LFNCharsPerEntry
		for i, ofs := range types.LFNCharOffsets {
			var u uint16 = 0xFFFF
			switch idx := base + i; {
			case idx < len(units):
				u = units[idx]
			case idx == len(units):
				u = 0x0000
			}
			binary.LittleEndian.PutUint16(entry[ofs:], u)
		}
	}
	return out
}

// encodeShortEntry emits the 32-byte 8.3 entry.
func encodeShortEntry(short *[11]byte, attr byte, firstCluster, size uint32, modified time.Time) []byte {
	entry := make([]byte, types.DirEntrySize)
	copy(entry, short[:])
	entry[types.DirOfsAttributes] = attr

	date, tod := EncodeTimestamp(modified)
	binary.LittleEndian.PutUint16(entry[types.DirOfsCreateTime:], tod)
	binary.LittleEndian.PutUint16(entry[types.DirOfsCreateDate:], date)
	binary.LittleEndian.PutUint16(entry[types.DirOfsAccessDate:], date)
	binary.LittleEndian.PutUint16(entry[types.DirOfsWriteTime:], tod)
	binary.LittleEndian.PutUint16(entry[types.DirOfsWriteDate:], date)

	binary.LittleEndian.PutUint16(entry[types.DirOfsFirstClusterHi:], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(entry[types.DirOfsFirstClusterLo:], uint16(firstCluster))
	binary.LittleEndian.PutUint32(entry[types.DirOfsFileSize:], size)
	return entry
}

// lfnEntryCount returns how many LFN entries a name needs.
func lfnEntryCount(name string) int {
	return (nameUnitCount(name) + types.LFNCharsPerEntry - 1) / types.LFNCharsPerEntry
}

// nameUnitCount is the UCS-2 length of a name as stored in LFN entries.
func nameUnitCount(name string) int {
	return len(utf16.Encode([]rune(name)))
}
