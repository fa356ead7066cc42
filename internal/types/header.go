// File: internal/types/header.go
package types

// Container geometry. A VeraCrypt container starts with a 64 KiB header
// group, followed by a second reserved 64 KiB group, then the data area.
// The final 128 KiB of the container hold the backup header group.
const (
	SectorSize = 512

	// SaltSize is the length of the random salt stored in the clear at the
	// start of each header record.
	SaltSize = 64

	// HeaderSize is the full on-disk header record: salt plus encrypted
	// payload.
	HeaderSize = 512

	// HeaderPayloadSize is the XTS-encrypted portion of the header record.
	HeaderPayloadSize = HeaderSize - SaltSize

	// HeaderGroupSize is the reserved region that a header record leads.
	HeaderGroupSize = 64 * 1024

	// DataAreaOffset is where the encrypted data area begins for a normal
	// (non-hidden) volume.
	DataAreaOffset = 2 * HeaderGroupSize

	// BackupHeaderGroupSize is the reserved region at the end of the
	// container holding the backup header record.
	BackupHeaderGroupSize = 2 * HeaderGroupSize

	// MinContainerSize is the smallest container the engine will create:
	// header group, backup group, and at least a few data clusters.
	MinContainerSize = 1024 * 1024
)

// VolumeHeaderMagic identifies a decrypted VeraCrypt header payload.
const VolumeHeaderMagic = "VERA"

// Byte offsets of fields within the decrypted 448-byte header payload.
// Every multi-byte field is big-endian.
const (
	HeaderOfsMagic          = 0
	HeaderOfsVersion        = 4
	HeaderOfsMinProgramVer  = 6
	HeaderOfsKeyAreaCRC     = 8
	HeaderOfsVolumeCreated  = 12
	HeaderOfsHeaderModified = 20
	HeaderOfsHiddenVolSize  = 28
	HeaderOfsVolumeSize     = 36
	HeaderOfsEncAreaStart   = 44
	HeaderOfsEncAreaLength  = 52
	HeaderOfsFlags          = 60
	HeaderOfsSectorSize     = 64
	HeaderOfsHeaderCRC      = 188
	HeaderOfsMasterKeydata  = 192
	HeaderMasterKeydataSize = 256
	HeaderCRCRegionSize     = 188
)

// Header field values written by the create path.
const (
	// HeaderVersion is the volume header format version.
	HeaderVersion = 5

	// HeaderMinProgramVersion is the minimum program version required to
	// mount a volume created by this engine (1.11 encoded as 0x010B).
	HeaderMinProgramVersion = 0x010B
)

// Header flag bits.
const (
	HeaderFlagSystemEncryption = 1 << 0
	HeaderFlagNonSystemInPlace = 1 << 1
)

// MasterKeySize is the length of the AES-256 XTS master key held in the
// first bytes of the master keydata region.
const MasterKeySize = 64

// VolumeKind selects the PBKDF2 iteration schedule.
type VolumeKind int

const (
	// VolumeKindNormal is a regular file or partition volume.
	VolumeKindNormal VolumeKind = iota

	// VolumeKindSystem is a system-encryption volume. The engine does not
	// mount these, but the iteration schedule is still exposed.
	VolumeKindSystem
)

// VolumeHeader is the decoded form of the 448-byte header payload.
type VolumeHeader struct {
	Version           uint16
	MinProgramVersion uint16
	KeyAreaCRC        uint32
	VolumeCreated     uint64
	HeaderModified    uint64
	HiddenVolumeSize  uint64
	VolumeSize        uint64
	EncAreaStart      uint64
	EncAreaLength     uint64
	Flags             uint32
	SectorSize        uint32

	// MasterKeydata is the full 256-byte key region. The AES-256 XTS
	// master key occupies the first 64 bytes.
	MasterKeydata [HeaderMasterKeydataSize]byte
}

// MasterKey returns the 64-byte AES-256 XTS master key.
func (h *VolumeHeader) MasterKey() []byte {
	return h.MasterKeydata[:MasterKeySize]
}

// IsSystemEncryption reports whether the volume is flagged as a system
// encryption volume.
func (h *VolumeHeader) IsSystemEncryption() bool {
	return h.Flags&HeaderFlagSystemEncryption != 0
}
