// File: internal/volume/volume.go
package volume

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-veracrypt/internal/crypto"
	"github.com/deploymenttheory/go-veracrypt/internal/device"
	"github.com/deploymenttheory/go-veracrypt/internal/fat32"
	"github.com/deploymenttheory/go-veracrypt/internal/header"
	"github.com/deploymenttheory/go-veracrypt/internal/interfaces"
	"github.com/deploymenttheory/go-veracrypt/internal/sectors"
	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// State tracks the mount lifecycle. Filesystem operations are only served
// in StateMounted; everything else answers ErrClosed.
type State int32

const (
	StateUnmounted State = iota
	StateMounting
	StateMounted
	StateUnmounting
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	default:
		return "unknown"
	}
}

// MountParams carries the credentials and tunables for Open and Create.
// Keyfiles are read through KeyfileFs, which defaults to the host
// filesystem; tests point it at an in-memory one.
type MountParams struct {
	Password []byte
	PIM      int
	Keyfiles []string

	KeyfileFs afero.Fs
	Config    *device.EngineConfig
}

func (p *MountParams) keyfileFs() afero.Fs {
	if p.KeyfileFs != nil {
		return p.KeyfileFs
	}
	return afero.NewOsFs()
}

func (p *MountParams) config() *device.EngineConfig {
	if p.Config != nil {
		return p.Config
	}
	return device.DefaultEngineConfig()
}

// Volume is a mounted container. Reads run concurrently under a shared
// lock; mutations serialise under the exclusive lock and invalidate the
// caches. Close wipes all key material before releasing the device.
type Volume struct {
	stateMu sync.Mutex
	state   State

	// mu is the volume-wide operation lock: RLock for reads, Lock for
	// mutations and for unmount.
	mu sync.RWMutex

	dev    interfaces.BlockDevice
	hdr    *types.VolumeHeader
	cipher *crypto.XTS
	fs     *fat32.FS

	caches *volumeCaches
}

var _ interfaces.Volume = (*Volume)(nil)

// Open mounts an existing container on dev. The password has the keyfile
// pool mixed in before key derivation; the backup header record is tried
// when the primary fails validation.
func Open(dev interfaces.BlockDevice, params MountParams) (*Volume, error) {
	v := &Volume{state: StateMounting, dev: dev}

	mixed, err := crypto.MixKeyfiles(params.keyfileFs(), params.Password, params.Keyfiles)
	if err != nil {
		return nil, err
	}
	defer wipeIfDerived(mixed, params.Password)

	h, err := header.Open(dev, mixed, params.PIM)
	if err != nil {
		return nil, err
	}

	if err := v.attach(h, params.config()); err != nil {
		return nil, err
	}
	return v, nil
}

// Create lays down a fresh container on dev: header records at both ends,
// a FAT32 filesystem across the data area, and returns the volume already
// mounted. The container size is taken from dev.Size().
func Create(dev interfaces.BlockDevice, params MountParams, label string) (*Volume, error) {
	v := &Volume{state: StateMounting, dev: dev}

	mixed, err := crypto.MixKeyfiles(params.keyfileFs(), params.Password, params.Keyfiles)
	if err != nil {
		return nil, err
	}
	defer wipeIfDerived(mixed, params.Password)

	h, err := header.Create(dev, header.CreateParams{
		Password:  mixed,
		PIM:       params.PIM,
		TotalSize: dev.Size(),
	})
	if err != nil {
		return nil, err
	}

	if err := v.format(h, params.config(), label); err != nil {
		return nil, err
	}
	return v, nil
}

// attach builds the decrypted sector view and mounts the filesystem.
func (v *Volume) attach(h *types.VolumeHeader, cfg *device.EngineConfig) error {
	sdev, err := v.sectorDevice(h, cfg)
	if err != nil {
		return err
	}

	fs, err := fat32.New(sdev, cfg)
	if err != nil {
		v.wipeKeys()
		return err
	}

	v.hdr = h
	v.fs = fs
	v.caches = newVolumeCaches()
	v.setState(StateMounted)
	return nil
}

// format builds the sector view, writes a fresh FAT32 filesystem through
// it, and mounts the result.
func (v *Volume) format(h *types.VolumeHeader, cfg *device.EngineConfig, label string) error {
	sdev, err := v.sectorDevice(h, cfg)
	if err != nil {
		return err
	}

	if err := fat32.Format(sdev, label); err != nil {
		v.wipeKeys()
		return err
	}

	fs, err := fat32.New(sdev, cfg)
	if err != nil {
		v.wipeKeys()
		return err
	}

	v.hdr = h
	v.fs = fs
	v.caches = newVolumeCaches()
	v.setState(StateMounted)
	return nil
}

func (v *Volume) sectorDevice(h *types.VolumeHeader, cfg *device.EngineConfig) (interfaces.SectorDevice, error) {
	x, err := crypto.NewXTS(h.MasterKey())
	if err != nil {
		return nil, err
	}
	v.cipher = x

	sdev, err := sectors.New(v.dev, x, int64(h.EncAreaStart), int64(h.EncAreaLength), cfg)
	if err != nil {
		v.wipeKeys()
		return nil, err
	}
	return sdev, nil
}

// Header returns a copy of the decoded volume header with the master
// keydata blanked, for display surfaces.
func (v *Volume) Header() (types.VolumeHeader, error) {
	if err := v.requireMounted(); err != nil {
		return types.VolumeHeader{}, err
	}
	h := *v.hdr
	h.MasterKeydata = [types.HeaderMasterKeydataSize]byte{}
	return h, nil
}

// State returns the current lifecycle state.
func (v *Volume) State() State {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.state
}

func (v *Volume) setState(s State) {
	v.stateMu.Lock()
	v.state = s
	v.stateMu.Unlock()
}

func (v *Volume) requireMounted() error {
	if v.State() != StateMounted {
		return fmt.Errorf("%w: volume is not mounted", types.ErrClosed)
	}
	return nil
}

// Close unmounts the volume: it refreshes the FSInfo hints, wipes the
// master key and the XTS schedules, and closes the device. Close is
// idempotent; only the first call does the work.
func (v *Volume) Close() error {
	v.stateMu.Lock()
	if v.state != StateMounted {
		v.stateMu.Unlock()
		return nil
	}
	v.state = StateUnmounting
	v.stateMu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Hint refresh is best effort; the FAT stays the source of truth.
	_ = v.fs.SyncFSInfo()

	v.wipeKeys()
	v.fs = nil
	v.caches = nil

	err := v.dev.Close()
	v.setState(StateUnmounted)
	return err
}

func (v *Volume) wipeKeys() {
	if v.cipher != nil {
		v.cipher.Wipe()
		v.cipher = nil
	}
	if v.hdr != nil {
		crypto.Wipe(v.hdr.MasterKeydata[:])
		v.hdr = nil
	}
}

// wipeIfDerived clears a mixed password buffer, but never the caller's
// original password, which MixKeyfiles returns as-is without keyfiles.
func wipeIfDerived(mixed, original []byte) {
	if len(mixed) > 0 && (len(original) == 0 || &mixed[0] != &original[0]) {
		crypto.Wipe(mixed)
	}
}
