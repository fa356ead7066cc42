// File: internal/types/errors.go
package types

import "errors"

// Sentinel errors surfaced by the engine. Callers match them with errors.Is;
// lower layers wrap them with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrAuthFailure means the header did not validate after trial
	// decryption. An incorrect password and a corrupted header are
	// deliberately indistinguishable.
	ErrAuthFailure = errors.New("invalid password or corrupted header")

	// ErrCorrupt means on-disk structures inside the volume are
	// inconsistent: missing boot signature, FAT entry out of range where a
	// valid chain is required, or a cipher primitive fault.
	ErrCorrupt = errors.New("volume is corrupted")

	ErrNotFound        = errors.New("path not found")
	ErrNotADirectory   = errors.New("not a directory")
	ErrNotAFile        = errors.New("not a file")
	ErrAlreadyExists   = errors.New("entry already exists")
	ErrDiskFull        = errors.New("not enough free clusters")
	ErrOutOfBounds     = errors.New("request crosses device boundary")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned for any operation against a volume that is not
	// in the mounted state.
	ErrClosed = errors.New("volume is not mounted")
)
