// File: internal/crypto/kdf.go
package crypto

import (
	"crypto/sha512"

	"golang.org/x/crypto/pbkdf2"

	"github.com/deploymenttheory/go-veracrypt/internal/types"
)

// HeaderKeySize is the derived key length used for XTS over AES-256: two
// 32-byte halves.
const HeaderKeySize = 64

// Iteration schedule constants for PBKDF2-HMAC-SHA512.
const (
	iterationsNormalDefault = 500000
	iterationsNormalBase    = 15000
	iterationsNormalPerPIM  = 1000

	iterationsSystemDefault = 200000
	iterationsSystemPerPIM  = 2048
)

// Iterations returns the PBKDF2 iteration count for the given volume kind
// and Personal Iterations Multiplier. Any PIM <= 0 selects the default
// schedule.
func Iterations(kind types.VolumeKind, pim int) int {
	if kind == types.VolumeKindSystem {
		if pim <= 0 {
			return iterationsSystemDefault
		}
		return iterationsSystemPerPIM * pim
	}
	if pim <= 0 {
		return iterationsNormalDefault
	}
	return iterationsNormalBase + iterationsNormalPerPIM*pim
}

// DeriveHeaderKey derives the 64-byte header key from a (possibly
// keyfile-mixed) password and the 64-byte salt read from the header record.
func DeriveHeaderKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, HeaderKeySize, sha512.New)
}
