// File: internal/crypto/keyfile.go
package crypto

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/deploymenttheory/go-veracrypt/internal/checksum"
)

// Keyfile pool mixing, bit-compatible with VeraCrypt. Each keyfile byte
// advances a running CRC32; the four bytes of the register (MSB first) are
// added mod 256 into a rolling pool, and the pool is finally added mod 256
// onto the password bytes.

const (
	// keyfilePoolSmall is used while the password fits in 64 bytes.
	keyfilePoolSmall = 64

	// keyfilePoolLarge is used for longer passwords.
	keyfilePoolLarge = 128

	// MaxKeyfileBytes caps how much of each keyfile is consumed.
	MaxKeyfileBytes = 1024 * 1024
)

// MixKeyfiles folds the named keyfiles into password and returns the
// derived password buffer. With no keyfiles the password is returned
// unchanged. Keyfiles are read through fs, at most MaxKeyfileBytes each,
// in list order.
func MixKeyfiles(fs afero.Fs, password []byte, keyfiles []string) ([]byte, error) {
	if len(keyfiles) == 0 {
		return password, nil
	}

	poolSize := keyfilePoolSmall
	if len(password) > keyfilePoolSmall {
		poolSize = keyfilePoolLarge
	}
	pool := make([]byte, poolSize)

	for _, path := range keyfiles {
		if err := mixOneKeyfile(fs, path, pool); err != nil {
			return nil, err
		}
	}

	resultLen := len(password)
	if poolSize > resultLen {
		resultLen = poolSize
	}
	result := make([]byte, resultLen)
	for i := range result {
		var p, q byte
		if i < len(password) {
			p = password[i]
		}
		if i < len(pool) {
			q = pool[i]
		}
		result[i] = p + q
	}

	Wipe(pool)
	return result, nil
}

func mixOneKeyfile(fs afero.Fs, path string, pool []byte) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open keyfile %s: %w", path, err)
	}
	defer f.Close()

	crc := checksum.New()
	writePos := 0
	buf := make([]byte, 64*1024)
	consumed := 0

	for consumed < MaxKeyfileBytes {
		limit := len(buf)
		if rest := MaxKeyfileBytes - consumed; rest < limit {
			limit = rest
		}
		n, err := f.Read(buf[:limit])
		for _, b := range buf[:n] {
			crc = crc.UpdateByte(b)
			state := crc.Raw()
			// MSB first, one pool byte per register byte.
			for shift := 24; shift >= 0; shift -= 8 {
				pool[writePos] += byte(state >> uint(shift))
				writePos = (writePos + 1) % len(pool)
			}
		}
		consumed += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read keyfile %s: %w", path, err)
		}
	}

	return nil
}
