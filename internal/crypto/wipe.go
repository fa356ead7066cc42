// File: internal/crypto/wipe.go
package crypto

// Wipe overwrites key material in place. Go gives no guarantee the compiler
// keeps the stores, but every copy of a key the engine holds goes through
// here on unmount so nothing obvious survives in heap dumps.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
