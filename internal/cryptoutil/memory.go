package cryptoutil

import "runtime"

// ClearBytes securely zeros b to keep key material and plaintext secrets
// from lingering in memory after use. The zeroing discipline is the same
// regardless of what kind of secret is being cleared.
func ClearBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
