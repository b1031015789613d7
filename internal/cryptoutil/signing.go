package cryptoutil

import (
	"crypto/ed25519"

	"golang.org/x/crypto/blake2b"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// Blake2b512 hashes parts as a single concatenated message, the digest
// both the dispute bridge and the proof-of-possession challenge sign
// with Ed25519.
func Blake2b512(parts ...[]byte) []byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic("blake2b-512 is always constructible with a nil key: " + err.Error())
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// VerifyEd25519 reports whether sig is a valid Ed25519 signature by
// pubkey over message. Malformed input and a genuine verification
// failure are reported identically to the caller as a bool, favoring
// an explicit boolean check at verification sites over sentinel errors.
func VerifyEd25519(pubkey, message, sig []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, sig)
}

// SignEd25519 signs message with a 64-byte Ed25519 private key, used by
// test fixtures and any in-process signer (the coordinator itself never
// holds the arbiter's key in production).
func SignEd25519(privkey, message []byte) ([]byte, error) {
	if len(privkey) != ed25519.PrivateKeySize {
		return nil, coreerrors.Validation("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privkey))
	}
	return ed25519.Sign(privkey, message), nil
}
