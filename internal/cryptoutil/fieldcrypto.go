// Package cryptoutil holds the coordinator's cryptographic primitives:
// field-level AEAD, passphrase-wrapped share storage, Shamir splitting of
// the DB key, and the SHA3-256 helpers the audit chain uses.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

const (
	fieldKeyLen = 32 // AES-256
	fieldNonceLen = 12 // GCM standard nonce
)

// EncryptField seals plaintext under a process-wide 32-byte AEAD key.
// The key is not derived from a password via Argon2id - it is already a
// high-entropy key loaded from configuration - so this is an AES-256-GCM
// envelope with no KDF step. Output layout: nonce(12) || ciphertext(variable+16 tag).
func EncryptField(plaintext []byte, key [32]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, fieldNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptField opens data produced by EncryptField.
func DecryptField(data []byte, key [32]byte) ([]byte, error) {
	if len(data) < fieldNonceLen {
		return nil, coreerrors.Validation("encrypted field too short: %d bytes", len(data))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce, ciphertext := data[:fieldNonceLen], data[fieldNonceLen:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, coreerrors.Protocol("field decryption failed: authentication tag mismatch")
	}
	return plaintext, nil
}
