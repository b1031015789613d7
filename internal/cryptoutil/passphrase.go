package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// Argon2id parameters, OWASP-recommended minimums. This KDF protects a
// Shamir share of the database encryption key when an operator writes
// it to removable storage (see shamir.go).
const (
	argon2Time    = 4
	argon2Memory  = 256 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// EncryptedShare is a passphrase-wrapped Shamir share (see SerializeShare
// for its wire layout).
type EncryptedShare struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

// EncryptWithPassphrase wraps data under a key derived from passphrase via
// Argon2id, for shares an operator is about to write to a USB drive, paper
// backup, or other offline medium.
func EncryptWithPassphrase(data []byte, passphrase string) (*EncryptedShare, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
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

	ciphertext := gcm.Seal(nil, nonce, data, nil)

	return &EncryptedShare{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}

// DecryptWithPassphrase reverses EncryptWithPassphrase.
func DecryptWithPassphrase(enc *EncryptedShare, passphrase string) ([]byte, error) {
	if len(enc.Salt) != argon2SaltLen {
		return nil, coreerrors.Validation("invalid salt length: got %d, want %d", len(enc.Salt), argon2SaltLen)
	}
	if len(enc.Nonce) != fieldNonceLen {
		return nil, coreerrors.Validation("invalid nonce length: got %d, want %d", len(enc.Nonce), fieldNonceLen)
	}

	key := argon2.IDKey([]byte(passphrase), enc.Salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	defer ClearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return nil, coreerrors.Protocol("wrong passphrase or corrupted share data")
	}
	return plaintext, nil
}

// SerializeShare encodes an EncryptedShare as
// [time:4][memory:4][threads:1][salt:16][nonce:12][ciphertext...]. There
// is no leading version byte since shares don't need independent schema
// versioning from the snapshot envelope that already carries one.
func SerializeShare(enc *EncryptedShare) []byte {
	size := 4 + 4 + 1 + len(enc.Salt) + len(enc.Nonce) + len(enc.Ciphertext)
	out := make([]byte, size)
	offset := 0
	binary.BigEndian.PutUint32(out[offset:], argon2Time)
	offset += 4
	binary.BigEndian.PutUint32(out[offset:], argon2Memory)
	offset += 4
	out[offset] = argon2Threads
	offset++
	copy(out[offset:], enc.Salt)
	offset += len(enc.Salt)
	copy(out[offset:], enc.Nonce)
	offset += len(enc.Nonce)
	copy(out[offset:], enc.Ciphertext)
	return out
}

// DeserializeShare reverses SerializeShare.
func DeserializeShare(data []byte) (*EncryptedShare, error) {
	minSize := 4 + 4 + 1 + argon2SaltLen + fieldNonceLen
	if len(data) < minSize {
		return nil, coreerrors.Validation("invalid serialized share: size %d < minimum %d", len(data), minSize)
	}
	offset := 4 + 4 + 1 // skip time/memory/threads, which are fixed constants here
	salt := append([]byte(nil), data[offset:offset+argon2SaltLen]...)
	offset += argon2SaltLen
	nonce := append([]byte(nil), data[offset:offset+fieldNonceLen]...)
	offset += fieldNonceLen
	ciphertext := append([]byte(nil), data[offset:]...)
	return &EncryptedShare{Salt: salt, Nonce: nonce, Ciphertext: ciphertext}, nil
}
