package cryptoutil

import (
	"time"

	"golang.org/x/crypto/sha3"
)

// ChainEntryHash computes entry_hash = SHA3-256(payload || rfc3339_timestamp
// || previousHash) for the audit log, chaining each entry to the one
// before it. SHA3-256 is used instead of SHA-256 so a forged entry can't
// be produced by extending a truncated previous hash the way a
// Merkle-Damgard length-extension attack would. previousHash is nil for
// the first entry in a chain. timestamp is hashed as its RFC3339Nano
// encoding, the same representation stored in the audit_log.timestamp
// column, so a verifier reconstructs the exact preimage from the stored
// row rather than from a derived integer.
func ChainEntryHash(payload []byte, timestamp time.Time, previousHash []byte) []byte {
	h := sha3.New256()
	h.Write(payload)
	h.Write([]byte(timestamp.Format(time.RFC3339Nano)))
	if previousHash != nil {
		h.Write(previousHash)
	}
	return h.Sum(nil)
}

// VerifyChainLink reports whether candidateHash is the correct
// ChainEntryHash for the given payload, timestamp, and previous hash.
func VerifyChainLink(payload []byte, timestamp time.Time, previousHash, candidateHash []byte) bool {
	expected := ChainEntryHash(payload, timestamp, previousHash)
	return ConstantTimeEqual(expected, candidateHash)
}
