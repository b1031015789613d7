package walletrpc

import (
	"encoding/hex"
	"regexp"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

const (
	multisigInfoPrefix = "MultisigV1"
	minKeyBlobLen       = 100
	maxKeyBlobLen       = 5000
)

// base64PrefixAlphabet matches the standard base64 character set plus the
// literal prefix/structured-field characters a key-exchange blob is
// allowed to contain ("MultisigV1", ':', ';', '=', '_', '.', '-').
var base64PrefixAlphabet = regexp.MustCompile(`^[A-Za-z0-9+/=:;_.-]+$`)

// ValidateKeyBlob checks a raw multisig key-exchange blob against the
// wire contract: expected version prefix, length window, and restricted
// character class. This guards against a compromised or buggy wallet
// daemon returning garbage that would otherwise propagate into another
// participant's make_multisig call.
func ValidateKeyBlob(blob string) error {
	if len(blob) < minKeyBlobLen || len(blob) > maxKeyBlobLen {
		return coreerrors.Validation("key blob length %d outside allowed window [%d,%d]", len(blob), minKeyBlobLen, maxKeyBlobLen)
	}
	if len(blob) < len(multisigInfoPrefix) || blob[:len(multisigInfoPrefix)] != multisigInfoPrefix {
		return coreerrors.Validation("key blob missing expected prefix %q", multisigInfoPrefix)
	}
	if !base64PrefixAlphabet.MatchString(blob) {
		return coreerrors.Validation("key blob contains characters outside the allowed alphabet")
	}
	return nil
}

// ParsedPublicKey is the public key extracted from a multisig
// key-exchange blob by ExtractPublicKey, along with the threshold
// configuration if the blob used the structured form.
type ParsedPublicKey struct {
	PublicKey [32]byte
	M, N      int
}

var (
	minimalForm    = regexp.MustCompile(`^` + multisigInfoPrefix + `([0-9a-fA-F]{64})$`)
	structuredForm = regexp.MustCompile(`^` + multisigInfoPrefix + `:pk=([0-9a-fA-F]{64});m=([0-9]+);n=([0-9]+);chk=([0-9a-fA-F]+)$`)
)

// ExtractPublicKey is a reduced parser for exactly the two formats the
// wire contract allows: a minimal "prefix || 64-hex" form, or a
// structured "prefix:pk=hex;m=2;n=3;chk=hex" form. Any other form -
// including a structurally close but non-conforming one - is rejected
// rather than leniently parsed, per the key-of-possession design note.
func ExtractPublicKey(blob string) (*ParsedPublicKey, error) {
	if m := minimalForm.FindStringSubmatch(blob); m != nil {
		pk, err := decodePubkeyHex(m[1])
		if err != nil {
			return nil, err
		}
		return &ParsedPublicKey{PublicKey: pk}, nil
	}
	if m := structuredForm.FindStringSubmatch(blob); m != nil {
		pk, err := decodePubkeyHex(m[1])
		if err != nil {
			return nil, err
		}
		mVal, nVal := m[2], m[3]
		threshold, total := atoiStrict(mVal), atoiStrict(nVal)
		if threshold != 2 || total != 3 {
			return nil, coreerrors.Validation("structured key blob declares m=%s,n=%s, only m=2,n=3 is accepted", mVal, nVal)
		}
		return &ParsedPublicKey{PublicKey: pk, M: threshold, N: total}, nil
	}
	return nil, coreerrors.Validation("key blob does not match either accepted format")
}

func decodePubkeyHex(hexStr string) ([32]byte, error) {
	var pk [32]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != 32 {
		return pk, coreerrors.Validation("key blob public key must be 32 bytes of hex")
	}
	copy(pk[:], raw)
	return pk, nil
}

// atoiStrict parses a decimal digit string already validated by regexp as
// [0-9]+. It does not check for int overflow.
func atoiStrict(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
