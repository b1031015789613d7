package walletrpc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padBlob(s string) string {
	if len(s) >= minKeyBlobLen {
		return s
	}
	return s + strings.Repeat("A", minKeyBlobLen-len(s))
}

func TestValidateKeyBlobAcceptsWellFormed(t *testing.T) {
	blob := padBlob(multisigInfoPrefix + strings.Repeat("a", 64))
	assert.NoError(t, ValidateKeyBlob(blob))
}

func TestValidateKeyBlobRejectsMissingPrefix(t *testing.T) {
	blob := padBlob("NotMultisig" + strings.Repeat("a", 64))
	assert.Error(t, ValidateKeyBlob(blob))
}

func TestValidateKeyBlobRejectsTooShort(t *testing.T) {
	assert.Error(t, ValidateKeyBlob(multisigInfoPrefix+"abc"))
}

func TestValidateKeyBlobRejectsTooLong(t *testing.T) {
	blob := multisigInfoPrefix + strings.Repeat("a", maxKeyBlobLen+1)
	assert.Error(t, ValidateKeyBlob(blob))
}

func TestValidateKeyBlobRejectsBadCharacters(t *testing.T) {
	blob := padBlob(multisigInfoPrefix + strings.Repeat("a", 60) + "!!!!")
	assert.Error(t, ValidateKeyBlob(blob))
}

func TestExtractPublicKeyMinimalForm(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	parsed, err := ExtractPublicKey(multisigInfoPrefix + hexKey)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), parsed.PublicKey[0])
}

func TestExtractPublicKeyStructuredForm(t *testing.T) {
	hexKey := strings.Repeat("cd", 32)
	blob := multisigInfoPrefix + ":pk=" + hexKey + ";m=2;n=3;chk=deadbeef"
	parsed, err := ExtractPublicKey(blob)
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.M)
	assert.Equal(t, 3, parsed.N)
}

func TestExtractPublicKeyRejectsWrongThreshold(t *testing.T) {
	hexKey := strings.Repeat("cd", 32)
	blob := multisigInfoPrefix + ":pk=" + hexKey + ";m=1;n=3;chk=deadbeef"
	_, err := ExtractPublicKey(blob)
	assert.Error(t, err)
}

func TestExtractPublicKeyRejectsMalformedForm(t *testing.T) {
	_, err := ExtractPublicKey(multisigInfoPrefix + ":garbage")
	assert.Error(t, err)
}

func TestExtractPublicKeyRejectsShortHex(t *testing.T) {
	_, err := ExtractPublicKey(multisigInfoPrefix + "abc123")
	assert.Error(t, err)
}
