package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlake2b512Deterministic(t *testing.T) {
	a := Blake2b512([]byte("escrow-1"), []byte("nonce"), []byte("vendor"))
	b := Blake2b512([]byte("escrow-1"), []byte("nonce"), []byte("vendor"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestBlake2b512DiffersOnPartOrder(t *testing.T) {
	a := Blake2b512([]byte("a"), []byte("b"))
	b := Blake2b512([]byte("b"), []byte("a"))
	assert.NotEqual(t, a, b)
}

func TestSignAndVerifyEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := Blake2b512([]byte("escrow-1"), []byte("nonce"), []byte("vendor"))
	sig, err := SignEd25519(priv, msg)
	require.NoError(t, err)

	assert.True(t, VerifyEd25519(pub, msg, sig))
}

func TestVerifyEd25519RejectsTamperedMessage(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sig, err := SignEd25519(priv, []byte("original"))
	require.NoError(t, err)

	assert.False(t, VerifyEd25519(pub, []byte("tampered"), sig))
}

func TestVerifyEd25519RejectsWrongSizeInputs(t *testing.T) {
	assert.False(t, VerifyEd25519([]byte("short"), []byte("msg"), []byte("sig")))
}
