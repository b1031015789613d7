package cryptoutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChainEntryHashDeterministic(t *testing.T) {
	payload := []byte(`{"action":"escrow_created"}`)
	ts := time.Unix(0, 1700000000000000000).UTC()
	h1 := ChainEntryHash(payload, ts, nil)
	h2 := ChainEntryHash(payload, ts, nil)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestChainEntryHashDependsOnPreviousHash(t *testing.T) {
	payload := []byte(`{"action":"escrow_funded"}`)
	ts := time.Unix(0, 1700000001000000000).UTC()
	withoutPrev := ChainEntryHash(payload, ts, nil)
	withPrev := ChainEntryHash(payload, ts, []byte("some-previous-hash-bytes"))
	assert.NotEqual(t, withoutPrev, withPrev)
}

func TestChainEntryHashDependsOnTimestamp(t *testing.T) {
	payload := []byte(`{"action":"escrow_funded"}`)
	ts1 := time.Unix(0, 1700000001000000000).UTC()
	ts2 := time.Unix(0, 1700000001000000001).UTC()
	assert.NotEqual(t, ChainEntryHash(payload, ts1, nil), ChainEntryHash(payload, ts2, nil))
}

func TestVerifyChainLink(t *testing.T) {
	payload := []byte(`{"action":"dispute_opened"}`)
	ts := time.Unix(0, 1700000002000000000).UTC()
	prevTS := time.Unix(0, 1699999999000000000).UTC()
	laterTS := time.Unix(0, 1700000002000000001).UTC()
	prev := ChainEntryHash([]byte("genesis"), prevTS, nil)
	entryHash := ChainEntryHash(payload, ts, prev)

	assert.True(t, VerifyChainLink(payload, ts, prev, entryHash))
	assert.False(t, VerifyChainLink([]byte("tampered payload"), ts, prev, entryHash))
	assert.False(t, VerifyChainLink(payload, laterTS, prev, entryHash))
}
