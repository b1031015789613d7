// Package popchallenge issues and verifies proof-of-possession challenges
// for a public key embedded in a submitted multisig key-exchange blob.
package popchallenge

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/cryptoutil"
	"github.com/yourusername/xmrescrow/internal/models"
	"github.com/yourusername/xmrescrow/internal/walletrpc"
)

// domainTag separates this challenge's signed message from every other
// BLAKE2b-512 message signed elsewhere in the system (the air-gap
// decision packet, in particular), so a signature produced for one
// cannot be replayed against the other.
var domainTag = []byte("xmrescrow-pop-v1")

type challengeKey struct {
	user     string
	escrowID string
}

// Registry issues and verifies possession challenges, keyed by (user,
// escrow_id). A single exclusive mutex guards the whole map with no
// per-key lock striping - challenge issuance and verification are cheap
// and infrequent enough that one lock is sufficient and avoids the
// unbounded-goroutine-churn risk of a lock-per-key map that is never
// swept.
type Registry struct {
	mu         sync.Mutex
	challenges map[challengeKey]*models.PossessionChallenge
	now        func() time.Time
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		challenges: make(map[challengeKey]*models.PossessionChallenge),
		now:        time.Now,
	}
}

// Issue generates a fresh 32-byte nonce and stores a challenge for
// (user, escrowID), overwriting any prior unconsumed challenge for the
// same pair.
func (r *Registry) Issue(ctx context.Context, user, escrowID string) (*models.PossessionChallenge, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "generating possession challenge nonce")
	}

	challenge := &models.PossessionChallenge{
		Nonce:     nonce,
		EscrowID:  escrowID,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.challenges[challengeKey{user: user, escrowID: escrowID}] = challenge
	r.mu.Unlock()

	return challenge, nil
}

// message builds the BLAKE2b-512 digest a possession signature covers:
// domain_tag || nonce || escrow_id || created_at as a little-endian unix
// timestamp.
func message(c *models.PossessionChallenge) []byte {
	var createdAtLE [8]byte
	binary.LittleEndian.PutUint64(createdAtLE[:], uint64(c.CreatedAt.Unix()))
	return cryptoutil.Blake2b512(domainTag, c.Nonce[:], []byte(c.EscrowID), createdAtLE[:])
}

// Verify checks a submitted key blob and signature against the
// outstanding challenge for (user, escrowID): the challenge must exist
// and not have expired, the blob must parse under the accepted
// key-exchange formats, and the signature must verify over the challenge
// message with the extracted public key. The challenge is deleted only
// on success, leaving it in place for a retry (within its TTL) on any
// failure.
func (r *Registry) Verify(ctx context.Context, user, escrowID, keyBlob string, signature []byte) error {
	key := challengeKey{user: user, escrowID: escrowID}

	r.mu.Lock()
	challenge, ok := r.challenges[key]
	r.mu.Unlock()

	if !ok {
		return coreerrors.Validation("no outstanding possession challenge for this user and escrow")
	}
	if r.now().Sub(challenge.CreatedAt) > models.PossessionChallengeTTL {
		return coreerrors.Validation("possession challenge has expired")
	}

	parsed, err := walletrpc.ExtractPublicKey(keyBlob)
	if err != nil {
		return err
	}

	if !cryptoutil.VerifyEd25519(parsed.PublicKey[:], message(challenge), signature) {
		return coreerrors.Protocol("possession signature does not verify against the claimed public key")
	}

	r.mu.Lock()
	delete(r.challenges, key)
	r.mu.Unlock()

	return nil
}
