package models

import "time"

// PossessionChallenge is a one-time nonce issued to a participant claiming
// a public key embedded in a multisig key-exchange blob.
type PossessionChallenge struct {
	Nonce     [32]byte  `json:"nonce"`
	EscrowID  string    `json:"escrow_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PossessionChallengeTTL is the fixed lifetime of a challenge before it is
// rejected as expired, regardless of whether it was ever taken.
const PossessionChallengeTTL = 300 * time.Second
