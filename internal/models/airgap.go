package models

import "time"

// DisputeExportPacket is produced when an escrow enters the disputed
// status, for hand-off to an air-gapped arbiter workstation as JSON or a
// QR image.
type DisputeExportPacket struct {
	EscrowID          string    `json:"escrow_id"`
	BuyerID           string    `json:"buyer_id"`
	VendorID          string    `json:"vendor_id"`
	AmountAtomic      int64     `json:"amount_atomic"`
	BuyerClaim        string    `json:"buyer_claim"`
	VendorResponse    string    `json:"vendor_response,omitempty"`
	DisputeOpenedAt   time.Time `json:"dispute_opened_at"`
	EvidenceFileCount int       `json:"evidence_file_count"`
	PartialTxHex      string    `json:"partial_tx_hex,omitempty"`
	Nonce             string    `json:"nonce"`
}

// ArbiterDecisionKind is the arbiter's resolution of a dispute.
type ArbiterDecisionKind string

const (
	DecisionBuyer  ArbiterDecisionKind = "buyer"
	DecisionVendor ArbiterDecisionKind = "vendor"
)

// ArbiterDecision is the signed packet an off-line arbiter returns after
// reviewing a DisputeExportPacket.
type ArbiterDecision struct {
	EscrowID          string              `json:"escrow_id"`
	Nonce             string              `json:"nonce"`
	Decision          ArbiterDecisionKind `json:"decision"`
	Reason            string              `json:"reason"`
	SignedTxHex       string              `json:"signed_tx_hex"`
	DecisionSignature [64]byte            `json:"decision_signature"`
	DecidedAt         time.Time           `json:"decided_at"`
}
