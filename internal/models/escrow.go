package models

import (
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// EscrowStatus is the tagged status of an escrow per the transition table
// in the escrow state machine.
type EscrowStatus string

const (
	StatusCreated        EscrowStatus = "created"
	StatusFunded         EscrowStatus = "funded"
	StatusActive         EscrowStatus = "active"
	StatusReleasing      EscrowStatus = "releasing"
	StatusRefunding      EscrowStatus = "refunding"
	StatusCompleted      EscrowStatus = "completed"
	StatusRefunded       EscrowStatus = "refunded"
	StatusDisputed       EscrowStatus = "disputed"
	StatusResolvedBuyer  EscrowStatus = "resolved_buyer"
	StatusResolvedVendor EscrowStatus = "resolved_vendor"
	StatusCancelled      EscrowStatus = "cancelled"
	StatusExpired        EscrowStatus = "expired"
)

// IsTerminal reports whether status admits no outgoing transition.
func (s EscrowStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusCancelled, StatusExpired,
		StatusResolvedBuyer, StatusResolvedVendor:
		return true
	default:
		return false
	}
}

// EvidenceKind tags the variety of proof a party attached to a dispute.
type EvidenceKind string

const (
	EvidenceText        EvidenceKind = "text"
	EvidencePhoto        EvidenceKind = "photo"
	EvidenceTracking     EvidenceKind = "tracking"
	EvidenceChatLog      EvidenceKind = "chat_log"
	EvidenceCryptoProof  EvidenceKind = "crypto_proof"
)

// Evidence is one item a buyer or vendor attached in support of their side
// of a dispute. SubmittedBy is "buyer" or "vendor". ChatMessageCount is
// only meaningful for EvidenceChatLog.
type Evidence struct {
	Kind              EvidenceKind `json:"kind"`
	SubmittedBy       string       `json:"submitted_by"`
	Reference         string       `json:"reference"`
	ChatMessageCount  int          `json:"chat_message_count,omitempty"`
}

// DisputeRecord holds the state of an open or resolved dispute on an escrow.
type DisputeRecord struct {
	OpenedBy      string     `json:"opened_by"`
	OpenedAt      time.Time  `json:"opened_at"`
	BuyerClaim    string     `json:"buyer_claim"`
	VendorResponse string    `json:"vendor_response,omitempty"`
	Evidence      []Evidence `json:"evidence,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// Escrow is the aggregate root of the two-of-three threshold-signature
// arrangement: buyer funds locked behind a multisig address until buyer or
// arbiter authorizes release or refund.
type Escrow struct {
	ID               string         `json:"id"`
	OrderID          string         `json:"order_id"`
	BuyerID          string         `json:"buyer_id"`
	VendorID         string         `json:"vendor_id"`
	ArbiterID        string         `json:"arbiter_id"`
	AmountAtomic     int64          `json:"amount_atomic"`
	Status           EscrowStatus   `json:"status"`
	MultisigAddress  string         `json:"multisig_address,omitempty"`
	TransactionHash  string         `json:"transaction_hash,omitempty"`
	Phase            SetupPhase     `json:"phase"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	LastActivityAt   time.Time      `json:"last_activity_at"`
	Dispute          *DisputeRecord `json:"dispute,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks the invariants from the data model: positive amount,
// pairwise-distinct principals, terminal states carrying no expiry, and
// multisig_address set iff the setup phase reached ready.
func (e *Escrow) Validate() error {
	if e.AmountAtomic <= 0 {
		return coreerrors.Validation("escrow amount must be positive, got %d", e.AmountAtomic)
	}
	if e.BuyerID == e.VendorID || e.BuyerID == e.ArbiterID || e.VendorID == e.ArbiterID {
		return coreerrors.Validation("buyer, vendor, and arbiter must be pairwise distinct principals")
	}
	if e.Status.IsTerminal() && e.ExpiresAt != nil {
		return coreerrors.Validation("terminal status %q must not carry an expires_at", e.Status)
	}
	_, ready := e.Phase.(PhaseReady)
	if ready && e.MultisigAddress == "" {
		return coreerrors.Validation("phase is ready but multisig_address is empty")
	}
	if !ready && e.MultisigAddress != "" {
		return coreerrors.Validation("multisig_address is set but phase is not ready")
	}
	return nil
}
