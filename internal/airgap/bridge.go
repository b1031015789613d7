// Package airgap implements the export/import bridge to an off-line
// arbiter workstation: a JSON dispute packet optionally
// rendered as a QR image, and a signed decision packet imported back with
// a strict, ordered validation chain so a compromised server process can
// never forge a resolution.
package airgap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/cryptoutil"
	"github.com/yourusername/xmrescrow/internal/escrow"
	"github.com/yourusername/xmrescrow/internal/models"
)

const (
	minNonceHexChars   = 32
	decisionFreshness  = 7 * 24 * time.Hour
	futureTolerance    = 5 * time.Minute
	qrMinDimensionPx   = 400
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]*$`)

// EscrowRepository is the subset of persistence the bridge needs.
type EscrowRepository interface {
	GetEscrow(ctx context.Context, id string) (*models.Escrow, error)
	SetTransactionHash(ctx context.Context, id, txHash string) error
}

// Transitioner applies the disputed->releasing/refunding transition once
// a decision validates.
type Transitioner interface {
	Apply(ctx context.Context, escrowID string, trigger escrow.Trigger, actor escrow.Actor, payload []byte) (models.EscrowStatus, error)
}

// Bridge exports dispute packets and imports signed arbiter decisions.
type Bridge struct {
	repo        EscrowRepository
	machine     Transitioner
	arbiterKey  [32]byte
}

// New constructs a Bridge. arbiterKey is the configured 32-byte arbiter
// public key (ARBITER_PUBKEY); the coordinator never holds
// the corresponding private key.
func New(repo EscrowRepository, machine Transitioner, arbiterKey [32]byte) *Bridge {
	return &Bridge{repo: repo, machine: machine, arbiterKey: arbiterKey}
}

// Export produces the dispute packet for escrowID, which must currently
// be in the disputed status, along with a fresh ≥32-hex-char nonce that
// the later decision's signature must be bound to.
func (b *Bridge) Export(ctx context.Context, escrowID string, evidenceFileCount int, partialTxHex string) (*models.DisputeExportPacket, error) {
	e, err := b.repo.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, coreerrors.InvalidState("no escrow exists with id %q", escrowID)
	}
	if e.Status != models.StatusDisputed {
		return nil, coreerrors.InvalidState("escrow %q is not disputed, got status %q", escrowID, e.Status)
	}

	nonce, err := freshNonce()
	if err != nil {
		return nil, err
	}

	packet := &models.DisputeExportPacket{
		EscrowID:          e.ID,
		BuyerID:           e.BuyerID,
		VendorID:          e.VendorID,
		AmountAtomic:      e.AmountAtomic,
		EvidenceFileCount: evidenceFileCount,
		PartialTxHex:      partialTxHex,
		Nonce:             nonce,
	}
	if e.Dispute != nil {
		packet.BuyerClaim = e.Dispute.BuyerClaim
		packet.VendorResponse = e.Dispute.VendorResponse
		packet.DisputeOpenedAt = e.Dispute.OpenedAt
	}
	return packet, nil
}

func freshNonce() (string, error) {
	buf := make([]byte, minNonceHexChars/2)
	if _, err := rand.Read(buf); err != nil {
		return "", coreerrors.Wrap(coreerrors.KindTransient, err, "generating dispute nonce")
	}
	return hex.EncodeToString(buf), nil
}

// ExportJSON serializes packet for hand-off via USB or any other
// air-gapped transfer medium.
func ExportJSON(packet *models.DisputeExportPacket) ([]byte, error) {
	data, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "marshaling dispute packet")
	}
	return data, nil
}

// ExportQR renders packet as a PNG QR code for optical transfer to the
// off-line workstation.
func ExportQR(packet *models.DisputeExportPacket) ([]byte, error) {
	data, err := ExportJSON(packet)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, qrMinDimensionPx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "rendering dispute QR code")
	}
	return png, nil
}

// decisionWire is the JSON wire shape of an arbiter decision: hex-encoded
// signature rather than models.ArbiterDecision's [64]byte, since this is
// the boundary where untrusted external bytes first become a Go value.
type decisionWire struct {
	EscrowID          string `json:"escrow_id"`
	Nonce             string `json:"nonce"`
	Decision          string `json:"decision"`
	Reason            string `json:"reason"`
	SignedTxHex       string `json:"signed_tx_hex"`
	DecisionSignature string `json:"decision_signature"`
	DecidedAt         int64  `json:"decided_at"`
}

// ImportDecision validates and applies a signed arbiter decision,
// expected to arrive as JSON (however it physically crossed the air
// gap - QR scan, USB file, typed-in text). urlEscrowID is the escrow id
// the caller's URL/handler already scoped this request to; it must match
// the packet's own escrow_id as a defense against a redirected packet.
// Validation runs in a fixed order - structural, escrow-id match,
// arbiter-key-configured, signature, status - and the first failing
// step's error is returned with no transition applied.
func (b *Bridge) ImportDecision(ctx context.Context, urlEscrowID string, raw []byte) error {
	var wire decisionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return coreerrors.Validation("decision packet is not valid JSON: %v", err)
	}

	decision, err := validateStructural(wire)
	if err != nil {
		return err
	}

	if decision.EscrowID != urlEscrowID {
		return coreerrors.Protocol("decision escrow_id %q does not match requested escrow %q", decision.EscrowID, urlEscrowID)
	}

	if b.arbiterKey == ([32]byte{}) {
		return coreerrors.Security("no arbiter public key configured")
	}

	message := cryptoutil.Blake2b512([]byte(decision.EscrowID), []byte(decision.Nonce), []byte(decision.Decision), []byte(decision.SignedTxHex))
	if !cryptoutil.VerifyEd25519(b.arbiterKey[:], message, decision.DecisionSignature[:]) {
		return coreerrors.Protocol("arbiter decision signature does not verify")
	}

	e, err := b.repo.GetEscrow(ctx, decision.EscrowID)
	if err != nil {
		return err
	}
	if e == nil {
		return coreerrors.InvalidState("no escrow exists with id %q", decision.EscrowID)
	}
	if e.Status != models.StatusDisputed {
		return coreerrors.InvalidState("escrow %q is not disputed, got status %q", decision.EscrowID, e.Status)
	}

	var trigger escrow.Trigger
	if decision.Decision == models.DecisionBuyer {
		trigger = escrow.TriggerArbiterResolvesBuyer
	} else {
		trigger = escrow.TriggerArbiterResolvesVendor
	}
	if _, err := b.machine.Apply(ctx, decision.EscrowID, trigger, escrow.ActorArbiter, []byte(decision.Reason)); err != nil {
		return err
	}
	return b.repo.SetTransactionHash(ctx, decision.EscrowID, decision.SignedTxHex)
}

// validateStructural checks non-empty fields, hex formats, signature
// length, and the freshness window.
func validateStructural(wire decisionWire) (*models.ArbiterDecision, error) {
	if wire.EscrowID == "" {
		return nil, coreerrors.Validation("decision escrow_id must not be empty")
	}
	if wire.Nonce == "" {
		return nil, coreerrors.Validation("decision nonce must not be empty")
	}
	if wire.Reason == "" {
		return nil, coreerrors.Validation("decision reason must not be empty")
	}
	if wire.Decision != string(models.DecisionBuyer) && wire.Decision != string(models.DecisionVendor) {
		return nil, coreerrors.Validation("decision must be %q or %q, got %q", models.DecisionBuyer, models.DecisionVendor, wire.Decision)
	}
	if !hexPattern.MatchString(wire.SignedTxHex) {
		return nil, coreerrors.Validation("signed_tx_hex must be hexadecimal")
	}
	sigBytes, err := hex.DecodeString(wire.DecisionSignature)
	if err != nil || len(sigBytes) != 64 {
		return nil, coreerrors.Validation("decision_signature must be 128 hex characters (64 bytes)")
	}

	decidedAt := time.Unix(wire.DecidedAt, 0)
	now := time.Now()
	if decidedAt.After(now.Add(futureTolerance)) {
		return nil, coreerrors.Validation("decided_at is in the future")
	}
	if decidedAt.Before(now.Add(-decisionFreshness)) {
		return nil, coreerrors.Validation("decided_at is too old (older than %s)", decisionFreshness)
	}

	d := &models.ArbiterDecision{
		EscrowID:    wire.EscrowID,
		Nonce:       wire.Nonce,
		Decision:    models.ArbiterDecisionKind(wire.Decision),
		Reason:      wire.Reason,
		SignedTxHex: wire.SignedTxHex,
		DecidedAt:   decidedAt,
	}
	copy(d.DecisionSignature[:], sigBytes)
	return d, nil
}
