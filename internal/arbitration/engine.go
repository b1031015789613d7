// Package arbitration implements rule-based evidence scoring and
// automated dispute resolution heuristics for disputed escrows.
package arbitration

import (
	"strings"

	"github.com/yourusername/xmrescrow/internal/config"
	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// ResolutionKind is the outcome an Engine recommends for a dispute.
type ResolutionKind string

const (
	ResolutionReleaseToVendor ResolutionKind = "release_to_vendor"
	ResolutionRefundToBuyer   ResolutionKind = "refund_to_buyer"
	ResolutionSplit           ResolutionKind = "split"
	ResolutionManualReview    ResolutionKind = "manual_review"
)

// Resolution is the Engine's recommendation for a disputed escrow, along
// with the reasoning and confidence behind it. Confidence is meaningless
// for ResolutionManualReview.
type Resolution struct {
	Kind       ResolutionKind
	Reason     string
	Confidence float64
}

// Engine applies the ordered arbitration rules over an evidence bag and
// gates the result on a minimum confidence threshold.
type Engine struct {
	weights config.ArbitrationWeights
}

// New constructs an Engine from an evidence-weight table.
func New(weights config.ArbitrationWeights) *Engine {
	return &Engine{weights: weights}
}

type evidenceAnalysis struct {
	photoCount       int
	trackingCount    int
	chatLogCount     int
	cryptoProofCount int
	qualityScore     float64
}

// analyzeEvidence sums per-type weights across evidence, capping the total
// quality score at 1.0.
func (eng *Engine) analyzeEvidence(evidence []models.Evidence) evidenceAnalysis {
	var a evidenceAnalysis
	w := eng.weights
	for _, item := range evidence {
		switch item.Kind {
		case models.EvidencePhoto:
			a.photoCount++
			a.qualityScore += w.PhotoWeight
		case models.EvidenceTracking:
			a.trackingCount++
			a.qualityScore += w.TrackingWeight
		case models.EvidenceChatLog:
			a.chatLogCount++
			norm := float64(item.ChatMessageCount) / float64(w.ChatLogLengthNorm)
			if norm > 1.0 {
				norm = 1.0
			}
			a.qualityScore += w.ChatLogWeight * norm
		case models.EvidenceCryptoProof:
			a.cryptoProofCount++
			a.qualityScore += w.CryptoProofWeight
		}
	}
	if a.qualityScore > 1.0 {
		a.qualityScore = 1.0
	}
	return a
}

// Resolve applies the five ordered rules to dispute and downgrades the
// result to manual review if its confidence falls below the configured
// threshold. dispute must not be nil and must describe an open dispute;
// Resolve itself does not check escrow status.
func (eng *Engine) Resolve(dispute *models.DisputeRecord) (*Resolution, error) {
	if dispute == nil {
		return nil, coreerrors.Validation("dispute must not be nil")
	}

	overall := eng.analyzeEvidence(dispute.Evidence)
	res := eng.applyRules(dispute, overall)
	return eng.gateByConfidence(res), nil
}

func (eng *Engine) applyRules(dispute *models.DisputeRecord, overall evidenceAnalysis) *Resolution {
	w := eng.weights

	// Rule 1: tracking and photo proof of shipment on record when the
	// buyer opened the dispute.
	if dispute.OpenedBy == "buyer" && overall.trackingCount > 0 && overall.photoCount > 0 {
		return &Resolution{
			Kind:       ResolutionReleaseToVendor,
			Reason:     "vendor provided tracking and photo proof of shipment",
			Confidence: w.VendorEvidenceBaseConfidence + w.VendorEvidenceQualityWeight*overall.qualityScore,
		}
	}

	// Rule 2: cryptographic proof of the buyer's issue on record when the
	// vendor opened the dispute.
	if dispute.OpenedBy == "vendor" && overall.cryptoProofCount > 0 {
		return &Resolution{
			Kind:       ResolutionRefundToBuyer,
			Reason:     "buyer provided cryptographic proof of non-delivery",
			Confidence: w.BuyerCryptoProofConfidence,
		}
	}

	// Rule 3: buyer alleges non-delivery and no tracking evidence exists
	// at all.
	if dispute.OpenedBy == "buyer" && strings.Contains(strings.ToLower(dispute.BuyerClaim), "not received") && overall.trackingCount == 0 {
		return &Resolution{
			Kind:       ResolutionRefundToBuyer,
			Reason:     "no delivery proof provided by vendor",
			Confidence: w.NonDeliveryConfidence,
		}
	}

	// Rule 4: substantial evidence overall but no rule above decided it.
	if overall.qualityScore > 0.5 {
		return &Resolution{
			Kind:       ResolutionSplit,
			Reason:     "both parties provided substantial evidence",
			Confidence: w.SplitConfidence,
		}
	}

	// Rule 5: nothing above applies.
	return &Resolution{
		Kind:   ResolutionManualReview,
		Reason: "insufficient or unclear evidence for automated resolution",
	}
}

// gateByConfidence downgrades any automated decision under the configured
// threshold to manual review.
func (eng *Engine) gateByConfidence(res *Resolution) *Resolution {
	if res.Kind == ResolutionManualReview {
		return res
	}
	if res.Confidence < eng.weights.ConfidenceThreshold {
		return &Resolution{
			Kind:   ResolutionManualReview,
			Reason: "automated confidence below threshold",
		}
	}
	return res
}
