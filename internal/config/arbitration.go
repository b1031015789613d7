package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// ArbitrationWeights is the operator-tunable evidence-quality weight table
// consumed by internal/arbitration. Keeping it in its own YAML file
// (rather than hard-coded constants) lets an operator retune the scoring
// without a rebuild.
type ArbitrationWeights struct {
	PhotoWeight          float64 `yaml:"photo_weight"`
	TrackingWeight       float64 `yaml:"tracking_weight"`
	ChatLogWeight        float64 `yaml:"chat_log_weight"`
	ChatLogLengthNorm    int     `yaml:"chat_log_length_norm"`
	CryptoProofWeight    float64 `yaml:"crypto_proof_weight"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	SplitConfidence      float64 `yaml:"split_confidence"`
	NonDeliveryConfidence float64 `yaml:"non_delivery_confidence"`

	// VendorEvidenceBaseConfidence and VendorEvidenceQualityWeight combine
	// as base + weight*quality for rule 1 (vendor tracking+photo).
	VendorEvidenceBaseConfidence  float64 `yaml:"vendor_evidence_base_confidence"`
	VendorEvidenceQualityWeight   float64 `yaml:"vendor_evidence_quality_weight"`
	BuyerCryptoProofConfidence    float64 `yaml:"buyer_crypto_proof_confidence"`
}

// DefaultArbitrationWeights returns the built-in evidence weights and
// confidence thresholds used when no override file is present.
func DefaultArbitrationWeights() ArbitrationWeights {
	return ArbitrationWeights{
		PhotoWeight:           0.2,
		TrackingWeight:        0.3,
		ChatLogWeight:         0.1,
		ChatLogLengthNorm:     10,
		CryptoProofWeight:     0.4,
		ConfidenceThreshold:   0.8,
		SplitConfidence:       0.7,
		NonDeliveryConfidence: 0.75,

		VendorEvidenceBaseConfidence: 0.85,
		VendorEvidenceQualityWeight:  0.15,
		BuyerCryptoProofConfidence:   0.9,
	}
}

// LoadArbitrationWeights reads the weight table from a YAML file at path.
// A missing file is not an error - callers fall back to
// DefaultArbitrationWeights.
func LoadArbitrationWeights(path string) (ArbitrationWeights, error) {
	weights := DefaultArbitrationWeights()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return weights, nil
		}
		return weights, coreerrors.Wrap(coreerrors.KindTransient, err, "reading arbitration weights file")
	}
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return weights, coreerrors.Validation("arbitration weights file is not valid YAML: %v", err)
	}
	return weights, nil
}
