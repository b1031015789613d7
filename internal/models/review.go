package models

import (
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// SignedReview is a buyer-authored, Ed25519-signed star rating of a
// completed transaction.
type SignedReview struct {
	TxID       string    `json:"txid"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	BuyerPubkey [32]byte `json:"buyer_pubkey"`
	Signature   [64]byte `json:"signature"`
}

// ValidateRating enforces the 1..5 star range from the data model.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return coreerrors.Validation("rating must be between 1 and 5, got %d", rating)
	}
	return nil
}

// ReputationStats is the aggregate statistics computed over a vendor's
// reviews.
type ReputationStats struct {
	TotalReviews      int        `json:"total_reviews"`
	AverageRating     float64    `json:"average_rating"`
	RatingDistribution [5]int    `json:"rating_distribution"`
	OldestReview      *time.Time `json:"oldest_review,omitempty"`
	NewestReview      *time.Time `json:"newest_review,omitempty"`
}
