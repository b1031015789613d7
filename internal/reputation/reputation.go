// Package reputation builds and verifies signed buyer reviews and
// computes vendor-level aggregate statistics from them.
package reputation

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// CanonicalMessage builds the deterministic pipe-joined message a review
// signature covers: txid, rating, comment (or empty), and an RFC3339 UTC
// timestamp, in that order and with no other separators or whitespace.
func CanonicalMessage(txid string, rating int, comment string, timestamp time.Time) []byte {
	fields := []string{
		txid,
		strconv.Itoa(rating),
		comment,
		timestamp.UTC().Format(time.RFC3339),
	}
	return []byte(strings.Join(fields, "|"))
}

// Sign produces a SignedReview for txid/rating/comment, signed by privkey
// (the buyer's Ed25519 private key) over SHA-256 of the canonical
// message. The SHA-256 pre-hash is part of the contract: a verifier must
// reproduce it exactly rather than signing the message directly.
func Sign(privkey ed25519.PrivateKey, txid string, rating int, comment string, timestamp time.Time) (*models.SignedReview, error) {
	if err := models.ValidateRating(rating); err != nil {
		return nil, err
	}
	if len(privkey) != ed25519.PrivateKeySize {
		return nil, coreerrors.Validation("review signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privkey))
	}

	digest := sha256.Sum256(CanonicalMessage(txid, rating, comment, timestamp))
	sig := ed25519.Sign(privkey, digest[:])

	review := &models.SignedReview{
		TxID:      txid,
		Rating:    rating,
		Comment:   comment,
		Timestamp: timestamp.UTC(),
	}
	copy(review.BuyerPubkey[:], privkey.Public().(ed25519.PublicKey))
	copy(review.Signature[:], sig)
	return review, nil
}

// Verify reports whether review's signature is valid for its embedded
// buyer public key.
func Verify(review *models.SignedReview) bool {
	digest := sha256.Sum256(CanonicalMessage(review.TxID, review.Rating, review.Comment, review.Timestamp))
	return ed25519.Verify(review.BuyerPubkey[:], digest[:], review.Signature[:])
}

// VendorReviewSource is the subset of internal/repository the statistics
// computation needs.
type VendorReviewSource interface {
	ReviewsForVendor(ctx context.Context, vendorID string) ([]*models.SignedReview, error)
}

// AggregateStats computes ReputationStats over every review recorded for
// vendorID.
func AggregateStats(ctx context.Context, source VendorReviewSource, vendorID string) (*models.ReputationStats, error) {
	reviews, err := source.ReviewsForVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	stats := &models.ReputationStats{TotalReviews: len(reviews)}
	if len(reviews) == 0 {
		return stats, nil
	}

	var totalRating int
	for _, r := range reviews {
		totalRating += r.Rating
		if r.Rating >= 1 && r.Rating <= 5 {
			stats.RatingDistribution[r.Rating-1]++
		}
		if stats.OldestReview == nil || r.Timestamp.Before(*stats.OldestReview) {
			t := r.Timestamp
			stats.OldestReview = &t
		}
		if stats.NewestReview == nil || r.Timestamp.After(*stats.NewestReview) {
			t := r.Timestamp
			stats.NewestReview = &t
		}
	}
	stats.AverageRating = float64(totalRating) / float64(len(reviews))
	return stats, nil
}
