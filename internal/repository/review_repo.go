package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// SaveReview persists a signed review, recording whether its signature
// was already verified by the caller.
func (r *Repository) SaveReview(ctx context.Context, reviewerID, vendorID string, review *models.SignedReview, verified bool) error {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, txid, reviewer_id, vendor_id, rating, comment, buyer_pubkey, signature, timestamp, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, review.TxID, reviewerID, vendorID, review.Rating, nullableComment(review.Comment),
		review.BuyerPubkey[:], review.Signature[:], review.Timestamp.Format(time.RFC3339), boolToInt(verified), time.Now().Unix())
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "saving review")
	}
	return nil
}

func nullableComment(c string) interface{} {
	if c == "" {
		return nil
	}
	return c
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ReviewsForVendor returns every review recorded for vendorID, oldest
// first, for aggregate statistics computation.
func (r *Repository) ReviewsForVendor(ctx context.Context, vendorID string) ([]*models.SignedReview, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT txid, rating, comment, buyer_pubkey, signature, timestamp
		FROM reviews WHERE vendor_id = ? ORDER BY created_at ASC
	`, vendorID)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying reviews")
	}
	defer rows.Close()

	var out []*models.SignedReview
	for rows.Next() {
		var review models.SignedReview
		var comment *string
		var pubkey, signature []byte
		var timestamp string
		if err := rows.Scan(&review.TxID, &review.Rating, &comment, &pubkey, &signature, &timestamp); err != nil {
			return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "scanning review row")
		}
		if comment != nil {
			review.Comment = *comment
		}
		copy(review.BuyerPubkey[:], pubkey)
		copy(review.Signature[:], signature)
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, coreerrors.Validation("malformed review timestamp %q: %v", timestamp, err)
		}
		review.Timestamp = ts
		out = append(out, &review)
	}
	return out, rows.Err()
}
