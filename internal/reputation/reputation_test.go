package reputation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/xmrescrow/internal/models"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	review, err := Sign(priv, "tx123", 5, "great trade", time.Now())
	require.NoError(t, err)

	assert.True(t, Verify(review))
}

func TestSignRejectsInvalidRating(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = Sign(priv, "tx123", 6, "", time.Now())
	assert.Error(t, err)
}

func TestVerifyRejectsTamperedRating(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	review, err := Sign(priv, "tx123", 5, "great trade", time.Now())
	require.NoError(t, err)

	review.Rating = 1
	assert.False(t, Verify(review))
}

func TestCanonicalMessageIsDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := CanonicalMessage("tx1", 5, "nice", ts)
	b := CanonicalMessage("tx1", 5, "nice", ts)
	assert.Equal(t, a, b)
	assert.Equal(t, "tx1|5|nice|2026-01-02T03:04:05Z", string(a))
}

type fakeReviewSource struct {
	reviews []*models.SignedReview
}

func (f *fakeReviewSource) ReviewsForVendor(ctx context.Context, vendorID string) ([]*models.SignedReview, error) {
	return f.reviews, nil
}

func TestAggregateStatsComputesAverageAndDistribution(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	newer := time.Now()
	source := &fakeReviewSource{reviews: []*models.SignedReview{
		{TxID: "tx1", Rating: 5, Timestamp: old},
		{TxID: "tx2", Rating: 3, Timestamp: newer},
		{TxID: "tx3", Rating: 5, Timestamp: time.Now().Add(-24 * time.Hour)},
	}}

	stats, err := AggregateStats(context.Background(), source, "vendor-1")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalReviews)
	assert.InDelta(t, float64(13)/3, stats.AverageRating, 0.0001)
	assert.Equal(t, 2, stats.RatingDistribution[4])
	assert.Equal(t, 1, stats.RatingDistribution[2])
	assert.Equal(t, old, *stats.OldestReview)
	assert.Equal(t, newer, *stats.NewestReview)
}

func TestAggregateStatsEmptyVendor(t *testing.T) {
	source := &fakeReviewSource{}
	stats, err := AggregateStats(context.Background(), source, "vendor-empty")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalReviews)
	assert.Nil(t, stats.OldestReview)
}
