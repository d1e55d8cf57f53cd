package canonical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/storage/memory"
)

func newTestService() (*Service, *memory.DedupReviewStore) {
	reviews := memory.NewDedupReviewStore()
	svc := New(memory.NewCanonicalStore(), reviews, nil, nil)
	return svc, reviews
}

func TestRegisterFirstIsNew(t *testing.T) {
	svc, _ := newTestService()
	res, err := svc.Register(context.Background(), "hash1", "dtu_1", "creator_a")
	require.NoError(t, err)
	require.True(t, res.IsNew)
	require.Equal(t, "dtu_1", res.CanonicalDTUID)
	require.Equal(t, 1, res.ReferenceCount)
}

func TestRegisterSameCreatorIncrementsReference(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "dtu_1", "creator_a")
	require.NoError(t, err)

	res, err := svc.Register(ctx, "hash1", "dtu_2", "creator_a")
	require.NoError(t, err)
	require.False(t, res.IsNew)
	require.Equal(t, "dtu_1", res.CanonicalDTUID)
	require.Equal(t, 2, res.ReferenceCount)
}

func TestRegisterCrossCreatorOpensReview(t *testing.T) {
	svc, reviews := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "dtu_1", "creator_a")
	require.NoError(t, err)

	res, err := svc.Register(ctx, "hash1", "dtu_2", "creator_b")
	require.NoError(t, err)
	require.Equal(t, "dtu_1", res.CanonicalDTUID)
	require.Equal(t, 1, res.ReferenceCount)

	pending, err := reviews.ListPendingDedupReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "creator_b", pending[0].NewCreator)
}

func TestLookupNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Lookup(context.Background(), "missing")
	require.Error(t, err)
}

func TestScanHashAgainstLatticeCountsDetections(t *testing.T) {
	threats := memory.NewThreatLatticeStore()
	require.NoError(t, threats.RegisterThreat(context.Background(), "known_bad_hash"))

	svc := New(memory.NewCanonicalStore(), memory.NewDedupReviewStore(), threats, nil)
	ctx := context.Background()

	last := 0
	for i := 0; i < 3; i++ {
		r, err := svc.ScanHashAgainstLattice(ctx, "known_bad_hash")
		require.NoError(t, err)
		require.NotNil(t, r)
		last = r.TimesDetected
	}
	require.Equal(t, 3, last)
}

func TestScanHashAgainstLatticeUnknownHashReturnsNil(t *testing.T) {
	threats := memory.NewThreatLatticeStore()
	svc := New(memory.NewCanonicalStore(), memory.NewDedupReviewStore(), threats, nil)
	row, err := svc.ScanHashAgainstLattice(context.Background(), "clean_hash")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestScanHashAgainstLatticeNilStoreIsNoop(t *testing.T) {
	svc, _ := newTestService()
	row, err := svc.ScanHashAgainstLattice(context.Background(), "known_bad_hash")
	require.NoError(t, err)
	require.Nil(t, row)
}
