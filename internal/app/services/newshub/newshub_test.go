package newshub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/storage/memory"
)

func newTestService() (*Service, *memory.DTUStore) {
	store := memory.NewDTUStore()
	return New(store, Config{DailyAgeHours: 24, WeeklyAgeDays: 7, MonthlyAgeDays: 30, MinClusterSize: 3}, nil), store
}

func putChild(t *testing.T, ctx context.Context, store *memory.DTUStore, id, domain string, createdAt time.Time) *dtu.DTU {
	t.Helper()
	d := &dtu.DTU{
		ID:        id,
		CreatedAt: createdAt,
		Tier:      dtu.TierRegular,
		Scope:     dtu.Scope{NewsVisible: true, LocalPull: true},
		Meta: dtu.Meta{
			Extra: map[string]interface{}{"domain": domain},
		},
		Layers: dtu.Layers{Human: &dtu.HumanLayer{Summary: "summary-" + id}},
	}
	require.NoError(t, store.PutDTU(ctx, d))
	return d
}

func TestRunCompactionCreatesMegaForSufficientCluster(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 5; i++ {
		putChild(t, ctx, store, "dtu"+string(rune('a'+i)), "science", old)
	}

	result := svc.RunCompaction(ctx)
	require.Equal(t, 1, result.MegasCreated)

	all, err := store.ListDTUsOlderThan(ctx, time.Now().UTC(), false)
	require.NoError(t, err)
	var megaID string
	compressedCount := 0
	for _, d := range all {
		if d.Tier == dtu.TierMega {
			megaID = d.ID
		}
		if d.Meta.Compressed {
			compressedCount++
		}
	}
	require.NotEmpty(t, megaID)
	require.Equal(t, 5, compressedCount)

	decompressed, err := svc.DecompressNewsDTU(ctx, megaID)
	require.NoError(t, err)
	require.Len(t, decompressed.Children, 5)
}

func TestRunCompactionSkipsUndersizedCluster(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	old := time.Now().UTC().Add(-48 * time.Hour)
	putChild(t, ctx, store, "dtu1", "science", old)
	putChild(t, ctx, store, "dtu2", "science", old)

	result := svc.RunCompaction(ctx)
	require.Equal(t, 0, result.MegasCreated)
}

func TestDecompressRejectsNonAggregate(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	putChild(t, ctx, store, "dtu1", "science", time.Now())

	_, err := svc.DecompressNewsDTU(ctx, "dtu1")
	require.Error(t, err)
}
