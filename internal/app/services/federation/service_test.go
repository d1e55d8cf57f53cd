package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domaindtu "github.com/concord-network/substrate/internal/app/domain/dtu"
	domain "github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/storage/memory"
	"github.com/concord-network/substrate/internal/errs"
)

func defaultGates() map[string]domain.QualityGate {
	return map[string]domain.QualityGate{
		"regional": {MinAuthority: 0.15, AllowedInternalTiers: []string{"regular", "mega", "hyper"}},
		"national": {MinAuthority: 0.40, MinCitations: 3, MinAgeHours: 48, MinCouncilVotes: 5, AllowedInternalTiers: []string{"regular", "mega", "hyper"}},
		"global":   {MinAuthority: 0.70, MinCitations: 10, MinAgeHours: 720, MinCouncilVotes: 7, MinCrossRegional: 3, AllowedInternalTiers: []string{"hyper"}},
	}
}

func newTestService() (*Service, *memory.DTUStore) {
	dtus := memory.NewDTUStore()
	return New(memory.NewFederationStore(), dtus, defaultGates(), nil), dtus
}

func TestCreateNationalAndRegion(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	n, err := svc.CreateNational(ctx, "US", "United States")
	require.NoError(t, err)

	r, err := svc.CreateRegion(ctx, n.ID, "Northeast")
	require.NoError(t, err)
	require.Equal(t, n.ID, r.NationalID)
}

func TestHeartbeatRevivesOfflineCRI(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	n, err := svc.CreateNational(ctx, "US", "United States")
	require.NoError(t, err)
	r, err := svc.CreateRegion(ctx, n.ID, "Northeast")
	require.NoError(t, err)
	c, err := svc.RegisterCRI(ctx, r.ID, n.ID)
	require.NoError(t, err)

	require.NoError(t, svc.store.MarkCRIStatus(ctx, c.ID, domain.CRIOffline))
	require.NoError(t, svc.Heartbeat(ctx, c.ID))

	got, err := svc.store.GetCRI(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CRIOnline, got.Status)
}

func TestPromoteDTURejectsGateFailure(t *testing.T) {
	svc, dtus := newTestService()
	ctx := context.Background()

	d := &domaindtu.DTU{ID: "dtu1", Tier: domaindtu.TierRegular, FederationTier: domaindtu.TierLocal}
	require.NoError(t, dtus.PutDTU(ctx, d))

	err := svc.PromoteDTU(ctx, d, domaindtu.TierRegional, domain.GateInput{AuthorityScore: 0.01, DTUInternalTier: "regular"})
	require.True(t, errs.Is(err, errs.KindGateFailed))
	require.Equal(t, domaindtu.TierLocal, d.FederationTier)
}

func TestPromoteDTUSucceedsAndRecordsHistory(t *testing.T) {
	svc, dtus := newTestService()
	ctx := context.Background()

	d := &domaindtu.DTU{ID: "dtu1", Tier: domaindtu.TierRegular, FederationTier: domaindtu.TierLocal}
	require.NoError(t, dtus.PutDTU(ctx, d))

	err := svc.PromoteDTU(ctx, d, domaindtu.TierRegional, domain.GateInput{AuthorityScore: 0.9, DTUInternalTier: "regular"})
	require.NoError(t, err)
	require.Equal(t, domaindtu.TierRegional, d.FederationTier)
}

func TestPromoteDTURejectsDemotion(t *testing.T) {
	svc, dtus := newTestService()
	ctx := context.Background()

	d := &domaindtu.DTU{ID: "dtu1", Tier: domaindtu.TierRegular, FederationTier: domaindtu.TierNational}
	require.NoError(t, dtus.PutDTU(ctx, d))

	err := svc.PromoteDTU(ctx, d, domaindtu.TierRegional, domain.GateInput{AuthorityScore: 0.9, DTUInternalTier: "regular"})
	require.True(t, errs.Is(err, errs.KindCannotDemote))
}

func TestCRISweeperMarksStaleInstancesOffline(t *testing.T) {
	store := memory.NewFederationStore()
	ctx := context.Background()

	c := &domain.CRI{ID: "cri1", Status: domain.CRIOnline, LastHeartbeat: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, store.UpsertCRI(ctx, c))

	sweeper := NewCRISweeper(store, time.Minute, time.Millisecond, nil)
	require.NoError(t, sweeper.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sweeper.Stop(ctx))

	got, err := store.GetCRI(ctx, "cri1")
	require.NoError(t, err)
	require.Equal(t, domain.CRIOffline, got.Status)
}

func TestEscalationStats(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.RecordEscalation(ctx, "q1", "regional", "national"))
	require.NoError(t, svc.RecordEscalation(ctx, "q2", "regional", "national"))

	count, err := svc.EscalationStats(ctx, "national")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
