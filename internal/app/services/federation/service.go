// Package federation implements the Federation Registry & Gates (spec
// §4.5): nationals/regions/CRIs, location/transfer history, quality-gate
// promotion checks, and the CRI heartbeat sweep background loop.
package federation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/concord-network/substrate/internal/app/core/service"
	domaindtu "github.com/concord-network/substrate/internal/app/domain/dtu"
	domain "github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// Service implements the Federation Registry.
type Service struct {
	store storage.FederationStore
	dtus  storage.DTUStore
	gates map[string]domain.QualityGate
	log   *logger.Logger
}

// New constructs a Federation Registry service. gates maps target tier name
// ("regional", "national", "global") to its quality gate (spec §6 table).
func New(store storage.FederationStore, dtus storage.DTUStore, gates map[string]domain.QualityGate, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("federation")
	}
	return &Service{store: store, dtus: dtus, gates: gates, log: log}
}

// CreateNational registers a new national node.
func (s *Service) CreateNational(ctx context.Context, countryCode, name string) (*domain.National, error) {
	n := &domain.National{ID: "national_" + uuid.NewString(), CountryCode: countryCode, Name: name, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateNational(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// CreateRegion registers a new region under a national.
func (s *Service) CreateRegion(ctx context.Context, nationalID, name string) (*domain.Region, error) {
	if _, err := s.store.GetNational(ctx, nationalID); err != nil {
		return nil, err
	}
	r := &domain.Region{ID: "region_" + uuid.NewString(), NationalID: nationalID, Name: name, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateRegion(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterCRI registers a new compute/regional instance, initially online.
func (s *Service) RegisterCRI(ctx context.Context, regionID, nationalID string) (*domain.CRI, error) {
	c := &domain.CRI{
		ID:            "cri_" + uuid.NewString(),
		RegionID:      regionID,
		NationalID:    nationalID,
		Status:        domain.CRIOnline,
		LastHeartbeat: time.Now().UTC(),
	}
	if err := s.store.UpsertCRI(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Heartbeat records a liveness signal for a CRI, bringing it back online if
// it was previously marked offline.
func (s *Service) Heartbeat(ctx context.Context, criID string) error {
	c, err := s.store.GetCRI(ctx, criID)
	if err != nil {
		return err
	}
	c.LastHeartbeat = time.Now().UTC()
	c.Status = domain.CRIOnline
	return s.store.UpsertCRI(ctx, c)
}

// DeclareUserLocation appends one entry to the immutable location history
// for a subject/field pair on every call (spec §4.5). It does not compare
// the value with the subject's previous one, so a repeated value is
// appended again.
func (s *Service) DeclareUserLocation(ctx context.Context, subjectID, field, value string) error {
	return s.store.AppendLocationHistory(ctx, domain.LocationHistoryEntry{
		SubjectID:  subjectID,
		Field:      field,
		Value:      value,
		OccurredAt: time.Now().UTC(),
	})
}

// SetEntityHomeBase assigns an entity's home CRI, rejecting a change once
// set (spec §4.5, location-immutability invariant).
func (s *Service) SetEntityHomeBase(ctx context.Context, entityID, criID string) error {
	return s.store.SetEntityHomeBase(ctx, entityID, criID)
}

// TransferEntity moves an entity between CRIs, recording one row in
// entity_transfer_history.
func (s *Service) TransferEntity(ctx context.Context, entityID, fromCRIID, toCRIID string) error {
	return s.store.AppendTransferHistory(ctx, domain.TransferHistoryEntry{
		EntityID:   entityID,
		FromCRIID:  fromCRIID,
		ToCRIID:    toCRIID,
		OccurredAt: time.Now().UTC(),
	})
}

// GateResult is the outcome of evaluating a tier-promotion quality gate.
type GateResult struct {
	OK       bool
	Failures []domain.Failure
}

// EvaluateGate checks in against the named target tier's quality gate.
func (s *Service) EvaluateGate(targetTier string, in domain.GateInput) GateResult {
	gate, ok := s.gates[targetTier]
	if !ok {
		return GateResult{OK: false, Failures: []domain.Failure{{Gate: "tier", Required: "known tier", Actual: targetTier}}}
	}
	failures := domain.Evaluate(gate, in)
	return GateResult{OK: len(failures) == 0, Failures: failures}
}

// PromoteDTU validates the monotonicity invariant and the target tier's
// quality gate, then persists the new federation tier and appends a
// dtu_federation_history row.
func (s *Service) PromoteDTU(ctx context.Context, d *domaindtu.DTU, targetTier domaindtu.FederationTier, in domain.GateInput) error {
	next, err := domaindtu.Promote(d.FederationTier, targetTier)
	if err != nil {
		return err
	}
	result := s.EvaluateGate(string(targetTier), in)
	if !result.OK {
		return errs.GateFailed(string(targetTier), toGateFailures(result.Failures))
	}

	from := d.FederationTier
	d.FederationTier = next
	d.UpdatedAt = time.Now().UTC()
	if err := s.dtus.PutDTU(ctx, d); err != nil {
		return err
	}
	if err := s.store.AppendFederationHistory(ctx, d.ID, from, next); err != nil {
		return err
	}
	s.log.WithField("dtu_id", d.ID).WithField("from", from).WithField("to", next).Info("dtu promoted")
	return nil
}

func toGateFailures(failures []domain.Failure) []errs.GateFailure {
	out := make([]errs.GateFailure, len(failures))
	for i, f := range failures {
		out[i] = errs.GateFailure{Gate: f.Gate, Required: f.Required, Actual: f.Actual}
	}
	return out
}

// RegisterPeer announces a sibling region reachable for federated queries.
func (s *Service) RegisterPeer(ctx context.Context, regionID, peerRegionID string) error {
	return s.store.RegisterPeer(ctx, domain.Peer{RegionID: regionID, PeerRegionID: peerRegionID, AnnouncedAt: time.Now().UTC()})
}

// ListPeers returns the peers announced for a region.
func (s *Service) ListPeers(ctx context.Context, regionID string) ([]domain.Peer, error) {
	return s.store.ListPeers(ctx, regionID)
}

// RecordEscalation appends one federation_escalations row for a resolver
// query that climbed from fromTier to toTier (SPEC_FULL.md §4 supplement).
func (s *Service) RecordEscalation(ctx context.Context, query, fromTier, toTier string) error {
	if err := s.store.AppendEscalation(ctx, domain.EscalationRecord{
		Query:      query,
		FromTier:   fromTier,
		ToTier:     toTier,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	metrics.RecordFederationEscalation(fromTier, toTier)
	return nil
}

// EscalationStats returns how many queries have escalated to tier.
func (s *Service) EscalationStats(ctx context.Context, tier string) (int, error) {
	return s.store.EscalationStats(ctx, tier)
}

// Ensure CRISweeper implements system.Service.
var _ system.Service = (*CRISweeper)(nil)

// CRISweeper periodically marks CRIs whose heartbeat has gone stale as
// offline (spec §4.5). Grounded in the teacher's ticker-with-reentry-guard
// scheduler shape.
type CRISweeper struct {
	store     storage.FederationStore
	threshold time.Duration
	interval  time.Duration
	log       *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewCRISweeper constructs a heartbeat sweep loop. threshold is the
// staleness window (config CRIHeartbeatTimeout); interval is the poll
// period (config CRISweepInterval).
func NewCRISweeper(store storage.FederationStore, threshold, interval time.Duration, log *logger.Logger) *CRISweeper {
	if log == nil {
		log = logger.NewDefault("federation-cri-sweep")
	}
	return &CRISweeper{store: store, threshold: threshold, interval: interval, log: log}
}

// Name returns the service identifier.
func (s *CRISweeper) Name() string { return "federation-cri-sweep" }

// Descriptor advertises the sweeper's architectural placement.
func (s *CRISweeper) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "federation-cri-sweep",
		Domain:       "federation",
		Layer:        core.LayerEngine,
		Capabilities: []string{"heartbeat", "sweep"},
	}
}

// Start begins the background sweep loop.
func (s *CRISweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("cri heartbeat sweep started")
	return nil
}

// Stop halts the sweep loop.
func (s *CRISweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("cri heartbeat sweep stopped")
	return nil
}

func (s *CRISweeper) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cris, err := s.store.ListCRIs(tickCtx)
	if err != nil {
		s.log.WithError(err).Warn("cri sweep failed to list instances")
		return
	}

	now := time.Now().UTC()
	for _, c := range cris {
		if c.Status == domain.CRIOnline && c.IsStale(now, s.threshold) {
			if err := s.store.MarkCRIStatus(tickCtx, c.ID, domain.CRIOffline); err != nil {
				s.log.WithError(err).WithField("cri_id", c.ID).Warn("failed to mark cri offline")
				continue
			}
			s.log.WithField("cri_id", c.ID).Warn("cri marked offline after missed heartbeats")
		}
	}
}
