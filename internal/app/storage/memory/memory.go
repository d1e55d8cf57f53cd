// Package memory implements every storage interface as an in-process,
// mutex-guarded map store, grounded on the teacher's storage.Memory
// pattern. It doubles as the test double for every service package and as
// a single-node prototyping backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/errs"
)

// DTUStore is the in-memory knowledge-DTU store.
type DTUStore struct {
	mu       sync.RWMutex
	byID     map[string]*dtu.DTU
	archived map[string]bool
}

// NewDTUStore constructs an empty DTUStore.
func NewDTUStore() *DTUStore {
	return &DTUStore{byID: make(map[string]*dtu.DTU), archived: make(map[string]bool)}
}

func (s *DTUStore) PutDTU(_ context.Context, d *dtu.DTU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}

func (s *DTUStore) GetDTU(_ context.Context, id string) (*dtu.DTU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, errs.NotFound("dtu", id)
	}
	cp := *d
	return &cp, nil
}

func (s *DTUStore) ListDTUs(_ context.Context, ids []string) ([]*dtu.DTU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*dtu.DTU, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.byID[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *DTUStore) ListDTUsOlderThan(_ context.Context, cutoff time.Time, excludeCompressed bool) ([]*dtu.DTU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dtu.DTU
	for _, d := range s.byID {
		if d.CreatedAt.After(cutoff) {
			continue
		}
		if excludeCompressed && d.Meta.Compressed {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *DTUStore) ArchiveDTU(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return errs.NotFound("dtu", id)
	}
	s.archived[id] = true
	return nil
}

func (s *DTUStore) IsDTUArchived(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.archived[id], nil
}

// SystemDTUStore is the in-memory system-only DTU store, structurally
// disjoint from DTUStore.
type SystemDTUStore struct {
	mu   sync.RWMutex
	byID map[string]*dtu.DTU
}

// NewSystemDTUStore constructs an empty SystemDTUStore.
func NewSystemDTUStore() *SystemDTUStore {
	return &SystemDTUStore{byID: make(map[string]*dtu.DTU)}
}

func (s *SystemDTUStore) PutSystemDTU(_ context.Context, d *dtu.DTU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}

func (s *SystemDTUStore) GetSystemDTU(_ context.Context, id string) (*dtu.DTU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, errs.NotFound("system_dtu", id)
	}
	cp := *d
	return &cp, nil
}

// CanonicalStore is the in-memory canonical-content registry.
type CanonicalStore struct {
	mu      sync.Mutex
	byHash  map[string]*storage.CanonicalEntry
}

// NewCanonicalStore constructs an empty CanonicalStore.
func NewCanonicalStore() *CanonicalStore {
	return &CanonicalStore{byHash: make(map[string]*storage.CanonicalEntry)}
}

func (s *CanonicalStore) GetCanonical(_ context.Context, contentHash string) (*storage.CanonicalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHash[contentHash]
	if !ok {
		return nil, errs.NotFound("canonical_content", contentHash)
	}
	cp := *e
	return &cp, nil
}

func (s *CanonicalStore) UpsertCanonical(_ context.Context, entry *storage.CanonicalEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[entry.ContentHash]; ok {
		return false, nil
	}
	cp := *entry
	s.byHash[entry.ContentHash] = &cp
	return true, nil
}

func (s *CanonicalStore) IncrementCanonicalReference(_ context.Context, contentHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHash[contentHash]
	if !ok {
		return 0, errs.NotFound("canonical_content", contentHash)
	}
	e.ReferenceCount++
	return e.ReferenceCount, nil
}

// DedupReviewStore is the in-memory dedup_reviews queue.
type DedupReviewStore struct {
	mu   sync.Mutex
	byID map[string]*storage.DedupReview
}

// NewDedupReviewStore constructs an empty DedupReviewStore.
func NewDedupReviewStore() *DedupReviewStore {
	return &DedupReviewStore{byID: make(map[string]*storage.DedupReview)}
}

func (s *DedupReviewStore) CreateDedupReview(_ context.Context, r *storage.DedupReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	s.byID[r.ID] = &cp
	return nil
}

func (s *DedupReviewStore) ListPendingDedupReviews(_ context.Context) ([]*storage.DedupReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.DedupReview
	for _, r := range s.byID {
		if !r.Resolved {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *DedupReviewStore) ResolveDedupReview(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return errs.NotFound("dedup_review", id)
	}
	if r.Resolved {
		return errs.ReviewAlreadyProcessed(id)
	}
	r.Resolved = true
	return nil
}

// RightsStore is the in-memory rights ledger.
type RightsStore struct {
	mu     sync.RWMutex
	byHash map[string]*rights.Record
}

// NewRightsStore constructs an empty RightsStore.
func NewRightsStore() *RightsStore {
	return &RightsStore{byHash: make(map[string]*rights.Record)}
}

func (s *RightsStore) GetRights(_ context.Context, contentHash string) (*rights.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byHash[contentHash]
	if !ok {
		return nil, errs.NotFound("rights_record", contentHash)
	}
	cp := *r
	return &cp, nil
}

func (s *RightsStore) PutRights(_ context.Context, r *rights.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.byHash[r.ContentHash] = &cp
	return nil
}

// SubscriptionStore is the in-memory subscription table.
type SubscriptionStore struct {
	mu      sync.RWMutex
	byUser  map[string]*subscription.Subscription
}

// NewSubscriptionStore constructs an empty SubscriptionStore.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{byUser: make(map[string]*subscription.Subscription)}
}

func (s *SubscriptionStore) GetSubscription(_ context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byUser[userID]
	if !ok {
		return nil, errs.NotFound("subscription", userID)
	}
	cp := *sub
	return &cp, nil
}

func (s *SubscriptionStore) PutSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.byUser[sub.UserID] = &cp
	return nil
}

func (s *SubscriptionStore) ListSubscriptions(_ context.Context) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*subscription.Subscription, 0, len(s.byUser))
	for _, sub := range s.byUser {
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

// FederationStore is the in-memory federation registry: nationals,
// regions, CRIs, entity/user location history, peers, escalations.
type FederationStore struct {
	mu sync.RWMutex

	nationals           map[string]*federation.National
	nationalsByCountry  map[string]string
	regions             map[string]*federation.Region
	cris                map[string]*federation.CRI
	locationHistory     []federation.LocationHistoryEntry
	entityHomeBase      map[string]string
	transferHistory     []federation.TransferHistoryEntry
	federationHistory   map[string][]string // dtuID -> tier transitions, append-only
	peers               map[string][]federation.Peer
	escalations         []federation.EscalationRecord
}

// NewFederationStore constructs an empty FederationStore.
func NewFederationStore() *FederationStore {
	return &FederationStore{
		nationals:          make(map[string]*federation.National),
		nationalsByCountry: make(map[string]string),
		regions:            make(map[string]*federation.Region),
		cris:               make(map[string]*federation.CRI),
		entityHomeBase:     make(map[string]string),
		federationHistory:  make(map[string][]string),
		peers:              make(map[string][]federation.Peer),
	}
}

func (s *FederationStore) CreateNational(_ context.Context, n *federation.National) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nationalsByCountry[n.CountryCode]; exists {
		return errs.CountryCodeExists(n.CountryCode)
	}
	cp := *n
	s.nationals[n.ID] = &cp
	s.nationalsByCountry[n.CountryCode] = n.ID
	return nil
}

func (s *FederationStore) GetNational(_ context.Context, id string) (*federation.National, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nationals[id]
	if !ok {
		return nil, errs.NationalNotFound(id)
	}
	cp := *n
	return &cp, nil
}

func (s *FederationStore) GetNationalByCountryCode(_ context.Context, code string) (*federation.National, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nationalsByCountry[code]
	if !ok {
		return nil, errs.NationalNotFound(code)
	}
	cp := *s.nationals[id]
	return &cp, nil
}

func (s *FederationStore) CreateRegion(_ context.Context, r *federation.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.regions[r.ID] = &cp
	return nil
}

func (s *FederationStore) GetRegion(_ context.Context, id string) (*federation.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.regions[id]
	if !ok {
		return nil, errs.NotFound("region", id)
	}
	cp := *r
	return &cp, nil
}

func (s *FederationStore) UpsertCRI(_ context.Context, c *federation.CRI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cris[c.ID] = &cp
	return nil
}

func (s *FederationStore) GetCRI(_ context.Context, id string) (*federation.CRI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cris[id]
	if !ok {
		return nil, errs.NotFound("cri", id)
	}
	cp := *c
	return &cp, nil
}

func (s *FederationStore) ListCRIs(_ context.Context) ([]*federation.CRI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*federation.CRI, 0, len(s.cris))
	for _, c := range s.cris {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *FederationStore) MarkCRIStatus(_ context.Context, id string, status federation.CRIStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cris[id]
	if !ok {
		return errs.NotFound("cri", id)
	}
	c.Status = status
	return nil
}

func (s *FederationStore) AppendLocationHistory(_ context.Context, entry federation.LocationHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locationHistory = append(s.locationHistory, entry)
	return nil
}

func (s *FederationStore) SetEntityHomeBase(_ context.Context, entityID, criID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entityHomeBase[entityID]; ok && existing != criID {
		return errs.LocationAlreadySet("entityHomeBase")
	}
	s.entityHomeBase[entityID] = criID
	return nil
}

func (s *FederationStore) GetEntityHomeBase(_ context.Context, entityID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	criID, ok := s.entityHomeBase[entityID]
	if !ok {
		return "", errs.NotFound("entity_home_base", entityID)
	}
	return criID, nil
}

func (s *FederationStore) AppendTransferHistory(_ context.Context, entry federation.TransferHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferHistory = append(s.transferHistory, entry)
	s.entityHomeBase[entry.EntityID] = entry.ToCRIID
	return nil
}

func (s *FederationStore) AppendFederationHistory(_ context.Context, dtuID string, fromTier, toTier dtu.FederationTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.federationHistory[dtuID] = append(s.federationHistory[dtuID], string(fromTier)+"->"+string(toTier))
	return nil
}

func (s *FederationStore) RegisterPeer(_ context.Context, p federation.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.RegionID] = append(s.peers[p.RegionID], p)
	return nil
}

func (s *FederationStore) ListPeers(_ context.Context, regionID string) ([]federation.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]federation.Peer, len(s.peers[regionID]))
	copy(out, s.peers[regionID])
	return out, nil
}

func (s *FederationStore) AppendEscalation(_ context.Context, rec federation.EscalationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations = append(s.escalations, rec)
	return nil
}

func (s *FederationStore) EscalationStats(_ context.Context, tier string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.escalations {
		if e.ToTier == tier {
			n++
		}
	}
	return n, nil
}

// LensStore is the in-memory lens registry and compliance ledger.
type LensStore struct {
	mu               sync.RWMutex
	byID             map[string]*lens.Adapter
	complianceResults []complianceResultRow
	audits           []auditRow
	upgrades         []upgradeRow
}

type complianceResultRow struct {
	LensID  string
	Phase   lens.Phase
	Outcome lens.CheckOutcome
	Detail  string
}

type auditRow struct {
	LensID string
	Passed bool
	RunAt  time.Time
}

type upgradeRow struct {
	LensID    string
	Version   string
	AppliedAt time.Time
}

// NewLensStore constructs an empty LensStore.
func NewLensStore() *LensStore {
	return &LensStore{byID: make(map[string]*lens.Adapter)}
}

func (s *LensStore) RegisterLens(_ context.Context, a *lens.Adapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ID]; exists {
		return errs.AlreadyExists("lens", a.ID)
	}
	cp := *a
	s.byID[a.ID] = &cp
	return nil
}

func (s *LensStore) GetLens(_ context.Context, id string) (*lens.Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, errs.NotFound("lens", id)
	}
	cp := *a
	return &cp, nil
}

func (s *LensStore) ListLenses(_ context.Context) ([]*lens.Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*lens.Adapter, 0, len(s.byID))
	for _, a := range s.byID {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *LensStore) SetLensStatus(_ context.Context, id string, status lens.ComplianceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return errs.NotFound("lens", id)
	}
	a.Status = status
	return nil
}

func (s *LensStore) CountLensesByOwner(_ context.Context, emergentOwned bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.byID {
		if a.EmergentOwned == emergentOwned {
			n++
		}
	}
	return n, nil
}

func (s *LensStore) RecordComplianceResult(_ context.Context, lensID string, phase lens.Phase, outcome lens.CheckOutcome, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complianceResults = append(s.complianceResults, complianceResultRow{lensID, phase, outcome, detail})
	return nil
}

func (s *LensStore) RecordAudit(_ context.Context, lensID string, passed bool, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, auditRow{lensID, passed, runAt})
	return nil
}

func (s *LensStore) RecordUpgradeStatus(_ context.Context, lensID string, version string, appliedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgrades = append(s.upgrades, upgradeRow{lensID, version, appliedAt})
	return nil
}

// BridgeSeenStore is the in-memory raw-event-hash dedup window tracker.
type BridgeSeenStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewBridgeSeenStore constructs an empty BridgeSeenStore.
func NewBridgeSeenStore() *BridgeSeenStore {
	return &BridgeSeenStore{seen: make(map[string]time.Time)}
}

func (s *BridgeSeenStore) MarkIfAbsent(_ context.Context, hash string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if seenAt, ok := s.seen[hash]; ok && now.Sub(seenAt) < window {
		return false, nil
	}
	s.seen[hash] = now
	return true, nil
}

// ThreatLatticeStore is the in-memory known-bad-hash lattice.
type ThreatLatticeStore struct {
	mu   sync.Mutex
	rows map[string]*storage.ThreatLatticeRow
}

// NewThreatLatticeStore constructs an empty ThreatLatticeStore.
func NewThreatLatticeStore() *ThreatLatticeStore {
	return &ThreatLatticeStore{rows: make(map[string]*storage.ThreatLatticeRow)}
}

func (s *ThreatLatticeStore) ScanHash(_ context.Context, hash string) (*storage.ThreatLatticeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[hash]
	if !ok {
		return nil, nil
	}
	row.TimesDetected++
	row.LastDetectedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (s *ThreatLatticeStore) RegisterThreat(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[hash]; ok {
		return nil
	}
	now := time.Now().UTC()
	s.rows[hash] = &storage.ThreatLatticeRow{Hash: hash, FirstDetectedAt: now, LastDetectedAt: now}
	return nil
}
