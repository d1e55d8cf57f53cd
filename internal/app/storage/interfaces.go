// Package storage declares the store interfaces every subsystem depends
// on. Two implementations are provided: memory (in-process, used for tests
// and single-node prototyping) and postgres (durable, spec §6's table
// list). Method names are scoped per domain (GetDTU, GetRights, ...),
// mirroring the teacher's CreateAccount/GetAccount naming, so a single
// aggregate Store can implement every interface without collisions.
package storage

import (
	"context"
	"time"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
)

// DTUStore persists knowledge DTUs (dtu_registry). System DTUs use a
// disjoint SystemDTUStore so the two never share a container (spec §9
// "system vs. knowledge partitioning").
type DTUStore interface {
	PutDTU(ctx context.Context, d *dtu.DTU) error
	GetDTU(ctx context.Context, id string) (*dtu.DTU, error)
	ListDTUs(ctx context.Context, ids []string) ([]*dtu.DTU, error)
	ListDTUsOlderThan(ctx context.Context, cutoff time.Time, excludeCompressed bool) ([]*dtu.DTU, error)
	ArchiveDTU(ctx context.Context, id string) error
	IsDTUArchived(ctx context.Context, id string) (bool, error)
}

// SystemDTUStore persists system-only DTUs, kept structurally separate from
// DTUStore.
type SystemDTUStore interface {
	PutSystemDTU(ctx context.Context, d *dtu.DTU) error
	GetSystemDTU(ctx context.Context, id string) (*dtu.DTU, error)
}

// CanonicalEntry is one row of canonical_content.
type CanonicalEntry struct {
	ContentHash    string
	CanonicalDTUID string
	ReferenceCount int
	OwnerCreatorID string
}

// CanonicalStore backs the Canonical Registry (spec §4.2).
type CanonicalStore interface {
	GetCanonical(ctx context.Context, contentHash string) (*CanonicalEntry, error)
	UpsertCanonical(ctx context.Context, entry *CanonicalEntry) (isNew bool, err error)
	IncrementCanonicalReference(ctx context.Context, contentHash string) (int, error)
}

// DedupReview is a pending cross-creator dedup decision (SPEC_FULL.md §4).
type DedupReview struct {
	ID              string
	ContentHash     string
	ExistingDTUID   string
	ExistingCreator string
	NewCreator      string
	Resolved        bool
	CreatedAt       time.Time
}

// DedupReviewStore backs the dedup_reviews table.
type DedupReviewStore interface {
	CreateDedupReview(ctx context.Context, r *DedupReview) error
	ListPendingDedupReviews(ctx context.Context) ([]*DedupReview, error)
	ResolveDedupReview(ctx context.Context, id string) error
}

// RightsStore backs the Rights Ledger (spec §4.4).
type RightsStore interface {
	GetRights(ctx context.Context, contentHash string) (*rights.Record, error)
	PutRights(ctx context.Context, r *rights.Record) error
}

// FederationStore backs nationals, regions, cri_instances,
// user_location_history, entity_home_base, entity_transfer_history,
// federation_peers, dtu_federation_history.
type FederationStore interface {
	CreateNational(ctx context.Context, n *federation.National) error
	GetNational(ctx context.Context, id string) (*federation.National, error)
	GetNationalByCountryCode(ctx context.Context, code string) (*federation.National, error)

	CreateRegion(ctx context.Context, r *federation.Region) error
	GetRegion(ctx context.Context, id string) (*federation.Region, error)

	UpsertCRI(ctx context.Context, c *federation.CRI) error
	GetCRI(ctx context.Context, id string) (*federation.CRI, error)
	ListCRIs(ctx context.Context) ([]*federation.CRI, error)
	MarkCRIStatus(ctx context.Context, id string, status federation.CRIStatus) error

	AppendLocationHistory(ctx context.Context, entry federation.LocationHistoryEntry) error
	SetEntityHomeBase(ctx context.Context, entityID, criID string) error
	GetEntityHomeBase(ctx context.Context, entityID string) (string, error)
	AppendTransferHistory(ctx context.Context, entry federation.TransferHistoryEntry) error

	AppendFederationHistory(ctx context.Context, dtuID string, fromTier, toTier dtu.FederationTier) error

	RegisterPeer(ctx context.Context, p federation.Peer) error
	ListPeers(ctx context.Context, regionID string) ([]federation.Peer, error)

	AppendEscalation(ctx context.Context, rec federation.EscalationRecord) error
	EscalationStats(ctx context.Context, tier string) (int, error)
}

// SubscriptionStore backs the per-user subscription table.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error)
	PutSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptions(ctx context.Context) ([]*subscription.Subscription, error)
}

// LensStore backs lens_registry, lens_compliance_results, lens_audits,
// lens_upgrade_status.
type LensStore interface {
	RegisterLens(ctx context.Context, a *lens.Adapter) error
	GetLens(ctx context.Context, id string) (*lens.Adapter, error)
	ListLenses(ctx context.Context) ([]*lens.Adapter, error)
	SetLensStatus(ctx context.Context, id string, status lens.ComplianceStatus) error
	CountLensesByOwner(ctx context.Context, emergentOwned bool) (int, error)

	RecordComplianceResult(ctx context.Context, lensID string, phase lens.Phase, outcome lens.CheckOutcome, detail string) error
	RecordAudit(ctx context.Context, lensID string, passed bool, runAt time.Time) error
	RecordUpgradeStatus(ctx context.Context, lensID string, version string, appliedAt time.Time) error
}

// BridgeSeenStore tracks raw-event hashes committed within the dedup
// window, guaranteeing event idempotence (spec §3, §4.6 stage 3).
type BridgeSeenStore interface {
	// MarkIfAbsent atomically records hash if not already present within
	// the window, returning false if it was already seen.
	MarkIfAbsent(ctx context.Context, hash string, window time.Duration) (bool, error)
}

// ThreatLatticeRow is one row of the known-bad-hash threat lattice (spec
// §6 persisted tables, §8 property S2).
type ThreatLatticeRow struct {
	Hash            string
	TimesDetected   int
	FirstDetectedAt time.Time
	LastDetectedAt  time.Time
}

// ThreatLatticeStore backs the known-bad-hash threat lattice consulted by
// the Canonical Registry's reimport scan. A hash with no pre-existing row
// is not a known threat.
type ThreatLatticeStore interface {
	// ScanHash increments times_detected and returns the row if hash is a
	// pre-registered threat; returns (nil, nil) otherwise.
	ScanHash(ctx context.Context, hash string) (*ThreatLatticeRow, error)
	// RegisterThreat seeds hash as a known-bad hash (idempotent).
	RegisterThreat(ctx context.Context, hash string) error
}
