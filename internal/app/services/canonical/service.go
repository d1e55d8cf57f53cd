// Package canonical implements the Canonical Registry (spec §4.2):
// content-hash → canonical DTU id deduplication with reference counting.
package canonical

import (
	lru "github.com/hashicorp/golang-lru/v2"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/pkg/logger"

	"context"
)

// cacheSize bounds the hash→entry LRU sitting in front of the store,
// avoiding a round trip for hot content hashes repeatedly registered within
// a short window (e.g. a burst of identical event-bridge submissions).
const cacheSize = 4096

// RegisterResult is returned by Register.
type RegisterResult struct {
	CanonicalDTUID string
	ReferenceCount int
	IsNew          bool
}

// Service implements the Canonical Registry.
type Service struct {
	store   storage.CanonicalStore
	reviews storage.DedupReviewStore
	threats storage.ThreatLatticeStore
	log     *logger.Logger
	hooks   core.ObservationHooks
	cache   *lru.Cache[string, storage.CanonicalEntry]
}

// New constructs a Canonical Registry service. threats may be nil to skip
// reimport threat scanning.
func New(store storage.CanonicalStore, reviews storage.DedupReviewStore, threats storage.ThreatLatticeStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("canonical")
	}
	cache, _ := lru.New[string, storage.CanonicalEntry](cacheSize)
	return &Service{store: store, reviews: reviews, threats: threats, log: log, hooks: core.NoopObservationHooks, cache: cache}
}

// ScanHashAgainstLattice checks contentHash against the known-bad-hash
// threat lattice (spec §6 persisted tables, §8 property S2), incrementing
// the row's detection counter on every call against a pre-registered
// threat. Returns (nil, nil) for a hash with no lattice entry.
func (s *Service) ScanHashAgainstLattice(ctx context.Context, contentHash string) (*storage.ThreatLatticeRow, error) {
	if s.threats == nil {
		return nil, nil
	}
	row, err := s.threats.ScanHash(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	if row != nil {
		s.log.WithField("content_hash", contentHash).WithField("times_detected", row.TimesDetected).Warn("reimported content matched threat lattice")
	}
	return row, nil
}

// WithObservationHooks configures observability callbacks for registration.
func (s *Service) WithObservationHooks(h core.ObservationHooks) {
	if h.OnStart == nil && h.OnComplete == nil {
		s.hooks = core.NoopObservationHooks
		return
	}
	s.hooks = h
}

// Register deduplicates content addressed by contentHash. If no canonical
// record exists, dtuID becomes canonical. If one exists under a different
// creator than creatorID, a dedup_reviews row is opened instead of silently
// incrementing the reference count (SPEC_FULL.md §4 supplemented feature);
// otherwise the reference count is incremented.
func (s *Service) Register(ctx context.Context, contentHash, dtuID, creatorID string) (RegisterResult, error) {
	attrs := map[string]string{"resource": contentHash}
	finish := core.StartObservation(ctx, s.hooks, attrs)

	isNew, err := s.store.UpsertCanonical(ctx, &storage.CanonicalEntry{
		ContentHash:    contentHash,
		CanonicalDTUID: dtuID,
		ReferenceCount: 1,
		OwnerCreatorID: creatorID,
	})
	if err != nil {
		finish(err)
		return RegisterResult{}, err
	}
	if isNew {
		s.cache.Remove(contentHash)
		finish(nil)
		s.log.WithField("content_hash", contentHash).WithField("dtu_id", dtuID).Info("canonical entry created")
		return RegisterResult{CanonicalDTUID: dtuID, ReferenceCount: 1, IsNew: true}, nil
	}

	existing, err := s.Lookup(ctx, contentHash)
	if err != nil {
		finish(err)
		return RegisterResult{}, err
	}

	if existing.OwnerCreatorID != creatorID && s.reviews != nil {
		if err := s.reviews.CreateDedupReview(ctx, &storage.DedupReview{
			ContentHash:     contentHash,
			ExistingDTUID:   existing.CanonicalDTUID,
			ExistingCreator: existing.OwnerCreatorID,
			NewCreator:      creatorID,
		}); err != nil {
			finish(err)
			return RegisterResult{}, err
		}
		finish(nil)
		s.log.WithField("content_hash", contentHash).Warn("cross-creator dedup review opened")
		return RegisterResult{CanonicalDTUID: existing.CanonicalDTUID, ReferenceCount: existing.ReferenceCount, IsNew: false}, nil
	}

	count, err := s.store.IncrementCanonicalReference(ctx, contentHash)
	finish(err)
	if err != nil {
		return RegisterResult{}, err
	}
	s.cache.Remove(contentHash)
	return RegisterResult{CanonicalDTUID: existing.CanonicalDTUID, ReferenceCount: count, IsNew: false}, nil
}

// Lookup returns the canonical record for a content hash, or an error if
// none exists.
func (s *Service) Lookup(ctx context.Context, contentHash string) (*storage.CanonicalEntry, error) {
	if entry, ok := s.cache.Get(contentHash); ok {
		cp := entry
		return &cp, nil
	}
	entry, err := s.store.GetCanonical(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	s.cache.Add(contentHash, *entry)
	return entry, nil
}

// ListPendingReviews returns unresolved cross-creator dedup reviews.
func (s *Service) ListPendingReviews(ctx context.Context) ([]*storage.DedupReview, error) {
	if s.reviews == nil {
		return nil, nil
	}
	return s.reviews.ListPendingDedupReviews(ctx)
}

// ResolveReview marks a pending dedup review as resolved.
func (s *Service) ResolveReview(ctx context.Context, reviewID string) error {
	if s.reviews == nil {
		return nil
	}
	return s.reviews.ResolveDedupReview(ctx, reviewID)
}
