// Package rights implements the Rights Ledger (spec §4.4): per-content-hash
// ownership, licensing, and derivative-count tracking.
package rights

import (
	"context"
	"time"

	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// Service implements the Rights Ledger.
type Service struct {
	store storage.RightsStore
	log   *logger.Logger
}

// New constructs a Rights Ledger service.
func New(store storage.RightsStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rights")
	}
	return &Service{store: store, log: log}
}

// Register creates the rights record for newly-registered content.
func (s *Service) Register(ctx context.Context, contentHash, creatorID string, license rights.License, commercialAllowed bool, derivative rights.DerivativePolicy) (*rights.Record, error) {
	now := time.Now().UTC()
	rec := &rights.Record{
		ContentHash:       contentHash,
		CreatorID:         creatorID,
		OwnerID:           creatorID,
		License:           license,
		CommercialAllowed: commercialAllowed,
		Derivative:        derivative,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.PutRights(ctx, rec); err != nil {
		return nil, err
	}
	s.log.WithField("content_hash", contentHash).WithField("creator_id", creatorID).Info("rights record registered")
	return rec, nil
}

// Get returns the rights record for a content hash.
func (s *Service) Get(ctx context.Context, contentHash string) (*rights.Record, error) {
	return s.store.GetRights(ctx, contentHash)
}

// Check evaluates whether userID may perform action against the record at
// contentHash.
func (s *Service) Check(ctx context.Context, contentHash, userID string, action rights.Action) (bool, error) {
	rec, err := s.store.GetRights(ctx, contentHash)
	if err != nil {
		return false, err
	}
	return rec.Check(userID, action), nil
}

// RegisterDerivative increments the derivative count for contentHash,
// rejecting once the policy's max is reached.
func (s *Service) RegisterDerivative(ctx context.Context, contentHash string) error {
	rec, err := s.store.GetRights(ctx, contentHash)
	if err != nil {
		return err
	}
	if !rec.Derivative.Allows(rec.DerivativeCount) {
		return errs.NotAuthorized("derivative")
	}
	rec.DerivativeCount++
	rec.UpdatedAt = time.Now().UTC()
	return s.store.PutRights(ctx, rec)
}

// TransferOwnership moves ownership of contentHash from fromUserID to
// toUserID. The current owner must match fromUserID.
func (s *Service) TransferOwnership(ctx context.Context, contentHash, fromUserID, toUserID string) error {
	rec, err := s.store.GetRights(ctx, contentHash)
	if err != nil {
		return err
	}
	if rec.OwnerID != fromUserID {
		return errs.NotAuthorized("transfer")
	}
	rec.OwnerID = toUserID
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.PutRights(ctx, rec); err != nil {
		return err
	}
	s.log.WithField("content_hash", contentHash).WithField("to", toUserID).Info("ownership transferred")
	return nil
}

// Revoke marks userID as revoked against the content hash, blocking their
// continued access under Check.
func (s *Service) Revoke(ctx context.Context, contentHash, userID string) error {
	rec, err := s.store.GetRights(ctx, contentHash)
	if err != nil {
		return err
	}
	if rec.Revoked == nil {
		rec.Revoked = make(map[string]bool)
	}
	rec.Revoked[userID] = true
	rec.UpdatedAt = time.Now().UTC()
	return s.store.PutRights(ctx, rec)
}
