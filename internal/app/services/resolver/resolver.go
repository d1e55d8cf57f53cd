// Package resolver implements the Federated Resolver (spec §4.8): a
// tier-walking query resolution that escalates from a user's origin tier
// upward until a tier's search function reports sufficiency.
package resolver

import (
	"context"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// tierOrder is the fixed escalation path (spec §4.8).
var tierOrder = []dtu.FederationTier{dtu.TierLocal, dtu.TierRegional, dtu.TierNational, dtu.TierGlobal}

// SearchResult is what a tier's search function reports.
type SearchResult struct {
	Sufficient bool
	Results    interface{}
}

// SearchFunc queries one federation tier for a resolution candidate.
type SearchFunc func(ctx context.Context, query string, tier dtu.FederationTier) (SearchResult, error)

// EscalationRecorder persists one tier-transition for statistics
// (wired to internal/app/services/federation.RecordEscalation).
type EscalationRecorder interface {
	RecordEscalation(ctx context.Context, query, fromTier, toTier string) error
}

// QueryResult is the outcome of ResolveQuery.
type QueryResult struct {
	ResolvedAt   dtu.FederationTier
	Results      interface{}
	Ephemeral    bool
	ExpiresAfter string
	Persisted    bool
}

// Service implements the Federated Resolver.
type Service struct {
	escalations EscalationRecorder
	log         *logger.Logger
}

// New constructs a Federated Resolver. escalations may be nil to skip
// escalation-stat recording.
func New(escalations EscalationRecorder, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("resolver")
	}
	return &Service{escalations: escalations, log: log}
}

// ResolveQuery walks {local, regional, national, global} upward from
// originTier, invoking searchFn at each until one reports sufficiency.
// Results found above the origin tier are ephemeral/session-scoped;
// results at the origin tier are persisted in the caller's local
// substrate. Every tier transition is recorded as an escalation.
func (s *Service) ResolveQuery(ctx context.Context, query string, originTier dtu.FederationTier, searchFn SearchFunc) (*QueryResult, error) {
	startIdx := indexOf(originTier)
	if startIdx < 0 {
		return nil, errs.InvalidInput("originTier", "unknown federation tier")
	}

	for i := startIdx; i < len(tierOrder); i++ {
		tier := tierOrder[i]
		result, err := searchFn(ctx, query, tier)
		if err != nil {
			return nil, err
		}
		if result.Sufficient {
			resolved := &QueryResult{
				ResolvedAt: tier,
				Results:    result.Results,
			}
			if tier != originTier {
				resolved.Ephemeral = true
				resolved.ExpiresAfter = "session"
				resolved.Persisted = false
			} else {
				resolved.Persisted = true
			}
			return resolved, nil
		}

		if i+1 < len(tierOrder) {
			from, to := tier, tierOrder[i+1]
			if s.escalations != nil {
				if err := s.escalations.RecordEscalation(ctx, query, string(from), string(to)); err != nil {
					s.log.WithError(err).WithField("query", query).Warn("failed to record escalation")
				}
			}
			s.log.WithField("query", query).WithField("from", from).WithField("to", to).Info("query escalated")
		}
	}

	return nil, errs.Exhausted(query)
}

func indexOf(tier dtu.FederationTier) int {
	for i, t := range tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}
