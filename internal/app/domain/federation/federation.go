// Package federation models the four-tier registry: nationals, regions,
// compute/regional instances (CRIs), entities and their transfer history,
// and the quality-gate threshold tables from spec §4.5 and §6.
package federation

import "time"

// National is a top-level federation node.
type National struct {
	ID          string
	CountryCode string
	Name        string
	CreatedAt   time.Time
}

// Region belongs to exactly one National.
type Region struct {
	ID         string
	NationalID string
	Name       string
	CreatedAt  time.Time
}

// CRIStatus is the lifecycle state of a compute/regional instance.
type CRIStatus string

const (
	CRIOnline  CRIStatus = "online"
	CRIOffline CRIStatus = "offline"
)

// CRI (Compute/Regional Instance) is a node owning a region's runtime.
type CRI struct {
	ID            string
	RegionID      string
	NationalID    string
	Status        CRIStatus
	LastHeartbeat time.Time
}

// IsStale reports whether the CRI's last heartbeat is older than threshold
// as of now.
func (c CRI) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.LastHeartbeat) > threshold
}

// Entity is an "emergent": a non-human actor with a home CRI.
type Entity struct {
	ID         string
	HomeCRIID  string
	CreatedAt  time.Time
}

// TransferHistoryEntry records one entity transfer between CRIs.
type TransferHistoryEntry struct {
	EntityID   string
	FromCRIID  string
	ToCRIID    string
	OccurredAt time.Time
}

// LocationHistoryEntry records one append to a user's or entity's
// immutable location history log.
type LocationHistoryEntry struct {
	SubjectID  string
	Field      string // "locationRegional" or "locationNational"
	Value      string
	OccurredAt time.Time
}

// Peer announces a sibling region reachable for federated queries
// (supplements spec §6's federation_peers table; see SPEC_FULL.md §4).
type Peer struct {
	RegionID     string
	PeerRegionID string
	AnnouncedAt  time.Time
}

// QualityGate holds the minimum thresholds a DTU must clear to be tagged at
// or promoted into a federation tier.
type QualityGate struct {
	MinAuthority         float64
	MinCitations         int
	MinAgeHours          int
	MinCouncilVotes      int
	MinCrossRegional     int
	AllowedInternalTiers []string
}

// GateInput is the set of facts evaluated against a QualityGate.
type GateInput struct {
	AuthorityScore       float64
	CitationCount        int
	AgeHours             int
	CouncilVotes         int
	CrossRegionalPresence int
	DTUInternalTier      string
}

// Failure describes one failed predicate.
type Failure struct {
	Gate     string
	Required interface{}
	Actual   interface{}
}

// Evaluate checks every predicate for the target tier's gate and returns
// the list of failures (empty slice means the gate passed).
func Evaluate(gate QualityGate, in GateInput) []Failure {
	var failures []Failure

	if in.AuthorityScore < gate.MinAuthority {
		failures = append(failures, Failure{"authorityScore", gate.MinAuthority, in.AuthorityScore})
	}
	if in.CitationCount < gate.MinCitations {
		failures = append(failures, Failure{"citationCount", gate.MinCitations, in.CitationCount})
	}
	if in.AgeHours < gate.MinAgeHours {
		failures = append(failures, Failure{"ageHours", gate.MinAgeHours, in.AgeHours})
	}
	if in.CouncilVotes < gate.MinCouncilVotes {
		failures = append(failures, Failure{"councilVotes", gate.MinCouncilVotes, in.CouncilVotes})
	}
	if gate.MinCrossRegional > 0 && in.CrossRegionalPresence < gate.MinCrossRegional {
		failures = append(failures, Failure{"crossRegionalPresence", gate.MinCrossRegional, in.CrossRegionalPresence})
	}
	if !tierAllowed(gate.AllowedInternalTiers, in.DTUInternalTier) {
		failures = append(failures, Failure{"dtuInternalTier", gate.AllowedInternalTiers, in.DTUInternalTier})
	}

	return failures
}

func tierAllowed(allowed []string, tier string) bool {
	for _, t := range allowed {
		if t == tier {
			return true
		}
	}
	return false
}

// EscalationRecord is one tier-transition event captured for statistics
// (supplements spec §6's federation_escalations table).
type EscalationRecord struct {
	Query      string
	FromTier   string
	ToTier     string
	OccurredAt time.Time
}
