// Package dtu defines the Distillation Transfer Unit: the substrate's
// atomic knowledge object, its scope flags, payload layers, and the
// federation/internal tier rankings that govern promotion.
package dtu

import (
	"time"

	"github.com/concord-network/substrate/internal/errs"
)

// InternalTier is the content lifecycle ranking, orthogonal to FederationTier.
type InternalTier string

const (
	TierShadow  InternalTier = "shadow"
	TierRegular InternalTier = "regular"
	TierMega    InternalTier = "mega"
	TierHyper   InternalTier = "hyper"
)

// FederationTier is the geographic/authority visibility level.
type FederationTier string

const (
	TierLocal    FederationTier = "local"
	TierRegional FederationTier = "regional"
	TierNational FederationTier = "national"
	TierGlobal   FederationTier = "global"
)

// federationRank orders tiers for the monotonicity invariant (spec §3).
var federationRank = map[FederationTier]int{
	TierLocal:    0,
	TierRegional: 1,
	TierNational: 2,
	TierGlobal:   3,
}

// Rank returns the ordinal rank of a federation tier, used to enforce
// "promotion only increases rank".
func Rank(t FederationTier) int {
	return federationRank[t]
}

// Scope is the record of booleans that governs where and how a DTU may be
// observed. Exactly one instance per DTU (spec §3).
type Scope struct {
	Lenses      []string
	Global      bool
	LocalPush   bool
	LocalPull   bool
	NewsVisible bool
	SystemOnly  *bool
}

// Validate enforces the pull-only distribution invariant: localPush and
// global must always be false.
func (s Scope) Validate() error {
	if s.LocalPush {
		return errs.InvalidInput("scope.localPush", "must always be false (pull-only distribution)")
	}
	if s.Global {
		return errs.InvalidInput("scope.global", "must always be false (pull-only distribution)")
	}
	return nil
}

// IsSystemOnly reports whether this scope routes to the system-only store.
func (s Scope) IsSystemOnly() bool {
	return s.SystemOnly != nil && *s.SystemOnly
}

// HumanLayer is free-form summary/title prose.
type HumanLayer struct {
	Summary string
	Title   string
}

// CoreLayer holds structured claims, definitions, invariants.
type CoreLayer struct {
	Claims      []string
	Definitions map[string]string
	Invariants  []string
}

// MachineLayer holds typed metadata for programmatic consumers.
type MachineLayer struct {
	Fields map[string]interface{}
}

// ArtifactLayer holds opaque bytes plus their MIME type.
type ArtifactLayer struct {
	MimeType string
	Data     []byte
}

// Layers bundles the four optional payload sections.
type Layers struct {
	Human    *HumanLayer
	Core     *CoreLayer
	Machine  *MachineLayer
	Artifact *ArtifactLayer
}

// Bitfield computes the layer presence bitfield per spec §6: bit0 human,
// bit1 core, bit2 machine, bit3 artifact.
func (l Layers) Bitfield() byte {
	var b byte
	if l.Human != nil {
		b |= 1 << 0
	}
	if l.Core != nil {
		b |= 1 << 1
	}
	if l.Machine != nil {
		b |= 1 << 2
	}
	if l.Artifact != nil {
		b |= 1 << 3
	}
	return b
}

// Meta carries event-bridge and scoring metadata.
type Meta struct {
	EventOrigin           bool
	SourceEventType       string
	Confidence            float64
	EpistemologicalStance string
	CRETIScore            float64
	RawEventHash          string
	Compressed            bool
	CompressedInto        string
	Extra                 map[string]interface{}
}

// Lineage records parent DTU ids and the derivative relationship type.
type Lineage struct {
	ParentIDs      []string
	DerivativeType string
}

// DTU is the atomic knowledge object.
type DTU struct {
	ID        string
	Title     string
	CreatorID string
	CreatedAt time.Time
	UpdatedAt time.Time

	Tier           InternalTier
	Scope          Scope
	FederationTier FederationTier

	LocationRegional string
	LocationNational string

	Layers Layers
	Meta   Meta

	Lineage Lineage

	ContentHash string
	Source      string
}

// Promote validates the federation monotonicity invariant and, if the
// target tier outranks the current one, returns the tier to apply. Callers
// persist the result through the storage layer; this function is pure.
func Promote(current FederationTier, target FederationTier) (FederationTier, error) {
	if Rank(target) <= Rank(current) {
		return current, errs.CannotDemote(string(current), string(target))
	}
	return target, nil
}

// SetLocation validates the location-immutability invariant: once a
// location field is non-empty it cannot be overwritten with a different
// value.
func SetLocation(existing, next string) (string, error) {
	if existing != "" && existing != next {
		return existing, errs.LocationAlreadySet("location")
	}
	return next, nil
}
