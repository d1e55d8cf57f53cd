// Package lens defines the lens adapter record the Compliance Runner
// validates, its classification enum, isolation policy, and the twelve
// compliance phases (spec §4.9, §9).
package lens

// Classification is the adapter's content-domain tag.
type Classification string

const (
	ClassificationKnowledge Classification = "KNOWLEDGE"
	ClassificationCreative  Classification = "CREATIVE"
	ClassificationSocial    Classification = "SOCIAL"
	ClassificationCulture   Classification = "CULTURE"
	ClassificationUtility   Classification = "UTILITY"
	ClassificationHybrid    Classification = "HYBRID"
)

// ProtectionMode governs how visible a lens's content is across lenses.
type ProtectionMode string

const (
	ProtectionOpen     ProtectionMode = "open"
	ProtectionIsolated ProtectionMode = "isolated"
)

// Isolation declares a lens's cross-lens visibility and export posture.
// CULTURE lenses must set CrossLensVisibility=false, ChronologicalOnly=true,
// and disable marketplace/citation/export (spec §4.9 constitutional
// invariant).
type Isolation struct {
	Mode               ProtectionMode
	CrossLensVisibility bool
	ChronologicalOnly  bool
	MarketplaceEnabled bool
	CitationEnabled    bool
	ExportEnabled      bool
}

// Capabilities is the set of function references a lens adapter supplies.
// Capabilities, not subtype inheritance, is the dispatch mechanism (spec §9).
type Capabilities struct {
	Render         bool
	Create         bool
	Validate       bool
	DTUBridge      bool
	DTUFileEncode  bool
	DTUFileDecode  bool
	Marketplace    bool
	Export         bool
}

// QuestRewardPolicy captures a lens's quest reward shape; a quest rewarding
// both coin and XP violates the "no quest rewards coin alongside XP"
// constitutional invariant.
type QuestRewardPolicy struct {
	RewardsCoin bool
	RewardsXP   bool
}

// Violates reports whether this reward policy breaks the coin/XP exclusion
// invariant.
func (q QuestRewardPolicy) Violates() bool {
	return q.RewardsCoin && q.RewardsXP
}

// ComplianceStatus is the lens's current standing with the runner.
type ComplianceStatus string

const (
	StatusActive           ComplianceStatus = "active"
	StatusPendingCompliance ComplianceStatus = "pending_compliance"
	StatusDisabled          ComplianceStatus = "disabled"
)

// Adapter is an external registration describing how a lens participates
// in the substrate.
type Adapter struct {
	ID             string
	Classification Classification
	Capabilities   Capabilities
	Isolation      Isolation
	Status         ComplianceStatus
	EmergentOwned  bool // true if owned by a non-human creator, for quota (§4.10)
}

// Phase is one of the twelve orthogonal compliance checks (spec §4.9).
type Phase string

const (
	PhaseStructure        Phase = "structure"
	PhaseDTUBridge        Phase = "dtu_bridge"
	PhaseDTUFileFormat    Phase = "dtu_file_format"
	PhaseFederation       Phase = "federation"
	PhaseMarketplace      Phase = "marketplace"
	PhaseProtection       Phase = "protection"
	PhaseCultureIsolation Phase = "culture_isolation"
	PhaseQuests           Phase = "quests"
	PhaseCreative         Phase = "creative"
	PhaseSearch           Phase = "search"
	PhaseAPI              Phase = "api"
	PhaseExport           Phase = "export"
)

// AllPhases lists all twelve phases in the fixed execution order.
var AllPhases = []Phase{
	PhaseStructure,
	PhaseDTUBridge,
	PhaseDTUFileFormat,
	PhaseFederation,
	PhaseMarketplace,
	PhaseProtection,
	PhaseCultureIsolation,
	PhaseQuests,
	PhaseCreative,
	PhaseSearch,
	PhaseAPI,
	PhaseExport,
}

// AppliesTo maps each phase to the classifications it is evaluated against.
// Phases not applicable to a lens's classification are marked "skipped"
// rather than evaluated.
var AppliesTo = map[Phase][]Classification{
	PhaseStructure:        {ClassificationKnowledge, ClassificationCreative, ClassificationSocial, ClassificationCulture, ClassificationUtility, ClassificationHybrid},
	PhaseDTUBridge:        {ClassificationKnowledge, ClassificationCreative, ClassificationSocial, ClassificationCulture, ClassificationUtility, ClassificationHybrid},
	PhaseDTUFileFormat:    {ClassificationKnowledge, ClassificationCreative, ClassificationHybrid},
	PhaseFederation:       {ClassificationKnowledge, ClassificationSocial, ClassificationHybrid},
	PhaseMarketplace:      {ClassificationCreative, ClassificationUtility, ClassificationHybrid},
	PhaseProtection:       {ClassificationKnowledge, ClassificationCreative, ClassificationSocial, ClassificationCulture, ClassificationUtility, ClassificationHybrid},
	PhaseCultureIsolation: {ClassificationCulture},
	PhaseQuests:           {ClassificationSocial, ClassificationUtility, ClassificationHybrid},
	PhaseCreative:         {ClassificationCreative, ClassificationHybrid},
	PhaseSearch:           {ClassificationKnowledge, ClassificationCreative, ClassificationSocial, ClassificationUtility, ClassificationHybrid},
	PhaseAPI:              {ClassificationKnowledge, ClassificationCreative, ClassificationSocial, ClassificationCulture, ClassificationUtility, ClassificationHybrid},
	PhaseExport:           {ClassificationKnowledge, ClassificationCreative, ClassificationHybrid},
}

// Applies reports whether phase applies to the given classification.
func Applies(phase Phase, c Classification) bool {
	for _, applicable := range AppliesTo[phase] {
		if applicable == c {
			return true
		}
	}
	return false
}

// CheckOutcome is the result of one deterministic check within a phase.
type CheckOutcome string

const (
	CheckPassed  CheckOutcome = "passed"
	CheckFailed  CheckOutcome = "failed"
	CheckSkipped CheckOutcome = "skipped"
)
