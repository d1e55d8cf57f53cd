// Package compliance implements the Compliance Runner (spec §4.9-§4.10):
// twelve orthogonal phase checks evaluated against a lens adapter at
// registration and on a nightly audit, the constitutional invariants that
// no adapter-declared configuration may override, and lens quota
// enforcement.
package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// PhaseResult is the outcome of evaluating one phase against an adapter.
type PhaseResult struct {
	Phase   lens.Phase
	Outcome lens.CheckOutcome
	Detail  string
}

// ComplianceInput bundles the adapter record with the quest reward
// policies declared by its lens (the adapter itself carries no quest
// data; quests are content the lens registers separately).
type ComplianceInput struct {
	Adapter       *lens.Adapter
	QuestPolicies []lens.QuestRewardPolicy
}

// Report is the aggregate outcome of running all twelve phases.
type Report struct {
	Phases []PhaseResult
	Passed bool
}

func (r Report) failures() []PhaseResult {
	var out []PhaseResult
	for _, p := range r.Phases {
		if p.Outcome == lens.CheckFailed {
			out = append(out, p)
		}
	}
	return out
}

// EnforceConstitutionalInvariants corrects an adapter in place so that
// stored records can never violate the three invariants regardless of
// what the registrant declared (spec §4.9): an ISOLATED protection mode
// cannot be overridden into cross-lens visibility, and a CULTURE lens is
// always chronological-only with marketplace, citation and export
// disabled. It returns true if any field had to be corrected.
func EnforceConstitutionalInvariants(a *lens.Adapter) bool {
	corrected := false

	if a.Isolation.Mode == lens.ProtectionIsolated && a.Isolation.CrossLensVisibility {
		a.Isolation.CrossLensVisibility = false
		corrected = true
	}

	if a.Classification == lens.ClassificationCulture {
		if a.Isolation.CrossLensVisibility {
			a.Isolation.CrossLensVisibility = false
			corrected = true
		}
		if !a.Isolation.ChronologicalOnly {
			a.Isolation.ChronologicalOnly = true
			corrected = true
		}
		if a.Isolation.MarketplaceEnabled {
			a.Isolation.MarketplaceEnabled = false
			corrected = true
		}
		if a.Isolation.CitationEnabled {
			a.Isolation.CitationEnabled = false
			corrected = true
		}
		if a.Isolation.ExportEnabled {
			a.Isolation.ExportEnabled = false
			corrected = true
		}
	}

	return corrected
}

// RunPhases evaluates all twelve phases against in, skipping any phase
// that does not apply to the adapter's classification.
func RunPhases(in ComplianceInput) Report {
	a := in.Adapter
	results := make([]PhaseResult, 0, len(lens.AllPhases))
	overrodeIsolation := a.Isolation.Mode == lens.ProtectionIsolated && a.Isolation.CrossLensVisibility

	for _, phase := range lens.AllPhases {
		if !lens.Applies(phase, a.Classification) {
			results = append(results, PhaseResult{Phase: phase, Outcome: lens.CheckSkipped})
			continue
		}
		result := runPhase(phase, a, in.QuestPolicies, overrodeIsolation)
		metrics.RecordComplianceCheck(string(result.Phase), string(result.Outcome))
		results = append(results, result)
	}

	report := Report{Phases: results, Passed: true}
	for _, r := range results {
		if r.Outcome == lens.CheckFailed {
			report.Passed = false
		}
	}
	return report
}

func runPhase(phase lens.Phase, a *lens.Adapter, quests []lens.QuestRewardPolicy, overrodeIsolation bool) PhaseResult {
	pass := func(detail string) PhaseResult { return PhaseResult{Phase: phase, Outcome: lens.CheckPassed, Detail: detail} }
	fail := func(detail string) PhaseResult { return PhaseResult{Phase: phase, Outcome: lens.CheckFailed, Detail: detail} }

	switch phase {
	case lens.PhaseStructure:
		if a.ID == "" {
			return fail("adapter id is empty")
		}
		return pass("adapter id present")

	case lens.PhaseDTUBridge:
		if !a.Capabilities.DTUBridge {
			return fail("capability dtu_bridge not declared")
		}
		return pass("dtu bridge capability declared")

	case lens.PhaseDTUFileFormat:
		if !a.Capabilities.DTUFileEncode || !a.Capabilities.DTUFileDecode {
			return fail("dtu file encode/decode capabilities incomplete")
		}
		return pass("dtu file encode and decode both declared")

	case lens.PhaseFederation:
		if !a.Capabilities.DTUBridge {
			return fail("federation requires dtu bridge capability")
		}
		return pass("eligible for federation promotion")

	case lens.PhaseMarketplace:
		if a.Isolation.MarketplaceEnabled && !a.Capabilities.Marketplace {
			return fail("marketplace enabled in isolation policy but capability not declared")
		}
		return pass("marketplace declaration consistent")

	case lens.PhaseProtection:
		if overrodeIsolation {
			return fail("isolated protection mode cannot be overridden to cross-lens visible")
		}
		return pass("protection mode honored")

	case lens.PhaseCultureIsolation:
		if a.Isolation.CrossLensVisibility || !a.Isolation.ChronologicalOnly ||
			a.Isolation.MarketplaceEnabled || a.Isolation.CitationEnabled || a.Isolation.ExportEnabled {
			return fail("culture lens does not meet isolation, chronological-only, and no-marketplace/citation/export requirements")
		}
		return pass("culture isolation requirements met")

	case lens.PhaseQuests:
		for _, q := range quests {
			if q.Violates() {
				return fail("a quest rewards coin alongside xp")
			}
		}
		return pass("no quest violates the coin/xp exclusion")

	case lens.PhaseCreative:
		if !a.Capabilities.Create {
			return fail("creative lens does not declare create capability")
		}
		return pass("create capability declared")

	case lens.PhaseSearch:
		if !a.Capabilities.Render {
			return fail("render capability required to build search previews")
		}
		return pass("render capability declared")

	case lens.PhaseAPI:
		if !a.Capabilities.Validate {
			return fail("validate capability required for api surface")
		}
		return pass("validate capability declared")

	case lens.PhaseExport:
		if a.Isolation.ExportEnabled && !a.Capabilities.Export {
			return fail("export enabled in isolation policy but capability not declared")
		}
		return pass("export declaration consistent")
	}

	return pass("no check defined")
}

// asMultiError aggregates a report's phase failures into one error,
// mirroring the multierror.Append accumulation pattern used for batch
// validation elsewhere in the ecosystem.
func asMultiError(report Report) error {
	var result *multierror.Error
	for _, f := range report.failures() {
		result = multierror.Append(result, errs.ComplianceCheckFailed(string(f.Phase), f.Detail))
	}
	return result.ErrorOrNil()
}

// QuestPolicyLookup supplies the quest reward policies in force for a
// lens, used by the nightly audit where the original registration input
// is no longer in hand. A nil lookup means no quests are evaluated
// during audits.
type QuestPolicyLookup func(ctx context.Context, lensID string) ([]lens.QuestRewardPolicy, error)

// Runner registers lenses, enforces quota, and runs the nightly audit.
type Runner struct {
	store             storage.LensStore
	userLensLimit     int
	emergentLensLimit int
	quests            QuestPolicyLookup
	log               *logger.Logger
}

// New constructs a compliance Runner.
func New(store storage.LensStore, userLensLimit, emergentLensLimit int, quests QuestPolicyLookup, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("compliance")
	}
	if userLensLimit <= 0 {
		userLensLimit = 10
	}
	if emergentLensLimit <= 0 {
		emergentLensLimit = 5
	}
	return &Runner{store: store, userLensLimit: userLensLimit, emergentLensLimit: emergentLensLimit, quests: quests, log: log}
}

// RegisterLens enforces the lens quota (spec §4.10), runs the twelve
// phases, corrects any constitutional-invariant violation in place, and
// persists the adapter with status active or pending_compliance.
func (r *Runner) RegisterLens(ctx context.Context, in ComplianceInput) (Report, error) {
	a := in.Adapter

	count, err := r.store.CountLensesByOwner(ctx, a.EmergentOwned)
	if err != nil {
		return Report{}, err
	}
	limit := r.userLensLimit
	subjectType := "user"
	if a.EmergentOwned {
		limit = r.emergentLensLimit
		subjectType = "emergent"
	}
	if count >= limit {
		return Report{}, errs.LensLimitExceeded(subjectType, limit)
	}

	EnforceConstitutionalInvariants(a)
	report := RunPhases(in)

	if report.Passed {
		a.Status = lens.StatusActive
	} else {
		a.Status = lens.StatusPendingCompliance
	}

	if err := r.store.RegisterLens(ctx, a); err != nil {
		return Report{}, err
	}
	for _, p := range report.Phases {
		if err := r.store.RecordComplianceResult(ctx, a.ID, p.Phase, p.Outcome, p.Detail); err != nil {
			r.log.WithError(err).WithField("lens_id", a.ID).Warn("failed to record compliance result")
		}
	}

	if !report.Passed {
		r.log.WithField("lens_id", a.ID).WithError(asMultiError(report)).Warn("lens held in pending_compliance")
	}

	return report, nil
}

// RunNightlyAudit re-evaluates every registered lens and disables any
// that fails a check (spec §4.9). Quest policies are fetched through the
// configured lookup when available; a lens with no lookup configured is
// evaluated without quest data.
func (r *Runner) RunNightlyAudit(ctx context.Context) error {
	adapters, err := r.store.ListLenses(ctx)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, a := range adapters {
		var quests []lens.QuestRewardPolicy
		if r.quests != nil {
			quests, err = r.quests(ctx, a.ID)
			if err != nil {
				r.log.WithError(err).WithField("lens_id", a.ID).Warn("failed to fetch quest policies for audit")
			}
		}

		EnforceConstitutionalInvariants(a)
		report := RunPhases(ComplianceInput{Adapter: a, QuestPolicies: quests})

		passed := report.Passed
		if err := r.store.RecordAudit(ctx, a.ID, passed, time.Now().UTC()); err != nil {
			result = multierror.Append(result, err)
		}

		if !passed && a.Status != lens.StatusDisabled {
			if err := r.store.SetLensStatus(ctx, a.ID, lens.StatusDisabled); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			r.log.WithField("lens_id", a.ID).WithError(asMultiError(report)).Warn("lens disabled by nightly audit")
		}
	}

	return result.ErrorOrNil()
}

// Ensure Scheduler implements system.Service.
var _ system.Service = (*Scheduler)(nil)

// Scheduler drives RunNightlyAudit on a daily cron schedule pinned to a
// configured local wall-clock hour.
type Scheduler struct {
	runner *Runner
	hour   int
	log    *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler constructs a nightly-audit scheduler. hour is 0-23 local
// wall clock.
func NewScheduler(runner *Runner, hour int, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("compliance-scheduler")
	}
	return &Scheduler{runner: runner, hour: hour, log: log}
}

// Name returns the service identifier.
func (s *Scheduler) Name() string { return "compliance-nightly-audit" }

// Descriptor advertises the scheduler's architectural placement.
func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "compliance-nightly-audit",
		Domain:       "compliance",
		Layer:        core.LayerEngine,
		Capabilities: []string{"audit", "lens-lifecycle"},
	}
}

// Start schedules the nightly audit job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("0 %d * * *", s.hour)
	if _, err := c.AddFunc(spec, func() {
		if err := s.runner.RunNightlyAudit(ctx); err != nil {
			s.log.WithError(err).Warn("nightly audit completed with errors")
		}
	}); err != nil {
		return errs.Internal("failed to schedule nightly audit", err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("hour", s.hour).Info("compliance nightly audit scheduled")
	return nil
}

// Stop halts the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.cron = nil
	s.running = false
	s.log.Info("compliance nightly audit stopped")
	return nil
}
