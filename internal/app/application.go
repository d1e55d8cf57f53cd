// Package app wires the substrate's domain services into one
// lifecycle-managed application, mirroring the teacher's layered
// construction (stores → request-scoped services → background loops →
// lifecycle manager).
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/domain/dtu"
	domainfederation "github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/services/bridge"
	"github.com/concord-network/substrate/internal/app/services/canonical"
	"github.com/concord-network/substrate/internal/app/services/compliance"
	federationsvc "github.com/concord-network/substrate/internal/app/services/federation"
	"github.com/concord-network/substrate/internal/app/services/newshub"
	"github.com/concord-network/substrate/internal/app/services/resolver"
	"github.com/concord-network/substrate/internal/app/services/rights"
	"github.com/concord-network/substrate/internal/app/services/router"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/app/storage/memory"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/internal/config"
	"github.com/concord-network/substrate/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation of that concern.
type Stores struct {
	DTUs          storage.DTUStore
	SystemDTUs    storage.SystemDTUStore
	Canonical     storage.CanonicalStore
	DedupReviews  storage.DedupReviewStore
	ThreatLattice storage.ThreatLatticeStore
	Rights        storage.RightsStore
	Federation    storage.FederationStore
	Subscriptions storage.SubscriptionStore
	Lenses        storage.LensStore
	BridgeSeen    storage.BridgeSeenStore
}

// applyDefaults fills any unset store with a fresh in-memory implementation.
// Each concern gets its own instance: the memory package keeps its stores
// structurally independent rather than bundling them behind one type.
func (s *Stores) applyDefaults() {
	if s == nil {
		return
	}
	if s.DTUs == nil {
		s.DTUs = memory.NewDTUStore()
	}
	if s.SystemDTUs == nil {
		s.SystemDTUs = memory.NewSystemDTUStore()
	}
	if s.Canonical == nil {
		s.Canonical = memory.NewCanonicalStore()
	}
	if s.DedupReviews == nil {
		s.DedupReviews = memory.NewDedupReviewStore()
	}
	if s.ThreatLattice == nil {
		s.ThreatLattice = memory.NewThreatLatticeStore()
	}
	if s.Rights == nil {
		s.Rights = memory.NewRightsStore()
	}
	if s.Federation == nil {
		s.Federation = memory.NewFederationStore()
	}
	if s.Subscriptions == nil {
		s.Subscriptions = memory.NewSubscriptionStore()
	}
	if s.Lenses == nil {
		s.Lenses = memory.NewLensStore()
	}
	if s.BridgeSeen == nil {
		s.BridgeSeen = memory.NewBridgeSeenStore()
	}
}

// Option customises the application runtime.
type Option func(*builderConfig)

type builderConfig struct {
	httpClient  *http.Client
	searchFuncs map[dtu.FederationTier]resolver.SearchFunc
	quests      compliance.QuestPolicyLookup
}

// WithHTTPClient stores a shared HTTP client on the Application. A nil
// client falls back to the default 10-second timeout client. No service
// constructed by New receives this client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builderConfig) {
		b.httpClient = client
	}
}

// WithResolverSearch registers the search function the Federated Resolver
// uses at a given tier (spec §4.8). Tiers left unregistered report
// insufficient results and escalate immediately.
func WithResolverSearch(tier dtu.FederationTier, fn resolver.SearchFunc) Option {
	return func(b *builderConfig) {
		if b.searchFuncs == nil {
			b.searchFuncs = make(map[dtu.FederationTier]resolver.SearchFunc)
		}
		b.searchFuncs[tier] = fn
	}
}

// WithQuestPolicyLookup supplies the nightly compliance audit with a way to
// re-fetch a lens's quest-reward policies (spec §4.9). Omitted means the
// nightly audit re-checks every other invariant but skips the quest-reward
// constitutional check for lenses it cannot look up.
func WithQuestPolicyLookup(fn compliance.QuestPolicyLookup) Option {
	return func(b *builderConfig) {
		b.quests = fn
	}
}

func resolveOptions(opts ...Option) builderConfig {
	cfg := builderConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return cfg
}

// Application ties the substrate's domain services together and manages
// their background-loop lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bridge     *bridge.Service
	Router     *router.Service
	Canonical  *canonical.Service
	Rights     *rights.Service
	Federation *federationsvc.Service
	Newshub    *newshub.Service
	Resolver   *resolver.Service
	Compliance *compliance.Runner

	httpClient  *http.Client
	searchFuncs map[dtu.FederationTier]resolver.SearchFunc

	descriptors []core.Descriptor
}

// New builds a fully initialised application with the provided stores and
// configuration.
func New(cfg *config.Config, stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = &config.Config{}
		cfg.QualityGates = config.DefaultQualityGates()
	}
	options := resolveOptions(opts...)
	if log == nil {
		log = logger.NewDefault("app")
	}

	stores.applyDefaults()

	manager := system.NewManager()

	bridgeService := bridge.New(stores.DTUs, stores.SystemDTUs, stores.BridgeSeen, cfg.DedupWindow, log)
	bridgeService.WithObservationHooks(metrics.BridgeIngestHooks())

	routerService := router.New(stores.Subscriptions, cfg.DefaultMaxPerHour, log)

	canonicalService := canonical.New(stores.Canonical, stores.DedupReviews, stores.ThreatLattice, log)
	canonicalService.WithObservationHooks(metrics.CanonicalRegistrationHooks())

	rightsService := rights.New(stores.Rights, log)

	gates := make(map[string]domainfederation.QualityGate, len(cfg.QualityGates))
	for tier, g := range cfg.QualityGates {
		gates[tier] = domainfederation.QualityGate{
			MinAuthority:         g.MinAuthority,
			MinCitations:         g.MinCitations,
			MinAgeHours:          g.MinAgeHours,
			MinCouncilVotes:      g.MinCouncilVotes,
			MinCrossRegional:     g.MinCrossRegional,
			AllowedInternalTiers: g.AllowedInternalTiers,
		}
	}
	federationService := federationsvc.New(stores.Federation, stores.DTUs, gates, log)

	newshubService := newshub.New(stores.DTUs, newshub.Config{
		DailyAgeHours:  cfg.DailyAgeHours,
		WeeklyAgeDays:  cfg.WeeklyAgeDays,
		MonthlyAgeDays: cfg.MonthlyAgeDays,
		MinClusterSize: cfg.MinClusterSize,
		ArchivalMinAge: cfg.ArchivalMinAge,
	}, log)

	resolverService := resolver.New(federationService, log)

	complianceRunner := compliance.New(stores.Lenses, cfg.UserLensLimit, cfg.EmergentLensLimit, options.quests, log)

	for _, name := range []string{"bridge", "router", "canonical", "rights", "federation", "resolver"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	criSweeper := federationsvc.NewCRISweeper(stores.Federation, cfg.CRIHeartbeatTimeout, cfg.CRISweepInterval, log)
	rateWindowPurger := router.NewRateWindowPurger(routerService, cfg.RateWindowPurge, cfg.RateWindowPurge, log)
	compactor := newshub.NewCompactor(newshubService, cfg.CompactionTick, log)
	complianceScheduler := compliance.NewScheduler(complianceRunner, cfg.NightlyAuditHour, log)

	backgroundServices := []system.Service{criSweeper, rateWindowPurger, compactor, complianceScheduler}
	for _, svc := range backgroundServices {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	descriptors := manager.Descriptors()

	return &Application{
		manager:     manager,
		log:         log,
		Bridge:      bridgeService,
		Router:      routerService,
		Canonical:   canonicalService,
		Rights:      rightsService,
		Federation:  federationService,
		Newshub:     newshubService,
		Resolver:    resolverService,
		Compliance:  complianceRunner,
		httpClient:  options.httpClient,
		searchFuncs: options.searchFuncs,
		descriptors: descriptors,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Descriptors returns advertised service descriptors for orchestration/CLI
// introspection.
func (a *Application) Descriptors() []core.Descriptor {
	out := make([]core.Descriptor, len(a.descriptors))
	copy(out, a.descriptors)
	return out
}

// ResolveQuery dispatches to the Federated Resolver using the per-tier
// search functions supplied via WithResolverSearch. A tier with no
// registered search function reports itself insufficient, so resolution
// always escalates past it rather than failing the whole query.
func (a *Application) ResolveQuery(ctx context.Context, query string, originTier dtu.FederationTier) (*resolver.QueryResult, error) {
	return a.Resolver.ResolveQuery(ctx, query, originTier, func(ctx context.Context, query string, tier dtu.FederationTier) (resolver.SearchResult, error) {
		fn, ok := a.searchFuncs[tier]
		if !ok {
			return resolver.SearchResult{Sufficient: false}, nil
		}
		return fn(ctx, query, tier)
	})
}
