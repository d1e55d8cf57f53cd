// Package router implements the Scope Router & Subscription Model (spec
// §4.6's dispatch/notification half, §3 Subscription): per-user pull
// notifications gated by lens overlap, news filters, and an hourly rate
// budget.
package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/pkg/logger"
)

// Notification is the lightweight "available" pull-notification emitted
// after a DTU commits; it carries no payload (spec §4.6).
type Notification struct {
	Type     string
	UserID   string
	DTUID    string
	NoBridge bool
}

// NotificationType is the frozen event type used for pull notifications.
const NotificationType = "event:dtu_available"

// Metrics counts router dispatch outcomes (spec §6: routeCount,
// isMultiLens).
type Metrics struct {
	mu                 sync.Mutex
	RouteCount         int
	MultiLensRouteCount int
}

func (m *Metrics) record(lensCount int) {
	m.mu.Lock()
	m.RouteCount++
	if lensCount > 1 {
		m.MultiLensRouteCount++
	}
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{RouteCount: m.RouteCount, MultiLensRouteCount: m.MultiLensRouteCount}
}

// Service implements the Scope Router.
type Service struct {
	subs storage.SubscriptionStore
	log  *logger.Logger

	defaultMaxPerHour int

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	metrics *Metrics
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New constructs a Scope Router. defaultMaxPerHour is the budget applied
// when a subscriber's own NewsFilters.MaxPerHour is unset (<=0).
func New(subs storage.SubscriptionStore, defaultMaxPerHour int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("router")
	}
	if defaultMaxPerHour <= 0 {
		defaultMaxPerHour = 60
	}
	return &Service{
		subs:              subs,
		log:               log,
		defaultMaxPerHour: defaultMaxPerHour,
		limiters:          make(map[string]*limiterEntry),
		metrics:           &Metrics{},
	}
}

// Metrics returns the router's live counters.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Dispatch evaluates every subscriber against d and returns the
// notifications that should be delivered. A user whose rate budget is
// exhausted is skipped (not an error): the DTU itself always commits
// independently of notification delivery (spec §5 budget/backpressure).
func (s *Service) Dispatch(ctx context.Context, d *dtu.DTU) ([]Notification, error) {
	subs, err := s.subs.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var out []Notification
	for _, sub := range subs {
		if !sub.Matches(d.Scope.Lenses, d.Meta.CRETIScore, d.Meta.Confidence, d.Meta.SourceEventType) {
			continue
		}
		if !s.allow(sub) {
			s.log.WithField("user_id", sub.UserID).WithField("dtu_id", d.ID).Debug("notification skipped: rate budget exhausted")
			continue
		}
		out = append(out, Notification{
			Type:     NotificationType,
			UserID:   sub.UserID,
			DTUID:    d.ID,
			NoBridge: true,
		})
	}

	s.metrics.record(len(d.Scope.Lenses))
	metrics.RecordRouterDispatch(len(d.Scope.Lenses) > 1)
	return out, nil
}

func (s *Service) allow(sub *subscription.Subscription) bool {
	limit := sub.NewsFilters.MaxPerHour
	if limit <= 0 {
		limit = s.defaultMaxPerHour
	}

	s.mu.Lock()
	entry, ok := s.limiters[sub.UserID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(limit)), limit)}
		s.limiters[sub.UserID] = entry
	}
	entry.lastUsed = time.Now()
	limiter := entry.limiter
	s.mu.Unlock()

	return limiter.Allow()
}

// Ensure RateWindowPurger implements system.Service.
var _ system.Service = (*RateWindowPurger)(nil)

// RateWindowPurger periodically evicts per-user limiters idle longer than
// its window, bounding router memory (spec §5's rate-window purger loop).
type RateWindowPurger struct {
	router *Service
	idle   time.Duration
	tick   time.Duration
	log    *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRateWindowPurger constructs the purge loop. idle is how long an
// unused limiter is kept before eviction; tick is the poll period.
func NewRateWindowPurger(router *Service, idle, tick time.Duration, log *logger.Logger) *RateWindowPurger {
	if log == nil {
		log = logger.NewDefault("router-rate-purge")
	}
	return &RateWindowPurger{router: router, idle: idle, tick: tick, log: log}
}

// Name returns the service identifier.
func (p *RateWindowPurger) Name() string { return "router-rate-window-purge" }

// Descriptor advertises the purger's architectural placement.
func (p *RateWindowPurger) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "router-rate-window-purge",
		Domain:       "router",
		Layer:        core.LayerEngine,
		Capabilities: []string{"purge"},
	}
}

// Start begins the background purge loop.
func (p *RateWindowPurger) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.purge()
			}
		}
	}()

	p.log.Info("rate window purge started")
	return nil
}

// Stop halts the purge loop.
func (p *RateWindowPurger) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("rate window purge stopped")
	return nil
}

func (p *RateWindowPurger) purge() {
	cutoff := time.Now().Add(-p.idle)
	p.router.mu.Lock()
	defer p.router.mu.Unlock()
	for userID, entry := range p.router.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(p.router.limiters, userID)
		}
	}
}
