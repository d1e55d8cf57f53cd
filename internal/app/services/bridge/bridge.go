// Package bridge implements the Event Bridge (spec §4.6): the
// classify → format → dedup → CRETI → cross-reference → dispatch pipeline
// that turns a runtime Event into at most one committed DTU.
package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/event"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// Metrics counts bridge pipeline outcomes (spec §6 Observability:
// eventsReceived, eventsClassified, eventsDroppedClassifier,
// eventsDroppedDedup, systemDtusRouted).
type Metrics struct {
	mu                      sync.Mutex
	EventsReceived          int
	EventsClassified        int
	EventsDroppedClassifier int
	EventsDroppedDedup      int
	SystemDTUsRouted        int
}

func (m *Metrics) incr(field *int) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		EventsReceived:          m.EventsReceived,
		EventsClassified:        m.EventsClassified,
		EventsDroppedClassifier: m.EventsDroppedClassifier,
		EventsDroppedDedup:      m.EventsDroppedDedup,
		SystemDTUsRouted:        m.SystemDTUsRouted,
	}
}

// crossRefBucket accumulates corroborating sources for a (domain, title,
// sourceEventType) triple (spec §4.6 stage 5).
type crossRefBucket struct {
	sources map[string]bool
}

// Service implements the Event Bridge pipeline.
type Service struct {
	knowledge storage.DTUStore
	system    storage.SystemDTUStore
	seen      storage.BridgeSeenStore

	dedupWindow time.Duration

	log   *logger.Logger
	hooks core.ObservationHooks

	extSources map[string]event.SourceClassifier

	mu        sync.Mutex
	crossRefs map[string]*crossRefBucket

	metrics *Metrics
}

// New constructs an Event Bridge service.
func New(knowledge storage.DTUStore, system storage.SystemDTUStore, seen storage.BridgeSeenStore, dedupWindow time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("bridge")
	}
	return &Service{
		knowledge:   knowledge,
		system:      system,
		seen:        seen,
		dedupWindow: dedupWindow,
		log:         log,
		hooks:       core.NoopObservationHooks,
		extSources:  make(map[string]event.SourceClassifier),
		crossRefs:   make(map[string]*crossRefBucket),
		metrics:     &Metrics{},
	}
}

// WithObservationHooks configures observability callbacks for ingest.
func (s *Service) WithObservationHooks(h core.ObservationHooks) {
	if h.OnStart == nil && h.OnComplete == nil {
		s.hooks = core.NoopObservationHooks
		return
	}
	s.hooks = h
}

// RegisterSourceClassifier installs an external source's own
// {type → classification} map, consulted when an event carries that
// source name (spec §4.6 stage 1).
func (s *Service) RegisterSourceClassifier(source string, classifier event.SourceClassifier) {
	s.mu.Lock()
	s.extSources[source] = classifier
	s.mu.Unlock()
}

// Metrics returns the bridge's live counters.
func (s *Service) Metrics() *Metrics { return s.metrics }

// classifyResult is the outcome of stage 1.
type classifyResult struct {
	domain     string
	confidence float64
	isExternal bool
	eventType  string
}

// Ingest runs e through the full pipeline, returning the committed DTU (in
// whichever store it landed) or a rejection kind.
func (s *Service) Ingest(ctx context.Context, e event.Event) (*dtu.DTU, error) {
	s.metrics.incr(&s.metrics.EventsReceived)
	metrics.RecordBridgeStage("received")
	attrs := map[string]string{"resource": e.ID}
	finish := core.StartObservation(ctx, s.hooks, attrs)

	d, err := s.ingest(ctx, e)
	finish(err)
	return d, err
}

func (s *Service) ingest(ctx context.Context, e event.Event) (*dtu.DTU, error) {
	class, err := s.classify(e)
	if err != nil {
		s.metrics.incr(&s.metrics.EventsDroppedClassifier)
		metrics.RecordBridgeStage("dropped_classifier")
		return nil, err
	}
	s.metrics.incr(&s.metrics.EventsClassified)
	metrics.RecordBridgeStage("classified")

	d, rawHash := s.format(e, class)

	if len(d.Scope.Lenses) == 0 && !event.IsSystemEvent(e.Type) {
		s.metrics.incr(&s.metrics.EventsDroppedClassifier)
		metrics.RecordBridgeStage("dropped_classifier")
		return nil, errs.NotDTUWorthy(e.Type)
	}

	if err := s.dedupe(ctx, e, rawHash); err != nil {
		s.metrics.incr(&s.metrics.EventsDroppedDedup)
		metrics.RecordBridgeStage("dropped_dedup")
		return nil, err
	}

	d.Meta.CRETIScore = s.scoreCRETI(e, class)
	s.crossReference(d, class)

	if err := d.Scope.Validate(); err != nil {
		return nil, err
	}

	if event.IsSystemEvent(e.Type) {
		sysTrue := true
		d.Scope.SystemOnly = &sysTrue
		d.Scope.NewsVisible = false
		d.Scope.LocalPull = false
		if err := s.system.PutSystemDTU(ctx, d); err != nil {
			return nil, err
		}
		s.metrics.incr(&s.metrics.SystemDTUsRouted)
		metrics.RecordBridgeStage("system_routed")
		s.log.WithField("event_type", e.Type).WithField("dtu_id", d.ID).Info("system event routed")
		return d, nil
	}

	d.Scope.NewsVisible = true
	d.Scope.LocalPull = true
	if err := s.knowledge.PutDTU(ctx, d); err != nil {
		return nil, err
	}
	s.log.WithField("event_type", e.Type).WithField("dtu_id", d.ID).WithField("domain", class.domain).Info("event bridged to knowledge store")
	return d, nil
}

// classify is stage 1.
func (s *Service) classify(e event.Event) (classifyResult, error) {
	if e.NoBridge || e.Type == "" {
		return classifyResult{}, errs.NotDTUWorthy(e.Type)
	}

	if e.Source != "" {
		s.mu.Lock()
		classifier, ok := s.extSources[e.Source]
		s.mu.Unlock()
		if ok {
			if c, ok := classifier[e.Type]; ok {
				return classifyResult{domain: c.Domain, confidence: c.Confidence, isExternal: true, eventType: e.Type}, nil
			}
		}
	}

	if event.IsSystemEvent(e.Type) {
		return classifyResult{domain: "system", confidence: 1, eventType: e.Type}, nil
	}

	c, ok := event.DTUWorthyEvents[e.Type]
	if !ok {
		return classifyResult{}, errs.NotDTUWorthy(e.Type)
	}
	return classifyResult{domain: c.Domain, confidence: c.Confidence, isExternal: e.Source != "", eventType: e.Type}, nil
}

// format is stage 2.
func (s *Service) format(e event.Event, class classifyResult) (*dtu.DTU, string) {
	now := time.Now().UTC()
	stance := "observed"
	if class.isExternal {
		stance = "reported"
	}

	lenses := event.ResolveScopeLenses(e.Type)
	if len(lenses) == 0 && class.isExternal {
		// An externally-sourced event type has no entry in the frozen
		// EVENT_SCOPE_MAP; route it by its classifier-supplied domain
		// rather than dropping it outright (SPEC_FULL.md §4 supplement).
		lenses = []string{class.domain}
	}
	rawHash := rawEventHash(e.Type, e.Data, e.ID)

	d := &dtu.DTU{
		ID:        "evtdtu_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Tier:      dtu.TierRegular,
		Scope: dtu.Scope{
			Lenses: lenses,
		},
		FederationTier: dtu.TierLocal,
		Source:         "event_bridge",
		Meta: dtu.Meta{
			EventOrigin:           true,
			SourceEventType:       e.Type,
			Confidence:            class.confidence,
			EpistemologicalStance: stance,
			RawEventHash:          rawHash,
		},
	}
	if title, ok := e.Data["title"].(string); ok && title != "" {
		d.Meta.Extra = map[string]interface{}{"title": title}
	}
	return d, rawHash
}

func rawEventHash(eventType string, data map[string]interface{}, id string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%v|%s", eventType, data, id)))
	return hex.EncodeToString(sum[:])[:16]
}

// dedupe is stage 3.
func (s *Service) dedupe(ctx context.Context, e event.Event, rawHash string) error {
	if e.Type == "dtu:event_bridged" {
		return errs.BridgeConfirmationBlocked()
	}
	if srcType, ok := e.Data["sourceEventType"]; ok && srcType == "dtu:event_bridged" {
		return errs.BridgeConfirmationBlocked()
	}

	if sourceDTUID, ok := e.Data["sourceDtuId"].(string); ok && sourceDTUID != "" {
		if source, err := s.knowledge.GetDTU(ctx, sourceDTUID); err == nil && source.Meta.EventOrigin {
			return errs.RecursionLoopBlocked(sourceDTUID)
		}
	}

	fresh, err := s.seen.MarkIfAbsent(ctx, rawHash, s.dedupWindow)
	if err != nil {
		return err
	}
	if !fresh {
		return errs.DuplicateHashBlocked(rawHash)
	}
	return nil
}

// scoreCRETI is stage 4: credibility + relevance + evidence + timeliness +
// impact, each weighted into a 0..100 composite. Internal events receive
// higher credibility than external.
func (s *Service) scoreCRETI(e event.Event, class classifyResult) float64 {
	credibility := 16.0
	if class.isExternal {
		credibility = 10.0
	}
	relevance := class.confidence * 20
	evidence := 15.0
	if class.isExternal {
		evidence = 10.0
	}

	age := time.Since(e.Timestamp)
	timeliness := 20.0
	switch {
	case age <= 5*time.Minute:
		timeliness = 20.0
	case age <= time.Hour:
		timeliness = 14.0
	case age <= 24*time.Hour:
		timeliness = 8.0
	default:
		timeliness = 2.0
	}

	impact := class.confidence * 20

	score := credibility + relevance + evidence + timeliness + impact
	if score > 100 {
		score = 100
	}
	return score
}

// crossReference is stage 5: buckets events on (domain, title,
// sourceEventType) and upgrades the stance once enough distinct sources
// corroborate.
func (s *Service) crossReference(d *dtu.DTU, class classifyResult) {
	title := ""
	if d.Meta.Extra != nil {
		if t, ok := d.Meta.Extra["title"].(string); ok {
			title = t
		}
	}
	key := class.domain + "|" + title + "|" + d.Meta.SourceEventType

	s.mu.Lock()
	bucket, ok := s.crossRefs[key]
	if !ok {
		bucket = &crossRefBucket{sources: make(map[string]bool)}
		s.crossRefs[key] = bucket
	}
	sourceKey := d.Meta.EpistemologicalStance + ":" + d.ID
	bucket.sources[sourceKey] = true
	count := len(bucket.sources)
	s.mu.Unlock()

	switch {
	case count >= 3:
		d.Meta.EpistemologicalStance = "corroborated"
		if d.Meta.Confidence < 0.95 {
			d.Meta.Confidence = 0.95
		}
	case count == 2:
		d.Meta.EpistemologicalStance = "corroborated-pending"
		if d.Meta.Confidence < 0.85 {
			d.Meta.Confidence = 0.85
		}
	}
}
