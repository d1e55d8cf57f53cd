// Package newshub implements the News Hub (spec §4.7): periodic
// compaction of aging event DTUs into Mega and Hyper aggregates, and
// decompression of an aggregate back into its child summaries.
package newshub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/concord-network/substrate/internal/app/core/service"
	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/internal/errs"
	"github.com/concord-network/substrate/pkg/logger"
)

// Config holds the compaction thresholds (spec §4.7, §6).
type Config struct {
	DailyAgeHours  int
	WeeklyAgeDays  int
	MonthlyAgeDays int
	MinClusterSize int
	ArchivalMinAge time.Duration
}

// Service implements the News Hub compaction and decompression logic.
type Service struct {
	store storage.DTUStore
	cfg   Config
	log   *logger.Logger
}

// New constructs a News Hub service.
func New(store storage.DTUStore, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("newshub")
	}
	if cfg.MinClusterSize < 1 {
		cfg.MinClusterSize = 3
	}
	return &Service{store: store, cfg: cfg, log: log}
}

// CompactionResult summarizes one compaction cycle.
type CompactionResult struct {
	MegasCreated  int
	HypersCreated int
	Archived      int
}

// RunCompaction executes one full cycle: daily event→Mega clustering,
// weekly and monthly Mega→Hyper clustering, then an archival sweep over
// children old enough and already compressed. Per-bucket failures are
// logged and skipped rather than aborting the cycle (spec §7).
func (s *Service) RunCompaction(ctx context.Context) CompactionResult {
	var result CompactionResult

	now := time.Now().UTC()

	megas, err := s.compactTier(ctx, dtu.TierRegular, dtu.TierMega, now.Add(-time.Duration(s.cfg.DailyAgeHours)*time.Hour), dayBucket)
	if err != nil {
		s.log.WithError(err).Warn("daily compaction failed")
	}
	result.MegasCreated += megas

	hypersWeekly, err := s.compactTier(ctx, dtu.TierMega, dtu.TierHyper, now.Add(-time.Duration(s.cfg.WeeklyAgeDays)*24*time.Hour), weekBucket)
	if err != nil {
		s.log.WithError(err).Warn("weekly compaction failed")
	}
	result.HypersCreated += hypersWeekly

	hypersMonthly, err := s.compactTier(ctx, dtu.TierMega, dtu.TierHyper, now.Add(-time.Duration(s.cfg.MonthlyAgeDays)*24*time.Hour), monthBucket)
	if err != nil {
		s.log.WithError(err).Warn("monthly compaction failed")
	}
	result.HypersCreated += hypersMonthly

	if s.cfg.ArchivalMinAge > 0 {
		result.Archived = s.runArchival(ctx, now.Add(-s.cfg.ArchivalMinAge))
	}

	return result
}

type bucketFunc func(time.Time) string

func dayBucket(t time.Time) string { return t.Format("2006-01-02") }
func weekBucket(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}
func monthBucket(t time.Time) string { return t.Format("2006-01") }

// compactTier clusters uncompressed DTUs at sourceTier older than cutoff by
// (bucket(createdAt), domain), creating a targetTier aggregate for every
// cluster that reaches MinClusterSize.
func (s *Service) compactTier(ctx context.Context, sourceTier, targetTier dtu.InternalTier, cutoff time.Time, bucket bucketFunc) (int, error) {
	candidates, err := s.store.ListDTUsOlderThan(ctx, cutoff, true)
	if err != nil {
		return 0, err
	}

	type clusterKey struct {
		bucket string
		domain string
	}
	clusters := make(map[clusterKey][]*dtu.DTU)
	for _, d := range candidates {
		if d.Tier != sourceTier {
			continue
		}
		domain := domainOf(d)
		key := clusterKey{bucket: bucket(d.CreatedAt), domain: domain}
		clusters[key] = append(clusters[key], d)
	}

	created := 0
	for key, members := range clusters {
		if len(members) < s.cfg.MinClusterSize {
			continue
		}
		if err := s.createAggregate(ctx, targetTier, key.domain, members); err != nil {
			s.log.WithError(err).WithField("bucket", key.bucket).WithField("domain", key.domain).Warn("aggregate creation failed, skipping bucket")
			continue
		}
		tierLabel := "mega"
		if targetTier == dtu.TierHyper {
			tierLabel = "hyper"
		}
		metrics.RecordNewshubCompaction(tierLabel)
		created++
	}
	return created, nil
}

func domainOf(d *dtu.DTU) string {
	if d.Meta.Extra != nil {
		if v, ok := d.Meta.Extra["domain"].(string); ok {
			return v
		}
	}
	return ""
}

func (s *Service) createAggregate(ctx context.Context, tier dtu.InternalTier, domain string, members []*dtu.DTU) error {
	now := time.Now().UTC()
	prefix := "megadtu_"
	if tier == dtu.TierHyper {
		prefix = "hyperdtu_"
	}

	childIDs := make([]string, len(members))
	for i, m := range members {
		childIDs[i] = m.ID
	}

	aggregate := &dtu.DTU{
		ID:             prefix + uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Tier:           tier,
		Scope:          dtu.Scope{NewsVisible: true, LocalPull: true},
		FederationTier: dtu.TierLocal,
		Source:         "news_hub",
		Meta: dtu.Meta{
			Extra: map[string]interface{}{
				"domain":    domain,
				"childCount": len(childIDs),
				"childIds":  childIDs,
			},
		},
	}
	if err := aggregate.Scope.Validate(); err != nil {
		return err
	}
	if err := s.store.PutDTU(ctx, aggregate); err != nil {
		return err
	}

	for _, m := range members {
		m.Meta.Compressed = true
		m.Meta.CompressedInto = aggregate.ID
		if err := s.store.PutDTU(ctx, m); err != nil {
			return err
		}
	}

	s.log.WithField("aggregate_id", aggregate.ID).WithField("tier", tier).WithField("child_count", len(childIDs)).Info("news aggregate created")
	return nil
}

// runArchival archives compressed DTUs created at or before cutoff, leaving
// a retrievable stub for DecompressNewsDTU (spec §9 open question: archival
// is an implementation choice, not a deletion).
func (s *Service) runArchival(ctx context.Context, cutoff time.Time) int {
	candidates, err := s.store.ListDTUsOlderThan(ctx, cutoff, false)
	if err != nil {
		s.log.WithError(err).Warn("archival sweep failed to list candidates")
		return 0
	}
	archived := 0
	for _, d := range candidates {
		if !d.Meta.Compressed {
			continue
		}
		already, err := s.store.IsDTUArchived(ctx, d.ID)
		if err != nil || already {
			continue
		}
		if err := s.store.ArchiveDTU(ctx, d.ID); err != nil {
			s.log.WithError(err).WithField("dtu_id", d.ID).Warn("failed to archive compressed child")
			continue
		}
		archived++
	}
	return archived
}

// ChildSummary is one entry of a decompression result.
type ChildSummary struct {
	ID            string
	Summary       string
	CanDecompress bool
	Archived      bool
}

// DecompressResult is the output of DecompressNewsDTU.
type DecompressResult struct {
	Parent   *dtu.DTU
	Children []ChildSummary
}

// DecompressNewsDTU returns the parent aggregate and a summary of each
// child, including archived children as stub records.
func (s *Service) DecompressNewsDTU(ctx context.Context, megaID string) (*DecompressResult, error) {
	parent, err := s.store.GetDTU(ctx, megaID)
	if err != nil {
		return nil, err
	}
	if parent.Tier != dtu.TierMega && parent.Tier != dtu.TierHyper {
		return nil, errs.InvalidInput("megaId", "dtu is not a Mega or Hyper aggregate")
	}

	var childIDsRaw []string
	switch ids := parent.Meta.Extra["childIds"].(type) {
	case []string:
		childIDsRaw = ids
	case []interface{}:
		for _, v := range ids {
			if id, ok := v.(string); ok {
				childIDsRaw = append(childIDsRaw, id)
			}
		}
	}
	children := make([]ChildSummary, 0, len(childIDsRaw))
	for _, id := range childIDsRaw {
		archived, err := s.store.IsDTUArchived(ctx, id)
		if err == nil && archived {
			children = append(children, ChildSummary{ID: id, Archived: true})
			continue
		}
		child, err := s.store.GetDTU(ctx, id)
		if err != nil {
			children = append(children, ChildSummary{ID: id, Archived: true})
			continue
		}
		summary := ""
		if child.Layers.Human != nil {
			summary = child.Layers.Human.Summary
		}
		children = append(children, ChildSummary{
			ID:            id,
			Summary:       summary,
			CanDecompress: child.Tier == dtu.TierMega || child.Tier == dtu.TierHyper,
		})
	}

	return &DecompressResult{Parent: parent, Children: children}, nil
}

// Ensure Compactor implements system.Service.
var _ system.Service = (*Compactor)(nil)

// Compactor runs RunCompaction on a fixed tick (spec §5's news-compaction
// loop), using the teacher's ticker-with-reentry-guard shape.
type Compactor struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewCompactor constructs a lifecycle-managed compaction loop.
func NewCompactor(service *Service, interval time.Duration, log *logger.Logger) *Compactor {
	if log == nil {
		log = logger.NewDefault("newshub-compactor")
	}
	return &Compactor{service: service, interval: interval, log: log}
}

// Name returns the service identifier.
func (c *Compactor) Name() string { return "newshub-compaction" }

// Descriptor advertises the compactor's architectural placement.
func (c *Compactor) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "newshub-compaction",
		Domain:       "newshub",
		Layer:        core.LayerEngine,
		Capabilities: []string{"compaction", "archival"},
	}
}

// Start begins the background compaction loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				result := c.service.RunCompaction(runCtx)
				c.log.WithField("megas_created", result.MegasCreated).
					WithField("hypers_created", result.HypersCreated).
					WithField("archived", result.Archived).
					Info("compaction cycle complete")
			}
		}
	}()

	c.log.Info("news hub compaction started")
	return nil
}

// Stop halts the compaction loop.
func (c *Compactor) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("news hub compaction stopped")
	return nil
}
