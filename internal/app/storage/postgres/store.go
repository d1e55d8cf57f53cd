// Package postgres implements the storage interfaces backed by
// PostgreSQL, using sqlx for the wider federation/compliance row shapes the
// way the teacher's gasbank store layer does, and lib/pq as the
// database/sql driver registration.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/federation"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
	"github.com/concord-network/substrate/internal/app/storage"
	"github.com/concord-network/substrate/internal/errs"
)

// Store implements every storage interface backed by a single PostgreSQL
// connection pool.
type Store struct {
	db *sqlx.DB
}

var (
	_ storage.DTUStore           = (*Store)(nil)
	_ storage.SystemDTUStore     = (*Store)(nil)
	_ storage.CanonicalStore     = (*Store)(nil)
	_ storage.DedupReviewStore   = (*Store)(nil)
	_ storage.RightsStore        = (*Store)(nil)
	_ storage.FederationStore    = (*Store)(nil)
	_ storage.SubscriptionStore  = (*Store)(nil)
	_ storage.LensStore          = (*Store)(nil)
	_ storage.BridgeSeenStore    = (*Store)(nil)
	_ storage.ThreatLatticeStore = (*Store)(nil)
)

// New wraps an existing *sql.DB (opened via internal/platform/database) in
// a sqlx handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// --- DTUStore (dtu_registry) -------------------------------------------------

func (s *Store) PutDTU(ctx context.Context, d *dtu.DTU) error {
	layersJSON, err := json.Marshal(d.Layers)
	if err != nil {
		return errs.Internal("marshal layers", err)
	}
	metaJSON, err := json.Marshal(d.Meta)
	if err != nil {
		return errs.Internal("marshal meta", err)
	}
	scopeJSON, err := json.Marshal(d.Scope)
	if err != nil {
		return errs.Internal("marshal scope", err)
	}
	lineageJSON, err := json.Marshal(d.Lineage)
	if err != nil {
		return errs.Internal("marshal lineage", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dtu_registry (
			id, title, creator_id, created_at, updated_at, tier, scope, federation_tier,
			location_regional, location_national, layers, meta, lineage, content_hash, source
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, updated_at = EXCLUDED.updated_at, tier = EXCLUDED.tier,
			scope = EXCLUDED.scope, federation_tier = EXCLUDED.federation_tier,
			location_regional = EXCLUDED.location_regional, location_national = EXCLUDED.location_national,
			layers = EXCLUDED.layers, meta = EXCLUDED.meta, lineage = EXCLUDED.lineage,
			content_hash = EXCLUDED.content_hash, source = EXCLUDED.source
	`, d.ID, d.Title, d.CreatorID, d.CreatedAt, d.UpdatedAt, d.Tier, scopeJSON, d.FederationTier,
		d.LocationRegional, d.LocationNational, layersJSON, metaJSON, lineageJSON, d.ContentHash, d.Source)
	return err
}

func (s *Store) GetDTU(ctx context.Context, id string) (*dtu.DTU, error) {
	row := dtuRow{}
	err := s.db.GetContext(ctx, &row, `SELECT * FROM dtu_registry WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("dtu", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) ListDTUs(ctx context.Context, ids []string) ([]*dtu.DTU, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM dtu_registry WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []dtuRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rowsToDomain(rows)
}

func (s *Store) ListDTUsOlderThan(ctx context.Context, cutoff time.Time, excludeCompressed bool) ([]*dtu.DTU, error) {
	query := `SELECT * FROM dtu_registry WHERE created_at <= $1`
	if excludeCompressed {
		query += ` AND (meta->>'Compressed')::boolean IS NOT TRUE`
	}
	var rows []dtuRow
	if err := s.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, err
	}
	return rowsToDomain(rows)
}

func (s *Store) ArchiveDTU(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dtu_archival (dtu_id, archived_at) VALUES ($1, now())
		ON CONFLICT (dtu_id) DO NOTHING
	`, id)
	if err != nil {
		return err
	}
	_ = res
	return nil
}

func (s *Store) IsDTUArchived(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM dtu_archival WHERE dtu_id = $1`, id)
	return n > 0, err
}

// --- SystemDTUStore (disjoint table from dtu_registry) -----------------------

func (s *Store) PutSystemDTU(ctx context.Context, d *dtu.DTU) error {
	metaJSON, err := json.Marshal(d.Meta)
	if err != nil {
		return errs.Internal("marshal meta", err)
	}
	scopeJSON, err := json.Marshal(d.Scope)
	if err != nil {
		return errs.Internal("marshal scope", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_dtu_registry (id, title, created_at, scope, meta, source)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Title, d.CreatedAt, scopeJSON, metaJSON, d.Source)
	return err
}

func (s *Store) GetSystemDTU(ctx context.Context, id string) (*dtu.DTU, error) {
	var row systemDTURow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM system_dtu_registry WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("system_dtu", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// --- CanonicalStore (canonical_content) --------------------------------------

func (s *Store) GetCanonical(ctx context.Context, contentHash string) (*storage.CanonicalEntry, error) {
	var e storage.CanonicalEntry
	err := s.db.GetContext(ctx, &e, `
		SELECT content_hash as "contenthash", canonical_dtu_id as "canonicaldtuid",
		       reference_count as "referencecount", owner_creator_id as "ownercreatorid"
		FROM canonical_content WHERE content_hash = $1
	`, contentHash)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("canonical_content", contentHash)
	}
	return &e, err
}

func (s *Store) UpsertCanonical(ctx context.Context, entry *storage.CanonicalEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO canonical_content (content_hash, canonical_dtu_id, reference_count, owner_creator_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (content_hash) DO NOTHING
	`, entry.ContentHash, entry.CanonicalDTUID, entry.ReferenceCount, entry.OwnerCreatorID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) IncrementCanonicalReference(ctx context.Context, contentHash string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		UPDATE canonical_content SET reference_count = reference_count + 1
		WHERE content_hash = $1
		RETURNING reference_count
	`, contentHash)
	if err == sql.ErrNoRows {
		return 0, errs.NotFound("canonical_content", contentHash)
	}
	return count, err
}

// --- DedupReviewStore (dedup_reviews) ----------------------------------------

func (s *Store) CreateDedupReview(ctx context.Context, r *storage.DedupReview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_reviews (id, content_hash, existing_dtu_id, existing_creator, new_creator, resolved, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, r.ID, r.ContentHash, r.ExistingDTUID, r.ExistingCreator, r.NewCreator, r.Resolved, r.CreatedAt)
	return err
}

func (s *Store) ListPendingDedupReviews(ctx context.Context) ([]*storage.DedupReview, error) {
	var rows []storage.DedupReview
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM dedup_reviews WHERE resolved = false`)
	if err != nil {
		return nil, err
	}
	out := make([]*storage.DedupReview, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) ResolveDedupReview(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dedup_reviews SET resolved = true WHERE id = $1 AND resolved = false
	`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ReviewAlreadyProcessed(id)
	}
	return nil
}

// --- RightsStore --------------------------------------------------------------

func (s *Store) GetRights(ctx context.Context, contentHash string) (*rights.Record, error) {
	var row rightsRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rights_ledger WHERE content_hash = $1`, contentHash)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("rights_record", contentHash)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) PutRights(ctx context.Context, r *rights.Record) error {
	revokedJSON, err := json.Marshal(r.Revoked)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rights_ledger (content_hash, creator_id, owner_id, license, commercial_allowed,
			derivative_unrestricted, derivative_max, derivative_count, revoked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (content_hash) DO UPDATE SET
			owner_id = EXCLUDED.owner_id, license = EXCLUDED.license,
			commercial_allowed = EXCLUDED.commercial_allowed,
			derivative_unrestricted = EXCLUDED.derivative_unrestricted,
			derivative_max = EXCLUDED.derivative_max, derivative_count = EXCLUDED.derivative_count,
			revoked = EXCLUDED.revoked, updated_at = EXCLUDED.updated_at
	`, r.ContentHash, r.CreatorID, r.OwnerID, r.License, r.CommercialAllowed,
		r.Derivative.Unrestricted, r.Derivative.MaxDerivatives, r.DerivativeCount, revokedJSON, r.CreatedAt, r.UpdatedAt)
	return err
}

// --- SubscriptionStore ----------------------------------------------------------

func (s *Store) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM subscriptions WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("subscription", userID)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	lensesJSON, _ := json.Marshal(sub.SubscribedLenses)
	filtersJSON, _ := json.Marshal(sub.NewsFilters)
	localJSON, _ := json.Marshal(sub.LocalSubstrate)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, subscribed_lenses, news_filters, local_substrate)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE SET
			subscribed_lenses = EXCLUDED.subscribed_lenses, news_filters = EXCLUDED.news_filters,
			local_substrate = EXCLUDED.local_substrate
	`, sub.UserID, lensesJSON, filtersJSON, localJSON)
	return err
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]*subscription.Subscription, error) {
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM subscriptions`); err != nil {
		return nil, err
	}
	out := make([]*subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// --- FederationStore ------------------------------------------------------------

func (s *Store) CreateNational(ctx context.Context, n *federation.National) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nationals (id, country_code, name, created_at) VALUES ($1,$2,$3,$4)
	`, n.ID, n.CountryCode, n.Name, n.CreatedAt)
	if isUniqueViolation(err) {
		return errs.CountryCodeExists(n.CountryCode)
	}
	return err
}

func (s *Store) GetNational(ctx context.Context, id string) (*federation.National, error) {
	var n federation.National
	err := s.db.GetContext(ctx, &n, `SELECT id, country_code as "countrycode", name, created_at as "createdat" FROM nationals WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NationalNotFound(id)
	}
	return &n, err
}

func (s *Store) GetNationalByCountryCode(ctx context.Context, code string) (*federation.National, error) {
	var n federation.National
	err := s.db.GetContext(ctx, &n, `SELECT id, country_code as "countrycode", name, created_at as "createdat" FROM nationals WHERE country_code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, errs.NationalNotFound(code)
	}
	return &n, err
}

func (s *Store) CreateRegion(ctx context.Context, r *federation.Region) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regions (id, national_id, name, created_at) VALUES ($1,$2,$3,$4)
	`, r.ID, r.NationalID, r.Name, r.CreatedAt)
	return err
}

func (s *Store) GetRegion(ctx context.Context, id string) (*federation.Region, error) {
	var r federation.Region
	err := s.db.GetContext(ctx, &r, `SELECT id, national_id as "nationalid", name, created_at as "createdat" FROM regions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("region", id)
	}
	return &r, err
}

func (s *Store) UpsertCRI(ctx context.Context, c *federation.CRI) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cri_instances (id, region_id, national_id, status, last_heartbeat)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, last_heartbeat = EXCLUDED.last_heartbeat
	`, c.ID, c.RegionID, c.NationalID, c.Status, c.LastHeartbeat)
	return err
}

func (s *Store) GetCRI(ctx context.Context, id string) (*federation.CRI, error) {
	var c federation.CRI
	err := s.db.GetContext(ctx, &c, `
		SELECT id, region_id as "regionid", national_id as "nationalid", status, last_heartbeat as "lastheartbeat"
		FROM cri_instances WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("cri", id)
	}
	return &c, err
}

func (s *Store) ListCRIs(ctx context.Context) ([]*federation.CRI, error) {
	var rows []federation.CRI
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, region_id as "regionid", national_id as "nationalid", status, last_heartbeat as "lastheartbeat"
		FROM cri_instances
	`)
	if err != nil {
		return nil, err
	}
	out := make([]*federation.CRI, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) MarkCRIStatus(ctx context.Context, id string, status federation.CRIStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cri_instances SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("cri", id)
	}
	return nil
}

func (s *Store) AppendLocationHistory(ctx context.Context, entry federation.LocationHistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_location_history (subject_id, field, value, occurred_at) VALUES ($1,$2,$3,$4)
	`, entry.SubjectID, entry.Field, entry.Value, entry.OccurredAt)
	return err
}

func (s *Store) SetEntityHomeBase(ctx context.Context, entityID, criID string) error {
	var existing string
	err := s.db.GetContext(ctx, &existing, `SELECT cri_id FROM entity_home_base WHERE entity_id = $1`, entityID)
	if err == nil && existing != "" && existing != criID {
		return errs.LocationAlreadySet("entityHomeBase")
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_home_base (entity_id, cri_id) VALUES ($1,$2)
		ON CONFLICT (entity_id) DO NOTHING
	`, entityID, criID)
	return err
}

func (s *Store) GetEntityHomeBase(ctx context.Context, entityID string) (string, error) {
	var criID string
	err := s.db.GetContext(ctx, &criID, `SELECT cri_id FROM entity_home_base WHERE entity_id = $1`, entityID)
	if err == sql.ErrNoRows {
		return "", errs.NotFound("entity_home_base", entityID)
	}
	return criID, err
}

func (s *Store) AppendTransferHistory(ctx context.Context, entry federation.TransferHistoryEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entity_transfer_history (entity_id, from_cri_id, to_cri_id, occurred_at) VALUES ($1,$2,$3,$4)
	`, entry.EntityID, entry.FromCRIID, entry.ToCRIID, entry.OccurredAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE entity_home_base SET cri_id = $2 WHERE entity_id = $1
	`, entry.EntityID, entry.ToCRIID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) AppendFederationHistory(ctx context.Context, dtuID string, fromTier, toTier dtu.FederationTier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dtu_federation_history (dtu_id, from_tier, to_tier, occurred_at) VALUES ($1,$2,$3, now())
	`, dtuID, fromTier, toTier)
	return err
}

func (s *Store) RegisterPeer(ctx context.Context, p federation.Peer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federation_peers (region_id, peer_region_id, announced_at) VALUES ($1,$2,$3)
		ON CONFLICT DO NOTHING
	`, p.RegionID, p.PeerRegionID, p.AnnouncedAt)
	return err
}

func (s *Store) ListPeers(ctx context.Context, regionID string) ([]federation.Peer, error) {
	var rows []federation.Peer
	err := s.db.SelectContext(ctx, &rows, `
		SELECT region_id as "regionid", peer_region_id as "peerregionid", announced_at as "announcedat"
		FROM federation_peers WHERE region_id = $1
	`, regionID)
	return rows, err
}

func (s *Store) AppendEscalation(ctx context.Context, rec federation.EscalationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federation_escalations (query, from_tier, to_tier, occurred_at) VALUES ($1,$2,$3,$4)
	`, rec.Query, rec.FromTier, rec.ToTier, rec.OccurredAt)
	return err
}

func (s *Store) EscalationStats(ctx context.Context, tier string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM federation_escalations WHERE to_tier = $1`, tier)
	return n, err
}

// --- LensStore ---------------------------------------------------------------

func (s *Store) RegisterLens(ctx context.Context, a *lens.Adapter) error {
	capsJSON, _ := json.Marshal(a.Capabilities)
	isoJSON, _ := json.Marshal(a.Isolation)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_registry (id, classification, capabilities, isolation, status, emergent_owned)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.Classification, capsJSON, isoJSON, a.Status, a.EmergentOwned)
	if isUniqueViolation(err) {
		return errs.AlreadyExists("lens", a.ID)
	}
	return err
}

func (s *Store) GetLens(ctx context.Context, id string) (*lens.Adapter, error) {
	var row lensRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM lens_registry WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("lens", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) ListLenses(ctx context.Context) ([]*lens.Adapter, error) {
	var rows []lensRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM lens_registry`); err != nil {
		return nil, err
	}
	out := make([]*lens.Adapter, 0, len(rows))
	for _, row := range rows {
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SetLensStatus(ctx context.Context, id string, status lens.ComplianceStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lens_registry SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("lens", id)
	}
	return nil
}

func (s *Store) CountLensesByOwner(ctx context.Context, emergentOwned bool) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM lens_registry WHERE emergent_owned = $1`, emergentOwned)
	return n, err
}

func (s *Store) RecordComplianceResult(ctx context.Context, lensID string, phase lens.Phase, outcome lens.CheckOutcome, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_compliance_results (lens_id, phase, outcome, detail, recorded_at)
		VALUES ($1,$2,$3,$4, now())
	`, lensID, phase, outcome, detail)
	return err
}

func (s *Store) RecordAudit(ctx context.Context, lensID string, passed bool, runAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_audits (lens_id, passed, run_at) VALUES ($1,$2,$3)
	`, lensID, passed, runAt)
	return err
}

func (s *Store) RecordUpgradeStatus(ctx context.Context, lensID string, version string, appliedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_upgrade_status (lens_id, version, applied_at) VALUES ($1,$2,$3)
	`, lensID, version, appliedAt)
	return err
}

// --- BridgeSeenStore (raw-event dedup window) --------------------------------

func (s *Store) MarkIfAbsent(ctx context.Context, hash string, window time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_seen_hashes (raw_event_hash, seen_at) VALUES ($1, now())
		ON CONFLICT (raw_event_hash) DO UPDATE SET seen_at = now()
		WHERE bridge_seen_hashes.seen_at < now() - $2::interval
	`, hash, window.String())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- ThreatLatticeStore (known-bad-hash reimport scan) -----------------------

func (s *Store) ScanHash(ctx context.Context, hash string) (*storage.ThreatLatticeRow, error) {
	var row storage.ThreatLatticeRow
	err := s.db.QueryRowxContext(ctx, `
		UPDATE threat_lattice SET times_detected = times_detected + 1, last_detected_at = now()
		WHERE hash = $1
		RETURNING hash, times_detected, first_detected_at, last_detected_at
	`, hash).Scan(&row.Hash, &row.TimesDetected, &row.FirstDetectedAt, &row.LastDetectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) RegisterThreat(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threat_lattice (hash, times_detected, first_detected_at, last_detected_at)
		VALUES ($1, 0, now(), now())
		ON CONFLICT (hash) DO NOTHING
	`, hash)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Name() == "unique_violation"
}
