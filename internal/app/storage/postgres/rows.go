package postgres

import (
	"encoding/json"
	"time"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
	"github.com/concord-network/substrate/internal/errs"
)

// dtuRow is the flat scan target for dtu_registry; JSON columns hold the
// nested Layers/Meta/Scope/Lineage structs the same way the teacher's
// gasbank rows JSON-encode Metadata.
type dtuRow struct {
	ID               string    `db:"id"`
	Title            string    `db:"title"`
	CreatorID        string    `db:"creator_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
	Tier             string    `db:"tier"`
	Scope            []byte    `db:"scope"`
	FederationTier   string    `db:"federation_tier"`
	LocationRegional string    `db:"location_regional"`
	LocationNational string    `db:"location_national"`
	Layers           []byte    `db:"layers"`
	Meta             []byte    `db:"meta"`
	Lineage          []byte    `db:"lineage"`
	ContentHash      string    `db:"content_hash"`
	Source           string    `db:"source"`
}

func (r dtuRow) toDomain() (*dtu.DTU, error) {
	d := &dtu.DTU{
		ID:               r.ID,
		Title:            r.Title,
		CreatorID:        r.CreatorID,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Tier:             dtu.InternalTier(r.Tier),
		FederationTier:   dtu.FederationTier(r.FederationTier),
		LocationRegional: r.LocationRegional,
		LocationNational: r.LocationNational,
		ContentHash:      r.ContentHash,
		Source:           r.Source,
	}
	if len(r.Scope) > 0 {
		if err := json.Unmarshal(r.Scope, &d.Scope); err != nil {
			return nil, errs.Internal("unmarshal scope", err)
		}
	}
	if len(r.Layers) > 0 {
		if err := json.Unmarshal(r.Layers, &d.Layers); err != nil {
			return nil, errs.Internal("unmarshal layers", err)
		}
	}
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &d.Meta); err != nil {
			return nil, errs.Internal("unmarshal meta", err)
		}
	}
	if len(r.Lineage) > 0 {
		if err := json.Unmarshal(r.Lineage, &d.Lineage); err != nil {
			return nil, errs.Internal("unmarshal lineage", err)
		}
	}
	return d, nil
}

func rowsToDomain(rows []dtuRow) ([]*dtu.DTU, error) {
	out := make([]*dtu.DTU, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

type systemDTURow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	Scope     []byte    `db:"scope"`
	Meta      []byte    `db:"meta"`
	Source    string    `db:"source"`
}

func (r systemDTURow) toDomain() (*dtu.DTU, error) {
	d := &dtu.DTU{ID: r.ID, Title: r.Title, CreatedAt: r.CreatedAt, Source: r.Source}
	if len(r.Scope) > 0 {
		if err := json.Unmarshal(r.Scope, &d.Scope); err != nil {
			return nil, errs.Internal("unmarshal scope", err)
		}
	}
	if len(r.Meta) > 0 {
		if err := json.Unmarshal(r.Meta, &d.Meta); err != nil {
			return nil, errs.Internal("unmarshal meta", err)
		}
	}
	return d, nil
}

type rightsRow struct {
	ContentHash            string    `db:"content_hash"`
	CreatorID              string    `db:"creator_id"`
	OwnerID                string    `db:"owner_id"`
	License                string    `db:"license"`
	CommercialAllowed      bool      `db:"commercial_allowed"`
	DerivativeUnrestricted bool      `db:"derivative_unrestricted"`
	DerivativeMax          int       `db:"derivative_max"`
	DerivativeCount        int       `db:"derivative_count"`
	Revoked                []byte    `db:"revoked"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

func (r rightsRow) toDomain() (*rights.Record, error) {
	rec := &rights.Record{
		ContentHash:       r.ContentHash,
		CreatorID:         r.CreatorID,
		OwnerID:           r.OwnerID,
		License:           rights.License(r.License),
		CommercialAllowed: r.CommercialAllowed,
		Derivative: rights.DerivativePolicy{
			Unrestricted:   r.DerivativeUnrestricted,
			MaxDerivatives: r.DerivativeMax,
		},
		DerivativeCount: r.DerivativeCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Revoked) > 0 {
		if err := json.Unmarshal(r.Revoked, &rec.Revoked); err != nil {
			return nil, errs.Internal("unmarshal revoked", err)
		}
	}
	return rec, nil
}

type subscriptionRow struct {
	UserID           string `db:"user_id"`
	SubscribedLenses []byte `db:"subscribed_lenses"`
	NewsFilters      []byte `db:"news_filters"`
	LocalSubstrate   []byte `db:"local_substrate"`
}

func (r subscriptionRow) toDomain() (*subscription.Subscription, error) {
	sub := &subscription.Subscription{UserID: r.UserID}
	if len(r.SubscribedLenses) > 0 {
		if err := json.Unmarshal(r.SubscribedLenses, &sub.SubscribedLenses); err != nil {
			return nil, errs.Internal("unmarshal subscribed_lenses", err)
		}
	}
	if len(r.NewsFilters) > 0 {
		if err := json.Unmarshal(r.NewsFilters, &sub.NewsFilters); err != nil {
			return nil, errs.Internal("unmarshal news_filters", err)
		}
	}
	if len(r.LocalSubstrate) > 0 {
		if err := json.Unmarshal(r.LocalSubstrate, &sub.LocalSubstrate); err != nil {
			return nil, errs.Internal("unmarshal local_substrate", err)
		}
	}
	return sub, nil
}

type lensRow struct {
	ID             string `db:"id"`
	Classification string `db:"classification"`
	Capabilities   []byte `db:"capabilities"`
	Isolation      []byte `db:"isolation"`
	Status         string `db:"status"`
	EmergentOwned  bool   `db:"emergent_owned"`
}

func (r lensRow) toDomain() (*lens.Adapter, error) {
	a := &lens.Adapter{
		ID:             r.ID,
		Classification: lens.Classification(r.Classification),
		Status:         lens.ComplianceStatus(r.Status),
		EmergentOwned:  r.EmergentOwned,
	}
	if len(r.Capabilities) > 0 {
		if err := json.Unmarshal(r.Capabilities, &a.Capabilities); err != nil {
			return nil, errs.Internal("unmarshal capabilities", err)
		}
	}
	if len(r.Isolation) > 0 {
		if err := json.Unmarshal(r.Isolation, &a.Isolation); err != nil {
			return nil, errs.Internal("unmarshal isolation", err)
		}
	}
	return a, nil
}
