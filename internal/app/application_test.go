package app

import (
	"context"
	"testing"
	"time"

	"github.com/concord-network/substrate/internal/app/domain/event"
	"github.com/concord-network/substrate/internal/app/domain/rights"
)

func TestApplicationLifecycle(t *testing.T) {
	application, err := New(nil, NewMemoryStoresForTest(), nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := application.Bridge.Ingest(ctx, event.Event{
		ID:        "evt-1",
		Type:      "news:politics",
		Data:      map[string]interface{}{"title": "council vote result"},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if d == nil {
		t.Fatal("expected a DTU worthy event to produce a DTU")
	}

	if _, err := application.Canonical.Register(ctx, d.ContentHash, d.ID, d.CreatorID); err != nil {
		t.Fatalf("register canonical: %v", err)
	}

	if _, err := application.Rights.Register(ctx, d.ContentHash, d.CreatorID, rights.LicenseAllRightsReserved, false, rights.DerivativePolicy{MaxDerivatives: 1}); err != nil {
		t.Fatalf("register rights: %v", err)
	}

	descriptors := application.Descriptors()
	if len(descriptors) == 0 {
		t.Fatal("expected at least one advertised descriptor")
	}

	if err := application.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Stop must be idempotent.
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestApplicationRejectsLateRegistration(t *testing.T) {
	application, err := New(nil, NewMemoryStoresForTest(), nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer application.Stop(ctx)

	if err := application.Attach(noopLateService{}); err == nil {
		t.Fatal("expected registering a service after start to fail")
	}
}

type noopLateService struct{}

func (noopLateService) Name() string               { return "late" }
func (noopLateService) Start(context.Context) error { return nil }
func (noopLateService) Stop(context.Context) error  { return nil }
