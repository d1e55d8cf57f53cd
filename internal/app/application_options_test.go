package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/services/resolver"
)

func TestResolveOptions_DefaultsHTTPClient(t *testing.T) {
	resolved := resolveOptions()
	if resolved.httpClient == nil {
		t.Fatal("expected a default http client")
	}
	if resolved.httpClient.Timeout != 10*time.Second {
		t.Fatalf("expected default 10s timeout, got %v", resolved.httpClient.Timeout)
	}
}

func TestResolveOptions_CustomHTTPClient(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	resolved := resolveOptions(WithHTTPClient(client))
	if resolved.httpClient != client {
		t.Fatalf("custom http client not applied")
	}
}

func TestResolveOptions_ResolverSearchRegistersPerTier(t *testing.T) {
	var called dtu.FederationTier
	fn := func(ctx context.Context, query string, tier dtu.FederationTier) (resolver.SearchResult, error) {
		called = tier
		return resolver.SearchResult{Sufficient: true}, nil
	}
	resolved := resolveOptions(WithResolverSearch(dtu.TierRegional, fn))
	registered, ok := resolved.searchFuncs[dtu.TierRegional]
	if !ok {
		t.Fatal("expected regional search function to be registered")
	}
	if _, err := registered(context.Background(), "q", dtu.TierRegional); err != nil {
		t.Fatalf("invoke registered search func: %v", err)
	}
	if called != dtu.TierRegional {
		t.Fatalf("expected regional tier to be passed through, got %q", called)
	}
}

func TestResolveOptions_QuestPolicyLookup(t *testing.T) {
	fn := func(ctx context.Context, lensID string) ([]lens.QuestRewardPolicy, error) {
		return nil, nil
	}
	resolved := resolveOptions(WithQuestPolicyLookup(fn))
	if resolved.quests == nil {
		t.Fatal("expected quest policy lookup to be set")
	}
}

func TestApplication_ResolveQueryFallsBackWhenTierUnregistered(t *testing.T) {
	application, err := New(nil, NewMemoryStoresForTest(), nil, WithResolverSearch(dtu.TierRegional, func(ctx context.Context, query string, tier dtu.FederationTier) (resolver.SearchResult, error) {
		return resolver.SearchResult{Sufficient: true}, nil
	}))
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	result, err := application.ResolveQuery(context.Background(), "q", dtu.TierLocal)
	if err != nil {
		t.Fatalf("resolve query: %v", err)
	}
	if result == nil {
		t.Fatal("expected a query result")
	}
	if result.ResolvedAt != dtu.TierRegional {
		t.Fatalf("expected resolution at regional, got %q", result.ResolvedAt)
	}
}
