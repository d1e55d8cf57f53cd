package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/app/domain/subscription"
	"github.com/concord-network/substrate/internal/app/storage/memory"
)

func newTestService(t *testing.T, maxPerHour int) (*Service, *memory.SubscriptionStore) {
	t.Helper()
	subs := memory.NewSubscriptionStore()
	return New(subs, maxPerHour, nil), subs
}

func TestDispatchMatchesSubscribedLens(t *testing.T) {
	ctx := context.Background()
	svc, subs := newTestService(t, 60)
	require.NoError(t, subs.PutSubscription(ctx, &subscription.Subscription{
		UserID:           "u1",
		SubscribedLenses: map[string]bool{"governance": true},
	}))

	d := &dtu.DTU{ID: "dtu1", Scope: dtu.Scope{Lenses: []string{"governance"}}, Meta: dtu.Meta{CRETIScore: 50}}
	notes, err := svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "u1", notes[0].UserID)
	require.Equal(t, NotificationType, notes[0].Type)
	require.True(t, notes[0].NoBridge)
}

func TestDispatchSkipsUnmatchedLens(t *testing.T) {
	ctx := context.Background()
	svc, subs := newTestService(t, 60)
	require.NoError(t, subs.PutSubscription(ctx, &subscription.Subscription{
		UserID:           "u1",
		SubscribedLenses: map[string]bool{"science": true},
	}))

	d := &dtu.DTU{ID: "dtu1", Scope: dtu.Scope{Lenses: []string{"governance"}}, Meta: dtu.Meta{CRETIScore: 50}}
	notes, err := svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestDispatchRespectsMinCRETIFilter(t *testing.T) {
	ctx := context.Background()
	svc, subs := newTestService(t, 60)
	require.NoError(t, subs.PutSubscription(ctx, &subscription.Subscription{
		UserID:           "u1",
		SubscribedLenses: map[string]bool{"governance": true},
		NewsFilters:      subscription.NewsFilters{MinCRETI: 80},
	}))

	d := &dtu.DTU{ID: "dtu1", Scope: dtu.Scope{Lenses: []string{"governance"}}, Meta: dtu.Meta{CRETIScore: 50}}
	notes, err := svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestDispatchStopsAtRateBudget(t *testing.T) {
	ctx := context.Background()
	svc, subs := newTestService(t, 1)
	require.NoError(t, subs.PutSubscription(ctx, &subscription.Subscription{
		UserID:           "u1",
		SubscribedLenses: map[string]bool{"governance": true},
	}))

	d := &dtu.DTU{ID: "dtu1", Scope: dtu.Scope{Lenses: []string{"governance"}}, Meta: dtu.Meta{CRETIScore: 50}}
	notes, err := svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	notes, err = svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestRateWindowPurgerEvictsIdleLimiters(t *testing.T) {
	ctx := context.Background()
	svc, subs := newTestService(t, 60)
	require.NoError(t, subs.PutSubscription(ctx, &subscription.Subscription{
		UserID:           "u1",
		SubscribedLenses: map[string]bool{"governance": true},
	}))

	d := &dtu.DTU{ID: "dtu1", Scope: dtu.Scope{Lenses: []string{"governance"}}, Meta: dtu.Meta{CRETIScore: 50}}
	_, err := svc.Dispatch(ctx, d)
	require.NoError(t, err)
	require.Len(t, svc.limiters, 1)

	purger := NewRateWindowPurger(svc, time.Millisecond, time.Millisecond, nil)
	require.NoError(t, purger.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, purger.Stop(ctx))

	svc.mu.Lock()
	count := len(svc.limiters)
	svc.mu.Unlock()
	require.Equal(t, 0, count)
}
