package rights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/domain/rights"
	"github.com/concord-network/substrate/internal/app/storage/memory"
	"github.com/concord-network/substrate/internal/errs"
)

func newTestService() *Service {
	return New(memory.NewRightsStore(), nil)
}

func TestRegisterAndCheck(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "creator_a", rights.LicenseCreativeCommons, false, rights.DerivativePolicy{MaxDerivatives: 1})
	require.NoError(t, err)

	ok, err := svc.Check(ctx, "hash1", "anyone", rights.ActionView)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Check(ctx, "hash1", "anyone", rights.ActionCommercialUse)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegisterDerivativeLimit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "creator_a", rights.LicenseCustom, false, rights.DerivativePolicy{MaxDerivatives: 1})
	require.NoError(t, err)

	require.NoError(t, svc.RegisterDerivative(ctx, "hash1"))
	err = svc.RegisterDerivative(ctx, "hash1")
	require.True(t, errs.Is(err, errs.KindNotAuthorized))
}

func TestTransferOwnershipRequiresCurrentOwner(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "creator_a", rights.LicenseCustom, false, rights.DerivativePolicy{Unrestricted: true})
	require.NoError(t, err)

	err = svc.TransferOwnership(ctx, "hash1", "not_owner", "creator_b")
	require.True(t, errs.Is(err, errs.KindNotAuthorized))

	require.NoError(t, svc.TransferOwnership(ctx, "hash1", "creator_a", "creator_b"))
	ok, err := svc.Check(ctx, "hash1", "creator_b", rights.ActionTransfer)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRevokeBlocksAccess(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "hash1", "creator_a", rights.LicenseCustom, true, rights.DerivativePolicy{Unrestricted: true})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "hash1", "baduser"))
	ok, err := svc.Check(ctx, "hash1", "baduser", rights.ActionView)
	require.NoError(t, err)
	require.False(t, ok)
}
