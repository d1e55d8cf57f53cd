package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/domain/lens"
	"github.com/concord-network/substrate/internal/app/storage/memory"
	"github.com/concord-network/substrate/internal/errs"
)

func fullCapabilityAdapter(id string, class lens.Classification) *lens.Adapter {
	return &lens.Adapter{
		ID:             id,
		Classification: class,
		Capabilities: lens.Capabilities{
			Render: true, Create: true, Validate: true,
			DTUBridge: true, DTUFileEncode: true, DTUFileDecode: true,
			Marketplace: true, Export: true,
		},
		Isolation: lens.Isolation{Mode: lens.ProtectionOpen},
	}
}

func TestRunPhasesPassesCompliantKnowledgeLens(t *testing.T) {
	a := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	report := RunPhases(ComplianceInput{Adapter: a})
	require.True(t, report.Passed)
}

func TestRunPhasesFailsMissingDTUBridgeCapability(t *testing.T) {
	a := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	a.Capabilities.DTUBridge = false
	report := RunPhases(ComplianceInput{Adapter: a})
	require.False(t, report.Passed)
	require.NotEmpty(t, report.failures())
}

func TestRunPhasesSkipsInapplicablePhases(t *testing.T) {
	a := fullCapabilityAdapter("lens1", lens.ClassificationCulture)
	a.Isolation = lens.Isolation{Mode: lens.ProtectionIsolated, ChronologicalOnly: true}
	report := RunPhases(ComplianceInput{Adapter: a})

	found := false
	for _, p := range report.Phases {
		if p.Phase == lens.PhaseMarketplace {
			require.Equal(t, lens.CheckSkipped, p.Outcome)
			found = true
		}
	}
	require.True(t, found)
}

func TestEnforceConstitutionalInvariantsCorrectsIsolatedOverride(t *testing.T) {
	a := &lens.Adapter{
		ID:             "lens1",
		Classification: lens.ClassificationKnowledge,
		Isolation:      lens.Isolation{Mode: lens.ProtectionIsolated, CrossLensVisibility: true},
	}
	corrected := EnforceConstitutionalInvariants(a)
	require.True(t, corrected)
	require.False(t, a.Isolation.CrossLensVisibility)
}

func TestEnforceConstitutionalInvariantsCorrectsCultureLens(t *testing.T) {
	a := &lens.Adapter{
		ID:             "lens1",
		Classification: lens.ClassificationCulture,
		Isolation:      lens.Isolation{CrossLensVisibility: true, MarketplaceEnabled: true, ExportEnabled: true},
	}
	EnforceConstitutionalInvariants(a)
	require.False(t, a.Isolation.CrossLensVisibility)
	require.True(t, a.Isolation.ChronologicalOnly)
	require.False(t, a.Isolation.MarketplaceEnabled)
	require.False(t, a.Isolation.ExportEnabled)
}

func TestRunPhasesFlagsQuestCoinXPViolation(t *testing.T) {
	a := fullCapabilityAdapter("lens1", lens.ClassificationSocial)
	report := RunPhases(ComplianceInput{
		Adapter:       a,
		QuestPolicies: []lens.QuestRewardPolicy{{RewardsCoin: true, RewardsXP: true}},
	})
	require.False(t, report.Passed)
}

func TestRegisterLensHoldsPendingOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLensStore()
	runner := New(store, 10, 5, nil, nil)

	a := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	a.Capabilities.Validate = false

	report, err := runner.RegisterLens(ctx, ComplianceInput{Adapter: a})
	require.NoError(t, err)
	require.False(t, report.Passed)

	stored, err := store.GetLens(ctx, "lens1")
	require.NoError(t, err)
	require.Equal(t, lens.StatusPendingCompliance, stored.Status)
}

func TestRegisterLensActivatesOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLensStore()
	runner := New(store, 10, 5, nil, nil)

	a := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	report, err := runner.RegisterLens(ctx, ComplianceInput{Adapter: a})
	require.NoError(t, err)
	require.True(t, report.Passed)

	stored, err := store.GetLens(ctx, "lens1")
	require.NoError(t, err)
	require.Equal(t, lens.StatusActive, stored.Status)
}

func TestRegisterLensEnforcesUserQuota(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLensStore()
	runner := New(store, 1, 5, nil, nil)

	first := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	_, err := runner.RegisterLens(ctx, ComplianceInput{Adapter: first})
	require.NoError(t, err)

	second := fullCapabilityAdapter("lens2", lens.ClassificationKnowledge)
	_, err = runner.RegisterLens(ctx, ComplianceInput{Adapter: second})
	require.True(t, errs.Is(err, errs.KindLensLimitExceeded))
}

func TestRunNightlyAuditDisablesFailingLens(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLensStore()
	runner := New(store, 10, 5, nil, nil)

	a := fullCapabilityAdapter("lens1", lens.ClassificationKnowledge)
	a.Capabilities.DTUBridge = false
	_, err := runner.RegisterLens(ctx, ComplianceInput{Adapter: a})
	require.NoError(t, err)

	require.NoError(t, store.SetLensStatus(ctx, "lens1", lens.StatusActive))

	require.NoError(t, runner.RunNightlyAudit(ctx))

	stored, err := store.GetLens(ctx, "lens1")
	require.NoError(t, err)
	require.Equal(t, lens.StatusDisabled, stored.Status)
}
