package config

import "testing"

func TestLoadDefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("SUBSTRATE_ENV", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != Development {
		t.Fatalf("expected development env, got %s", cfg.Env)
	}
	if cfg.MinClusterSize != 3 {
		t.Fatalf("expected default min cluster size 3, got %d", cfg.MinClusterSize)
	}
	if cfg.NightlyAuditHour != 2 {
		t.Fatalf("expected default nightly audit hour 2, got %d", cfg.NightlyAuditHour)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("SUBSTRATE_ENV", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SUBSTRATE_ENV")
	}
}

func TestDefaultQualityGatesMatchSpecTable(t *testing.T) {
	gates := DefaultQualityGates()
	regional := gates["regional"]
	if regional.MinAuthority != 0.15 || regional.MinCitations != 0 || regional.MinAgeHours != 0 {
		t.Fatalf("unexpected regional gate: %+v", regional)
	}
	national := gates["national"]
	if national.MinAuthority != 0.40 || national.MinCitations != 3 || national.MinAgeHours != 48 || national.MinCouncilVotes != 5 {
		t.Fatalf("unexpected national gate: %+v", national)
	}
	global := gates["global"]
	if global.MinAuthority != 0.70 || global.MinCitations != 10 || global.MinAgeHours != 720 ||
		global.MinCouncilVotes != 7 || global.MinCrossRegional != 3 {
		t.Fatalf("unexpected global gate: %+v", global)
	}
}

func TestValidateCatchesBadSettings(t *testing.T) {
	cfg := &Config{MinClusterSize: 0, DefaultMaxPerHour: 1, NightlyAuditHour: 2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero cluster size")
	}

	cfg = &Config{MinClusterSize: 1, DefaultMaxPerHour: 1, NightlyAuditHour: 24}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range audit hour")
	}
}
