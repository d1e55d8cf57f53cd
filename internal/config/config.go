// Package config provides environment-aware configuration management for
// the substrate core: storage, federation quality gates, news-hub cadence,
// event-bridge dedup windows, and subscription rate limits.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	slruntime "github.com/concord-network/substrate/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// QualityGate holds the minimum thresholds a DTU must clear to be tagged at
// or promoted into a federation tier, per spec §4.5/§6.
type QualityGate struct {
	MinAuthority         float64
	MinCitations         int
	MinAgeHours          int
	MinCouncilVotes      int
	MinCrossRegional     int
	AllowedInternalTiers []string
}

// Config holds all application configuration.
type Config struct {
	Env Environment

	// HTTP ops surface (health/metrics only; see SPEC_FULL.md §0).
	ListenAddr  string
	MetricsPort int

	// Database
	DatabaseDSN      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Federation registry
	CRIHeartbeatTimeout time.Duration
	CRISweepInterval    time.Duration
	QualityGates        map[string]QualityGate

	// Event bridge
	DedupWindow          time.Duration
	CrossReferenceWindow time.Duration

	// News hub
	DailyAgeHours   int
	WeeklyAgeDays   int
	MonthlyAgeDays  int
	MinClusterSize  int
	CompactionTick  time.Duration
	ArchivalMinAge  time.Duration

	// Subscription / router
	DefaultMaxPerHour int
	RateWindowPurge   time.Duration

	// Compliance
	NightlyAuditHour int // 0-23, local wall clock
	UserLensLimit    int
	EmergentLensLimit int
}

// Load loads configuration based on the SUBSTRATE_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("SUBSTRATE_ENV")
	if envStr == "" {
		envStr = string(slruntime.Development)
	}

	parsedEnv, ok := slruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid SUBSTRATE_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		// Config file is optional; only warn on non-"file not found" errors
		// (e.g. parse errors) to avoid noisy logs during tests and CI runs.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// DefaultQualityGates returns the thresholds from spec §6's table.
func DefaultQualityGates() map[string]QualityGate {
	return map[string]QualityGate{
		"regional": {
			MinAuthority:         0.15,
			MinCitations:         0,
			MinAgeHours:          0,
			MinCouncilVotes:      0,
			AllowedInternalTiers: []string{"regular", "mega", "hyper"},
		},
		"national": {
			MinAuthority:         0.40,
			MinCitations:         3,
			MinAgeHours:          48,
			MinCouncilVotes:      5,
			AllowedInternalTiers: []string{"regular", "mega", "hyper"},
		},
		"global": {
			MinAuthority:         0.70,
			MinCitations:         10,
			MinAgeHours:          720,
			MinCouncilVotes:      7,
			MinCrossRegional:     3,
			AllowedInternalTiers: []string{"mega", "hyper"},
		},
	}
}

func (c *Config) loadFromEnv() error {
	c.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	c.DatabaseDSN = getEnv("DATABASE_DSN", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	idleTimeout, err := time.ParseDuration(getEnv("DB_IDLE_TIMEOUT", "5m"))
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idleTimeout

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	heartbeatTimeout, err := time.ParseDuration(getEnv("CRI_HEARTBEAT_TIMEOUT", "90s"))
	if err != nil {
		return fmt.Errorf("invalid CRI_HEARTBEAT_TIMEOUT: %w", err)
	}
	c.CRIHeartbeatTimeout = heartbeatTimeout
	sweepInterval, err := time.ParseDuration(getEnv("CRI_SWEEP_INTERVAL", "30s"))
	if err != nil {
		return fmt.Errorf("invalid CRI_SWEEP_INTERVAL: %w", err)
	}
	c.CRISweepInterval = sweepInterval
	c.QualityGates = DefaultQualityGates()

	dedupWindow, err := time.ParseDuration(getEnv("BRIDGE_DEDUP_WINDOW", "10m"))
	if err != nil {
		return fmt.Errorf("invalid BRIDGE_DEDUP_WINDOW: %w", err)
	}
	c.DedupWindow = dedupWindow
	crossRefWindow, err := time.ParseDuration(getEnv("BRIDGE_CROSSREF_WINDOW", "30m"))
	if err != nil {
		return fmt.Errorf("invalid BRIDGE_CROSSREF_WINDOW: %w", err)
	}
	c.CrossReferenceWindow = crossRefWindow

	c.DailyAgeHours = getIntEnv("NEWSHUB_DAILY_AGE_HOURS", 24)
	c.WeeklyAgeDays = getIntEnv("NEWSHUB_WEEKLY_AGE_DAYS", 7)
	c.MonthlyAgeDays = getIntEnv("NEWSHUB_MONTHLY_AGE_DAYS", 30)
	c.MinClusterSize = getIntEnv("NEWSHUB_MIN_CLUSTER_SIZE", 3)
	compactionTick, err := time.ParseDuration(getEnv("NEWSHUB_COMPACTION_TICK", "1h"))
	if err != nil {
		return fmt.Errorf("invalid NEWSHUB_COMPACTION_TICK: %w", err)
	}
	c.CompactionTick = compactionTick
	archivalMinAge, err := time.ParseDuration(getEnv("NEWSHUB_ARCHIVAL_MIN_AGE", "720h"))
	if err != nil {
		return fmt.Errorf("invalid NEWSHUB_ARCHIVAL_MIN_AGE: %w", err)
	}
	c.ArchivalMinAge = archivalMinAge

	c.DefaultMaxPerHour = getIntEnv("ROUTER_DEFAULT_MAX_PER_HOUR", 60)
	rateWindowPurge, err := time.ParseDuration(getEnv("ROUTER_RATE_WINDOW_PURGE", "10m"))
	if err != nil {
		return fmt.Errorf("invalid ROUTER_RATE_WINDOW_PURGE: %w", err)
	}
	c.RateWindowPurge = rateWindowPurge

	c.NightlyAuditHour = getIntEnv("COMPLIANCE_NIGHTLY_AUDIT_HOUR", 2)
	c.UserLensLimit = getIntEnv("COMPLIANCE_USER_LENS_LIMIT", 10)
	c.EmergentLensLimit = getIntEnv("COMPLIANCE_EMERGENT_LENS_LIMIT", 5)

	return nil
}

// IsDevelopment returns true if running in the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting returns true if running in the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate performs sanity checks on the loaded configuration.
func (c *Config) Validate() error {
	if c.MinClusterSize < 1 {
		return fmt.Errorf("NEWSHUB_MIN_CLUSTER_SIZE must be >= 1")
	}
	if c.DefaultMaxPerHour < 0 {
		return fmt.Errorf("ROUTER_DEFAULT_MAX_PER_HOUR must be >= 0")
	}
	if c.NightlyAuditHour < 0 || c.NightlyAuditHour > 23 {
		return fmt.Errorf("COMPLIANCE_NIGHTLY_AUDIT_HOUR must be between 0 and 23")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
