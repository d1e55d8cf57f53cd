// Command substrated runs the knowledge-object substrate as a standalone
// service: it wires storage (PostgreSQL when a DSN is configured, in-memory
// otherwise), applies embedded migrations, starts the domain services, and
// serves the operational HTTP surface until signalled to stop.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "github.com/concord-network/substrate/internal/app"
	"github.com/concord-network/substrate/internal/app/httpapi"
	"github.com/concord-network/substrate/internal/app/storage/postgres"
	"github.com/concord-network/substrate/internal/config"
	"github.com/concord-network/substrate/internal/platform/database"
	"github.com/concord-network/substrate/internal/platform/migrations"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rootCtx := context.Background()
	dsnVal := resolveDSN(*dsn, cfg)

	stores := app.Stores{}
	var db *sql.DB

	if dsnVal != "" {
		sqlDB, err := database.Open(rootCtx, dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		db = sqlDB

		if *runMigrations {
			if err := migrations.Apply(sqlDB); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}

		store := postgres.New(sqlDB)
		stores = app.Stores{
			DTUs:          store,
			SystemDTUs:    store,
			Canonical:     store,
			DedupReviews:  store,
			ThreatLattice: store,
			Rights:        store,
			Federation:    store,
			Subscriptions: store,
			Lenses:        store,
			BridgeSeen:    store,
		}
	}
	if db != nil {
		defer db.Close()
	}

	application, err := app.New(cfg, stores, nil)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	listenAddr := determineAddr(*addr, cfg)
	httpService := httpapi.NewService(application, listenAddr, nil)
	if err := application.Attach(httpService); err != nil {
		log.Fatalf("attach http service: %v", err)
	}

	if err := application.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	log.Printf("substrate listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if addr := strings.TrimSpace(flagAddr); addr != "" {
		return addr
	}
	if cfg != nil {
		if addr := strings.TrimSpace(cfg.ListenAddr); addr != "" {
			return addr
		}
	}
	return ":8080"
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.DatabaseDSN)
	}
	return ""
}
