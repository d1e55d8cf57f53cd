// Package httpapi exposes the substrate's operational surface: health
// checks, Prometheus metrics, and service descriptor introspection. It
// fits into the system manager lifecycle like any other background
// service.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	app "github.com/concord-network/substrate/internal/app"
	"github.com/concord-network/substrate/internal/app/metrics"
	"github.com/concord-network/substrate/internal/app/system"
	"github.com/concord-network/substrate/pkg/logger"
)

// Service serves /healthz, /metrics, and /system/descriptors.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds the ops HTTP surface for application.
func NewService(application *app.Application, addr string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(metrics.InstrumentHandler)

	router.Get("/healthz", handleHealth)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/system/descriptors", handleDescriptors(application))

	return &Service{addr: addr, handler: router, log: log}
}

var _ system.Service = (*Service)(nil)

func (s *Service) Name() string { return "httpapi" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("httpapi server stopped")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
