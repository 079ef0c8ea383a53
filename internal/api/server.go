package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pipeline.Engine, version string) *Server {
	handler := NewHandler(cfg, repo, cache, bus, engine, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/api", func(r chi.Router) {
		// Dashboard read models
		r.Get("/data-quality/summary", handler.QualitySummary)
		r.Get("/transactions/summary", handler.TransactionSummary)
		r.Get("/compliance/metrics", handler.ComplianceMetrics)
		r.Get("/customers/risk-profile", handler.CustomerRiskProfiles)
		r.Get("/dashboard/overview", handler.DashboardOverview)
		r.Get("/unverified-devices", handler.UnverifiedDevices)

		// Alert review
		r.Get("/fraud-alerts", handler.ListAlerts)
		r.Get("/fraud-alerts/{id}", handler.GetAlert)
		r.Patch("/fraud-alerts/{id}", handler.UpdateAlert)

		// Batch runs
		r.Post("/runs", handler.TriggerRun)
		r.Get("/runs/latest", handler.LatestRun)
		r.Get("/reports/latest", handler.LatestReport)

		// Custom check management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
			// Synchronous runs answer only when the batch commits.
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a
// graceful stop.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
