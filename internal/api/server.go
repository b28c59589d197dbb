package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/linkflow-ai/flowmirror/internal/api/handlers"
	"github.com/linkflow-ai/flowmirror/internal/api/middleware"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
	"github.com/linkflow-ai/flowmirror/internal/pkg/httpclient"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	pkgredis "github.com/linkflow-ai/flowmirror/internal/pkg/redis"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/linkflow-ai/flowmirror/internal/scheduler"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

type Services struct {
	Provider    *services.ProviderService
	Workflow    *services.WorkflowService
	VersionDiff *services.VersionDiffService
	Execution   *services.ExecutionService
	SyncLog     *services.SyncLogService
}

// Dependencies carries everything the routes need. Redis, Upstream and
// Scheduler are nil when disabled.
type Dependencies struct {
	DB         *gorm.DB
	Redis      *pkgredis.Client
	Upstream   *httpclient.PooledClient
	Engine     *reconcile.Engine
	Scheduler  *scheduler.Scheduler
	JWTManager *crypto.JWTManager
	Services   *Services
}

const (
	requestsPerMinute = 120
	requestBurst      = 30
)

func NewServer(cfg *config.Config, deps *Dependencies) *Server {
	router := NewRouter(cfg, deps)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		router:     router,
		httpServer: httpServer,
	}
}

func NewRouter(cfg *config.Config, deps *Dependencies) *chi.Mux {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger())
	router.Use(middleware.Recoverer())
	router.Use(metrics.MetricsMiddleware)

	// CORS - support multiple origins (comma-separated in config)
	allowedOrigins := strings.Split(cfg.App.FrontendURL, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(corsHandler.Handler)

	// Initialize handlers
	svc := deps.Services
	var breakers handlers.BreakerStates
	if deps.Upstream != nil {
		breakers = deps.Upstream
	}
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, breakers)
	syncHandler := handlers.NewSyncHandler(deps.Engine)
	schedulerHandler := handlers.NewSchedulerHandler(deps.Scheduler)
	providerHandler := handlers.NewProviderHandler(svc.Provider, svc.Workflow, svc.SyncLog)
	workflowHandler := handlers.NewWorkflowHandler(svc.Workflow, svc.VersionDiff)
	executionHandler := handlers.NewExecutionHandler(svc.Execution)
	syncLogHandler := handlers.NewSyncLogHandler(svc.SyncLog)

	authMiddleware := middleware.NewAuthMiddleware(deps.JWTManager)
	rateLimiter := middleware.NewRateLimiter(requestsPerMinute, requestBurst)

	router.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", healthHandler.Health)
		r.Get("/health/live", healthHandler.Live)
		r.Get("/health/ready", healthHandler.Ready)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimiter.Limit)

			// Sync triggers. Runs are synchronous, so these get a long timeout.
			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(30 * time.Minute))
				r.Post("/sync", syncHandler.SyncAll)
				r.Post("/providers/{providerID}/sync", syncHandler.SyncProvider)
				r.Post("/providers/{providerID}/ai-backfill", syncHandler.BackfillAIMetrics)
				r.Post("/scheduler/force", schedulerHandler.ForceSync)
			})

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(60 * time.Second))

				// Scheduler
				r.Get("/scheduler", schedulerHandler.Status)
				r.Post("/scheduler/start", schedulerHandler.Start)
				r.Post("/scheduler/stop", schedulerHandler.Stop)

				// Providers
				r.Get("/providers", providerHandler.List)
				r.Post("/providers", providerHandler.Create)
				r.Get("/providers/{providerID}", providerHandler.Get)
				r.Post("/providers/{providerID}/test", providerHandler.Test)

				// Workflows
				r.Get("/workflows", workflowHandler.List)
				r.Get("/workflows/{workflowID}", workflowHandler.Get)
				r.Get("/workflows/{workflowID}/versions", workflowHandler.Versions)
				r.Get("/workflows/{workflowID}/diff", workflowHandler.Diff)
				r.Post("/workflows/{workflowID}/archive", workflowHandler.Archive)
				r.Put("/workflows/{workflowID}/backup", workflowHandler.ToggleBackup)
				r.Delete("/workflows/{workflowID}/backup", workflowHandler.DeleteBackup)

				// Executions
				r.Get("/executions", executionHandler.List)
				r.Get("/executions/{executionID}", executionHandler.Get)

				// Sync logs
				r.Get("/sync-logs", syncLogHandler.List)
				r.Get("/sync-logs/{syncLogID}", syncLogHandler.Get)
			})
		})
	})

	// Metrics endpoint (Prometheus)
	router.Handle("/metrics", metrics.Handler())

	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
