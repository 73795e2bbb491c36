// Package api provides the HTTP API server exposing the snapshot ingestion,
// change-detection and run-tracking operations to the external scheduler.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/service"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// RegistryServiceInterface defines the registry operations the API exposes.
type RegistryServiceInterface interface {
	Register(ctx context.Context, etf *models.ETF) error
	Lookup(ctx context.Context, symbol string) (*models.ETF, error)
	RefreshMetadata(ctx context.Context, etf *models.ETF) error
	Deregister(ctx context.Context, symbol string) error
}

// IngestServiceInterface defines the ingestion operation.
type IngestServiceInterface interface {
	Ingest(ctx context.Context, input *service.IngestInput) (*service.IngestResult, error)
}

// ChangeDetectorInterface defines the standalone diff operation.
type ChangeDetectorInterface interface {
	DetectAndStore(ctx context.Context, etfSymbol string, before *time.Time) (*service.DiffResult, error)
}

// SnapshotReaderInterface defines cached snapshot and registry reads.
type SnapshotReaderInterface interface {
	GetSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error)
	ListETFs(ctx context.Context) ([]*models.ETF, error)
}

// ChangeReaderInterface defines change log reads.
type ChangeReaderInterface interface {
	GetByETFAndDate(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.HoldingChange, error)
}

// RunTrackerInterface defines scrape run reads.
type RunTrackerInterface interface {
	History(ctx context.Context, etfSymbol string, limit int) ([]*models.ScrapeRun, error)
	ListStale(ctx context.Context, threshold time.Duration) ([]*models.ScrapeRun, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	registry   RegistryServiceInterface
	ingestor   IngestServiceInterface
	detector   ChangeDetectorInterface
	snapshots  SnapshotReaderInterface
	changes    ChangeReaderInterface
	runs       RunTrackerInterface
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	registry RegistryServiceInterface,
	ingestor IngestServiceInterface,
	detector ChangeDetectorInterface,
	snapshots SnapshotReaderInterface,
	changes ChangeReaderInterface,
	runs RunTrackerInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		registry:  registry,
		ingestor:  ingestor,
		detector:  detector,
		snapshots: snapshots,
		changes:   changes,
		runs:      runs,
		logger:    logger,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	limiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(limiter))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/etfs", s.handleRegisterETF).Methods(http.MethodPost)
	v1.HandleFunc("/etfs", s.handleListETFs).Methods(http.MethodGet)
	v1.HandleFunc("/etfs/{symbol}", s.handleGetETF).Methods(http.MethodGet)
	v1.HandleFunc("/etfs/{symbol}", s.handleRefreshETF).Methods(http.MethodPut)
	v1.HandleFunc("/etfs/{symbol}", s.handleDeleteETF).Methods(http.MethodDelete)

	v1.HandleFunc("/etfs/{symbol}/snapshots", s.handleIngestSnapshot).Methods(http.MethodPost)
	v1.HandleFunc("/etfs/{symbol}/snapshots/{date}", s.handleGetSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/etfs/{symbol}/snapshots/{date}/changes", s.handleGetChanges).Methods(http.MethodGet)
	v1.HandleFunc("/etfs/{symbol}/diff", s.handleDiff).Methods(http.MethodPost)

	v1.HandleFunc("/etfs/{symbol}/runs", s.handleListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/runs/stale", s.handleListStaleRuns).Methods(http.MethodGet)
}

// Router returns the configured router; used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.WithField("addr", addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth responds to liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
