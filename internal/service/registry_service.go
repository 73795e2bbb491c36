package service

import (
	"context"
	"strings"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/models"
)

// ETFStore is the registry persistence surface.
type ETFStore interface {
	Create(ctx context.Context, etf *models.ETF) error
	GetBySymbol(ctx context.Context, symbol string) (*models.ETF, error)
	List(ctx context.Context) ([]*models.ETF, error)
	UpsertMetadata(ctx context.Context, etf *models.ETF) error
	Delete(ctx context.Context, symbol string) error
}

// ETFListInvalidator drops the cached registry listing after writes.
type ETFListInvalidator interface {
	InvalidateETFList(ctx context.Context)
}

// RegistryService manages the authoritative list of tracked ETFs.
type RegistryService struct {
	etfs   ETFStore
	cache  ETFListInvalidator
	logger *logging.Logger
}

// NewRegistryService creates a new registry service. cache may be nil.
func NewRegistryService(etfs ETFStore, cache ETFListInvalidator, logger *logging.Logger) *RegistryService {
	return &RegistryService{etfs: etfs, cache: cache, logger: logger}
}

// Register adds a new ETF. The symbol is the primary key; registering an
// existing one fails with DUPLICATE_KEY.
func (s *RegistryService) Register(ctx context.Context, etf *models.ETF) error {
	etf.Symbol = strings.ToUpper(strings.TrimSpace(etf.Symbol))
	if etf.Symbol == "" {
		return apperrors.NewValidationError("etf symbol is required", nil)
	}
	if etf.Name == "" {
		return apperrors.NewValidationError("etf name is required", nil)
	}

	if err := s.etfs.Create(ctx, etf); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.InvalidateETFList(ctx)
	}

	s.logger.WithField("etf", etf.Symbol).Info("etf registered")
	return nil
}

// Lookup retrieves a registered ETF by symbol.
func (s *RegistryService) Lookup(ctx context.Context, symbol string) (*models.ETF, error) {
	return s.etfs.GetBySymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

// RefreshMetadata updates an ETF's mutable metadata, creating the entry when
// it does not exist yet.
func (s *RegistryService) RefreshMetadata(ctx context.Context, etf *models.ETF) error {
	etf.Symbol = strings.ToUpper(strings.TrimSpace(etf.Symbol))
	if etf.Symbol == "" {
		return apperrors.NewValidationError("etf symbol is required", nil)
	}

	if err := s.etfs.UpsertMetadata(ctx, etf); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.InvalidateETFList(ctx)
	}

	return nil
}

// Deregister deletes an ETF and cascades to its snapshots, change records and
// scrape runs. Intentionally destructive; the caller owns the decision.
func (s *RegistryService) Deregister(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := s.etfs.Delete(ctx, symbol); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.InvalidateETFList(ctx)
	}

	s.logger.WithField("etf", symbol).Warn("etf deregistered, dependent history deleted")
	return nil
}
