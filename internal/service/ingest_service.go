package service

import (
	"context"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/google/uuid"
)

// ETFReader resolves registry entries during ingestion.
type ETFReader interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.ETF, error)
}

// HoldingWriter is the snapshot-store write surface.
type HoldingWriter interface {
	SnapshotExists(ctx context.Context, etfSymbol string, tradeDate time.Time) (bool, error)
	InsertSnapshot(ctx context.Context, rows []models.Holding) error
	ReplaceSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time, rows []models.Holding) error
}

// SnapshotInvalidator drops cached reads after a snapshot rewrite.
type SnapshotInvalidator interface {
	InvalidateSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time)
}

// IngestService persists scraped holding batches as dated snapshots, tracking
// every attempt in the scrape run log and diffing the result against the
// prior snapshot.
type IngestService struct {
	etfs     ETFReader
	holdings HoldingWriter
	detector *ChangeDetector
	runs     *RunTracker
	cache    SnapshotInvalidator
	logger   *logging.Logger
}

// NewIngestService creates a new ingest service. cache may be nil when no
// read cache is configured.
func NewIngestService(
	etfs ETFReader,
	holdings HoldingWriter,
	detector *ChangeDetector,
	runs *RunTracker,
	cache SnapshotInvalidator,
	logger *logging.Logger,
) *IngestService {
	return &IngestService{
		etfs:     etfs,
		holdings: holdings,
		detector: detector,
		runs:     runs,
		cache:    cache,
		logger:   logger,
	}
}

// IngestInput is one scraped snapshot batch for a single ETF and trade date.
type IngestInput struct {
	ETFSymbol string
	TradeDate time.Time
	// Force replaces an existing snapshot for the same key transactionally.
	// Without it, re-ingestion fails with ALREADY_INGESTED so audit history
	// is preserved by default.
	Force bool
	// ExternalRequestID correlates the run with the upstream fetch provider;
	// one is generated when the producer did not supply any.
	ExternalRequestID string
	PagesScraped      int
	Rows              []models.Holding
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	RunID            uuid.UUID   `json:"runId"`
	ETFSymbol        string      `json:"etfSymbol"`
	TradeDate        time.Time   `json:"tradeDate"`
	HoldingsIngested int         `json:"holdingsIngested"`
	Replaced         bool        `json:"replaced"`
	Diff             *DiffResult `json:"diff"`
}

// Ingest validates and persists one snapshot batch, then runs change
// detection against the prior snapshot. The whole attempt is recorded as a
// scrape run: SUCCEEDED with counts, or FAILED with the error message. On any
// failure the snapshot store is left exactly as it was.
func (s *IngestService) Ingest(ctx context.Context, input *IngestInput) (*IngestResult, error) {
	if _, err := s.etfs.GetBySymbol(ctx, input.ETFSymbol); err != nil {
		return nil, err
	}

	externalID := input.ExternalRequestID
	if externalID == "" {
		externalID = uuid.NewString()
	}

	run, err := s.runs.Start(ctx, input.ETFSymbol, input.TradeDate, externalID)
	if err != nil {
		return nil, err
	}

	result, err := s.ingestUnderRun(ctx, input)
	if err != nil {
		msg := err.Error()
		if finishErr := s.runs.Finish(ctx, run.ID, types.RunFailed, input.PagesScraped, 0, &msg); finishErr != nil {
			s.logger.WithError(finishErr).WithField("runId", run.ID.String()).Error("failed to finalize failed run")
		}
		return nil, err
	}

	if finishErr := s.runs.Finish(ctx, run.ID, types.RunSucceeded, input.PagesScraped, len(input.Rows), nil); finishErr != nil {
		s.logger.WithError(finishErr).WithField("runId", run.ID.String()).Error("failed to finalize succeeded run")
	}

	result.RunID = run.ID
	return result, nil
}

func (s *IngestService) ingestUnderRun(ctx context.Context, input *IngestInput) (*IngestResult, error) {
	rows, err := s.prepareRows(input)
	if err != nil {
		return nil, err
	}

	exists, err := s.holdings.SnapshotExists(ctx, input.ETFSymbol, input.TradeDate)
	if err != nil {
		return nil, err
	}

	replaced := false
	switch {
	case exists && !input.Force:
		return nil, apperrors.NewAlreadyIngestedError(input.ETFSymbol, input.TradeDate)
	case exists:
		if err := s.holdings.ReplaceSnapshot(ctx, input.ETFSymbol, input.TradeDate, rows); err != nil {
			return nil, err
		}
		replaced = true
	default:
		if err := s.holdings.InsertSnapshot(ctx, rows); err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		s.cache.InvalidateSnapshot(ctx, input.ETFSymbol, input.TradeDate)
	}

	diff, err := s.detector.DetectAndStore(ctx, input.ETFSymbol, &input.TradeDate)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"etf":       input.ETFSymbol,
		"tradeDate": input.TradeDate.Format(types.DateFormat),
		"rows":      len(rows),
		"replaced":  replaced,
	}).Info("snapshot ingested")

	return &IngestResult{
		ETFSymbol:        input.ETFSymbol,
		TradeDate:        input.TradeDate,
		HoldingsIngested: len(rows),
		Replaced:         replaced,
		Diff:             diff,
	}, nil
}

// prepareRows validates the batch and stamps provenance fields. A duplicate
// security identifier within the submission is rejected before anything is
// persisted, naming the offending identifier.
func (s *IngestService) prepareRows(input *IngestInput) ([]models.Holding, error) {
	if len(input.Rows) == 0 {
		return nil, apperrors.NewValidationError("snapshot batch is empty", map[string]interface{}{
			"etfSymbol": input.ETFSymbol,
			"tradeDate": input.TradeDate.Format(types.DateFormat),
		})
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(input.Rows))
	rows := make([]models.Holding, len(input.Rows))

	for i, row := range input.Rows {
		row.ETFSymbol = input.ETFSymbol
		row.TradeDate = input.TradeDate
		if row.ScrapedAt.IsZero() {
			row.ScrapedAt = now
		}

		id := row.SecurityID()
		if id == "" {
			return nil, apperrors.NewValidationError("holding row has no security identifier", map[string]interface{}{
				"index": i,
			})
		}
		if _, dup := seen[id]; dup {
			return nil, apperrors.NewDuplicateSecurityError(id)
		}
		seen[id] = struct{}{}

		if row.WeightPct.IsNegative() {
			return nil, apperrors.NewValidationError("weight percentage cannot be negative", map[string]interface{}{
				"securityId": id,
				"weightPct":  row.WeightPct.String(),
			})
		}
		if row.SharesHeld.IsNegative() {
			return nil, apperrors.NewValidationError("shares held cannot be negative", map[string]interface{}{
				"securityId": id,
				"sharesHeld": row.SharesHeld.String(),
			})
		}

		rows[i] = row
	}

	return rows, nil
}
