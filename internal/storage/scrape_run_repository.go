package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ScrapeRunRepository handles scrape run lifecycle persistence
type ScrapeRunRepository struct {
	db *PostgresDB
}

// NewScrapeRunRepository creates a new scrape run repository
func NewScrapeRunRepository(db *PostgresDB) *ScrapeRunRepository {
	return &ScrapeRunRepository{db: db}
}

// Create inserts a new run in STARTED state
func (r *ScrapeRunRepository) Create(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		INSERT INTO etf_scrape_log (
			id, etf_symbol, scrape_date, status, started_at,
			pages_scraped, holdings_count, external_request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		run.ID,
		run.ETFSymbol,
		run.ScrapeDate,
		run.Status,
		run.StartedAt,
		run.PagesScraped,
		run.HoldingsCount,
		run.ExternalRequestID,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create scrape run", err)
	}

	return nil
}

// Finish sets the end time and final fields of a run. The WHERE guard on
// finished_at makes finish idempotent by rejection: the second call on the
// same run matches zero rows and fails with ALREADY_FINISHED, leaving the
// first call's recorded status untouched.
func (r *ScrapeRunRepository) Finish(ctx context.Context, id uuid.UUID, status types.RunStatus, pagesScraped, holdingsCount int, errorMessage *string) error {
	query := `
		UPDATE etf_scrape_log
		SET status = $2, finished_at = $3, pages_scraped = $4,
			holdings_count = $5, error_message = $6
		WHERE id = $1 AND finished_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id, status, time.Now().UTC(), pagesScraped, holdingsCount, errorMessage,
	)
	if err != nil {
		return apperrors.NewDatabaseError("finish scrape run", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a double-finish from an unknown run id.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return apperrors.NewAlreadyFinishedError(id.String())
	}

	return nil
}

const scrapeRunColumns = `
	id, etf_symbol, scrape_date, status, started_at, finished_at,
	pages_scraped, holdings_count, error_message, external_request_id
`

func scanScrapeRun(row pgx.Row) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	err := row.Scan(
		&run.ID,
		&run.ETFSymbol,
		&run.ScrapeDate,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.PagesScraped,
		&run.HoldingsCount,
		&run.ErrorMessage,
		&run.ExternalRequestID,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetByID retrieves a run by its id
func (r *ScrapeRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ScrapeRun, error) {
	query := `SELECT ` + scrapeRunColumns + ` FROM etf_scrape_log WHERE id = $1`

	run, err := scanScrapeRun(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("scrape run", id.String())
		}
		return nil, apperrors.NewDatabaseError("get scrape run", err)
	}

	return run, nil
}

// ListByETF retrieves the run history for an ETF, most recent first
func (r *ScrapeRunRepository) ListByETF(ctx context.Context, etfSymbol string, limit int) ([]*models.ScrapeRun, error) {
	query := `
		SELECT ` + scrapeRunColumns + `
		FROM etf_scrape_log
		WHERE etf_symbol = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, etfSymbol, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list scrape runs", err)
	}
	defer rows.Close()

	return collectScrapeRuns(rows)
}

// ListUnfinished retrieves STARTED runs whose start time is older than the
// threshold: the detectable anomaly left behind by a crashed scrape process.
// The tracker surfaces them for auditing but never auto-recovers them.
func (r *ScrapeRunRepository) ListUnfinished(ctx context.Context, olderThan time.Time) ([]*models.ScrapeRun, error) {
	query := `
		SELECT ` + scrapeRunColumns + `
		FROM etf_scrape_log
		WHERE status = $1 AND finished_at IS NULL AND started_at < $2
		ORDER BY started_at
	`

	rows, err := r.db.Pool().Query(ctx, query, types.RunStarted, olderThan)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list unfinished scrape runs", err)
	}
	defer rows.Close()

	return collectScrapeRuns(rows)
}

func collectScrapeRuns(rows pgx.Rows) ([]*models.ScrapeRun, error) {
	var runs []*models.ScrapeRun
	for rows.Next() {
		run, err := scanScrapeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrape runs: %w", err)
	}

	return runs, nil
}
