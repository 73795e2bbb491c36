package storage

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// ETFRepository handles ETF registry persistence
type ETFRepository struct {
	db *PostgresDB
}

// NewETFRepository creates a new ETF repository
func NewETFRepository(db *PostgresDB) *ETFRepository {
	return &ETFRepository{db: db}
}

// Create registers a new ETF. Registering an existing symbol fails with
// DUPLICATE_KEY and leaves the original entry untouched.
func (r *ETFRepository) Create(ctx context.Context, etf *models.ETF) error {
	query := `
		INSERT INTO etf_master (symbol, name, provider, type, source_url, listed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query,
		etf.Symbol,
		etf.Name,
		etf.Provider,
		etf.Type,
		etf.SourceURL,
		etf.ListedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.NewDuplicateKeyError("etf", etf.Symbol)
		}
		return apperrors.NewDatabaseError("create etf", err)
	}

	return nil
}

// GetBySymbol retrieves an ETF by its ticker symbol
func (r *ETFRepository) GetBySymbol(ctx context.Context, symbol string) (*models.ETF, error) {
	query := `
		SELECT symbol, name, provider, type, source_url, listed_at, created_at, updated_at
		FROM etf_master
		WHERE symbol = $1
	`

	var etf models.ETF
	err := r.db.Pool().QueryRow(ctx, query, symbol).Scan(
		&etf.Symbol,
		&etf.Name,
		&etf.Provider,
		&etf.Type,
		&etf.SourceURL,
		&etf.ListedAt,
		&etf.CreatedAt,
		&etf.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("etf", symbol)
		}
		return nil, apperrors.NewDatabaseError("get etf", err)
	}

	return &etf, nil
}

// List retrieves all registered ETFs ordered by symbol for determinism
func (r *ETFRepository) List(ctx context.Context) ([]*models.ETF, error) {
	query := `
		SELECT symbol, name, provider, type, source_url, listed_at, created_at, updated_at
		FROM etf_master
		ORDER BY symbol
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list etfs", err)
	}
	defer rows.Close()

	var etfs []*models.ETF
	for rows.Next() {
		var etf models.ETF
		err := rows.Scan(
			&etf.Symbol,
			&etf.Name,
			&etf.Provider,
			&etf.Type,
			&etf.SourceURL,
			&etf.ListedAt,
			&etf.CreatedAt,
			&etf.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan etf row: %w", err)
		}
		etfs = append(etfs, &etf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating etf rows: %w", err)
	}

	return etfs, nil
}

// UpsertMetadata refreshes the mutable metadata of an ETF, inserting it when
// absent. Mirrors the registration-on-startup path of the scraper deployment.
func (r *ETFRepository) UpsertMetadata(ctx context.Context, etf *models.ETF) error {
	query := `
		INSERT INTO etf_master (symbol, name, provider, type, source_url, listed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (symbol)
		DO UPDATE SET
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			type = EXCLUDED.type,
			source_url = EXCLUDED.source_url,
			listed_at = EXCLUDED.listed_at,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		etf.Symbol,
		etf.Name,
		etf.Provider,
		etf.Type,
		etf.SourceURL,
		etf.ListedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert etf", err)
	}

	return nil
}

// Delete removes an ETF and, through the foreign keys, cascades to delete its
// snapshots, change records and scrape runs. The cascade is an explicit part
// of the storage contract, not an accident: deleting a registry entry deletes
// the history it anchors.
func (r *ETFRepository) Delete(ctx context.Context, symbol string) error {
	query := `DELETE FROM etf_master WHERE symbol = $1`

	result, err := r.db.Pool().Exec(ctx, query, symbol)
	if err != nil {
		return apperrors.NewDatabaseError("delete etf", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("etf", symbol)
	}

	return nil
}
