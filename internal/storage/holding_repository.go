package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// HoldingRepository handles holdings snapshot persistence. Each snapshot (all
// rows for one ETF on one trade date) is written as a single transaction, so
// readers never observe a partially-ingested snapshot.
type HoldingRepository struct {
	db *PostgresDB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *PostgresDB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

const insertHoldingSQL = `
	INSERT INTO etf_holdings (
		etf_symbol, trade_date, holding_date, rank, security_id,
		isin, ticker_symbol, issuer_name, security_name, security_type,
		shares_held, market_value_twd, market_value_usd, weight_pct,
		source_url, scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

// InsertSnapshot persists all rows of one (etf, trade date) snapshot in a
// single transaction. A concurrent ingestion of the same key loses on the
// unique (etf_symbol, trade_date, security_id) constraint and surfaces as
// ALREADY_INGESTED; rows are never silently duplicated.
func (r *HoldingRepository) InsertSnapshot(ctx context.Context, rows []models.Holding) error {
	if len(rows) == 0 {
		return apperrors.NewValidationError("snapshot batch is empty", nil)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin snapshot insert", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	for i := range rows {
		h := &rows[i]
		_, err := tx.Exec(ctx, insertHoldingSQL,
			h.ETFSymbol, h.TradeDate, h.HoldingDate, h.Rank, h.SecurityID(),
			h.ISIN, h.TickerSymbol, h.IssuerName, h.SecurityName, h.SecurityType,
			h.SharesHeld, h.MarketValueTWD, h.MarketValueUSD, h.WeightPct,
			h.SourceURL, h.ScrapedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return apperrors.NewAlreadyIngestedError(h.ETFSymbol, h.TradeDate)
			}
			return apperrors.NewDatabaseError("insert holding", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit snapshot insert", err)
	}

	return nil
}

// ReplaceSnapshot transactionally replaces the snapshot for (etf, trade date):
// prior holding rows and their derived change records are deleted and the new
// rows inserted in one transaction. This is the force re-ingestion path; the
// derived changes go too because they were computed from rows that no longer
// exist.
func (r *HoldingRepository) ReplaceSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time, rows []models.Holding) error {
	if len(rows) == 0 {
		return apperrors.NewValidationError("snapshot batch is empty", nil)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin snapshot replace", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM etf_holding_changes WHERE etf_symbol = $1 AND trade_date = $2`,
		etfSymbol, tradeDate,
	); err != nil {
		return apperrors.NewDatabaseError("delete stale changes", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM etf_holdings WHERE etf_symbol = $1 AND trade_date = $2`,
		etfSymbol, tradeDate,
	); err != nil {
		return apperrors.NewDatabaseError("delete prior snapshot", err)
	}

	for i := range rows {
		h := &rows[i]
		_, err := tx.Exec(ctx, insertHoldingSQL,
			h.ETFSymbol, h.TradeDate, h.HoldingDate, h.Rank, h.SecurityID(),
			h.ISIN, h.TickerSymbol, h.IssuerName, h.SecurityName, h.SecurityType,
			h.SharesHeld, h.MarketValueTWD, h.MarketValueUSD, h.WeightPct,
			h.SourceURL, h.ScrapedAt,
		)
		if err != nil {
			return apperrors.NewDatabaseError("insert holding", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit snapshot replace", err)
	}

	return nil
}

// SnapshotExists reports whether any rows exist for (etf, trade date)
func (r *HoldingRepository) SnapshotExists(ctx context.Context, etfSymbol string, tradeDate time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM etf_holdings WHERE etf_symbol = $1 AND trade_date = $2
		)
	`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, etfSymbol, tradeDate).Scan(&exists); err != nil {
		return false, apperrors.NewDatabaseError("check snapshot exists", err)
	}

	return exists, nil
}

// GetSnapshot returns the ordered rows of one snapshot. An empty result is a
// valid state ("no snapshot yet"), not an error.
func (r *HoldingRepository) GetSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error) {
	query := `
		SELECT etf_symbol, trade_date, holding_date, rank,
			   isin, ticker_symbol, issuer_name, security_name, security_type,
			   shares_held, market_value_twd, market_value_usd, weight_pct,
			   source_url, scraped_at
		FROM etf_holdings
		WHERE etf_symbol = $1 AND trade_date = $2
		ORDER BY rank NULLS LAST, security_name
	`

	rows, err := r.db.Pool().Query(ctx, query, etfSymbol, tradeDate)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get snapshot", err)
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		var h models.Holding
		err := rows.Scan(
			&h.ETFSymbol, &h.TradeDate, &h.HoldingDate, &h.Rank,
			&h.ISIN, &h.TickerSymbol, &h.IssuerName, &h.SecurityName, &h.SecurityType,
			&h.SharesHeld, &h.MarketValueTWD, &h.MarketValueUSD, &h.WeightPct,
			&h.SourceURL, &h.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding row: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}

	return holdings, nil
}

// LatestTradeDates returns up to limit distinct trade dates with data for the
// ETF, most recent first, optionally bounded to dates at or before a cutoff.
// Fewer than limit dates means the ETF's history is that short.
func (r *HoldingRepository) LatestTradeDates(ctx context.Context, etfSymbol string, before *time.Time, limit int) ([]time.Time, error) {
	query := `
		SELECT DISTINCT trade_date
		FROM etf_holdings
		WHERE etf_symbol = $1 AND ($2::date IS NULL OR trade_date <= $2)
		ORDER BY trade_date DESC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, etfSymbol, before, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query latest trade dates", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan trade date: %w", err)
		}
		dates = append(dates, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade dates: %w", err)
	}

	return dates, nil
}
