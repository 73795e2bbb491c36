package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
)

// ChangeRepository handles change record persistence
type ChangeRepository struct {
	db *PostgresDB
}

// NewChangeRepository creates a new change repository
func NewChangeRepository(db *PostgresDB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

// ReplaceForDate atomically replaces the change records for (etf, trade date)
// with the given batch. Delete-then-insert in one transaction keeps re-running
// the diff reproducible: the change log for a date is always exactly the
// output of one diff, never a mix of two.
func (r *ChangeRepository) ReplaceForDate(ctx context.Context, etfSymbol string, tradeDate time.Time, changes []models.HoldingChange) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin change replace", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM etf_holding_changes WHERE etf_symbol = $1 AND trade_date = $2`,
		etfSymbol, tradeDate,
	); err != nil {
		return apperrors.NewDatabaseError("delete prior changes", err)
	}

	query := `
		INSERT INTO etf_holding_changes (
			etf_symbol, trade_date, security_id, security_name, change_type,
			prev_weight_pct, new_weight_pct, weight_delta,
			prev_shares, new_shares, shares_delta, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`

	for i := range changes {
		c := &changes[i]
		_, err := tx.Exec(ctx, query,
			c.ETFSymbol, c.TradeDate, c.SecurityID, c.SecurityName, c.ChangeType,
			c.PrevWeightPct, c.NewWeightPct, c.WeightDelta,
			c.PrevShares, c.NewShares, c.SharesDelta,
		)
		if err != nil {
			return apperrors.NewDatabaseError("insert change record", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit change replace", err)
	}

	return nil
}

// GetByETFAndDate retrieves the change records for (etf, trade date), ordered
// by security id for determinism
func (r *ChangeRepository) GetByETFAndDate(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.HoldingChange, error) {
	query := `
		SELECT id, etf_symbol, trade_date, security_id, security_name, change_type,
			   prev_weight_pct, new_weight_pct, weight_delta,
			   prev_shares, new_shares, shares_delta, created_at
		FROM etf_holding_changes
		WHERE etf_symbol = $1 AND trade_date = $2
		ORDER BY security_id
	`

	rows, err := r.db.Pool().Query(ctx, query, etfSymbol, tradeDate)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get changes", err)
	}
	defer rows.Close()

	changes := make([]models.HoldingChange, 0)
	for rows.Next() {
		var c models.HoldingChange
		err := rows.Scan(
			&c.ID, &c.ETFSymbol, &c.TradeDate, &c.SecurityID, &c.SecurityName, &c.ChangeType,
			&c.PrevWeightPct, &c.NewWeightPct, &c.WeightDelta,
			&c.PrevShares, &c.NewShares, &c.SharesDelta, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change rows: %w", err)
	}

	return changes, nil
}
