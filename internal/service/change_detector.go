// Package service implements the ingestion, change-detection and run-tracking
// operations of the ETF holdings tracker.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/shopspring/decimal"
)

// HoldingReader is the snapshot-store read surface the detector needs.
type HoldingReader interface {
	GetSnapshot(ctx context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error)
	LatestTradeDates(ctx context.Context, etfSymbol string, before *time.Time, limit int) ([]time.Time, error)
}

// ChangeWriter persists a diff batch atomically.
type ChangeWriter interface {
	ReplaceForDate(ctx context.Context, etfSymbol string, tradeDate time.Time, changes []models.HoldingChange) error
}

// ChangeDetector computes and persists row-level diffs between an ETF's two
// most recent snapshots.
type ChangeDetector struct {
	holdings HoldingReader
	changes  ChangeWriter
	logger   *logging.Logger
}

// NewChangeDetector creates a new change detector
func NewChangeDetector(holdings HoldingReader, changes ChangeWriter, logger *logging.Logger) *ChangeDetector {
	return &ChangeDetector{
		holdings: holdings,
		changes:  changes,
		logger:   logger,
	}
}

// DiffResult describes the outcome of one change-detection pass.
type DiffResult struct {
	ETFSymbol string `json:"etfSymbol"`
	// NoPriorSnapshot is true when fewer than two snapshot dates exist: a
	// legitimate terminal outcome for an ETF's first-ever ingestion, not an
	// error.
	NoPriorSnapshot bool       `json:"noPriorSnapshot"`
	TradeDate       *time.Time `json:"tradeDate,omitempty"`
	PrevTradeDate   *time.Time `json:"prevTradeDate,omitempty"`
	ChangeCount     int        `json:"changeCount"`
}

// DetectAndStore loads the ETF's two most recent snapshots (optionally bounded
// to dates at or before a cutoff), diffs them and writes the result under the
// newer trade date as one atomic batch. The change log for that date is fully
// replaced, so re-running the diff always reproduces the same state.
func (d *ChangeDetector) DetectAndStore(ctx context.Context, etfSymbol string, before *time.Time) (*DiffResult, error) {
	dates, err := d.holdings.LatestTradeDates(ctx, etfSymbol, before, 2)
	if err != nil {
		return nil, err
	}

	if len(dates) < 2 {
		return &DiffResult{ETFSymbol: etfSymbol, NoPriorSnapshot: true}, nil
	}

	currDate, prevDate := dates[0], dates[1]

	curr, err := d.holdings.GetSnapshot(ctx, etfSymbol, currDate)
	if err != nil {
		return nil, err
	}
	prev, err := d.holdings.GetSnapshot(ctx, etfSymbol, prevDate)
	if err != nil {
		return nil, err
	}

	changes := ComputeChanges(etfSymbol, currDate, prev, curr)

	if err := d.changes.ReplaceForDate(ctx, etfSymbol, currDate, changes); err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"etf":       etfSymbol,
		"tradeDate": currDate.Format(types.DateFormat),
		"prevDate":  prevDate.Format(types.DateFormat),
		"changes":   len(changes),
	}).Info("change detection completed")

	return &DiffResult{
		ETFSymbol:     etfSymbol,
		TradeDate:     &currDate,
		PrevTradeDate: &prevDate,
		ChangeCount:   len(changes),
	}, nil
}

// ComputeChanges diffs two snapshots of the same ETF, keyed on the security
// identifier. It is a pure function of its inputs: given the same two
// snapshots it always produces the same records, in security-id order.
//
// Classification:
//   - in curr only:           ADDED (prev values nil)
//   - in prev only:           REMOVED (curr values nil)
//   - both, weight delta > 0: INCREASED
//   - both, weight delta < 0: DECREASED
//   - both, weight delta = 0, shares delta != 0: UNCHANGED_WEIGHT_SHARES_MOVED
//   - both deltas exactly zero: no record; the change log stays sparse.
func ComputeChanges(etfSymbol string, tradeDate time.Time, prev, curr []models.Holding) []models.HoldingChange {
	prevByID := indexBySecurityID(prev)
	currByID := indexBySecurityID(curr)

	ids := make([]string, 0, len(prevByID)+len(currByID))
	for id := range currByID {
		ids = append(ids, id)
	}
	for id := range prevByID {
		if _, ok := currByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	changes := make([]models.HoldingChange, 0)
	for _, id := range ids {
		p, inPrev := prevByID[id]
		c, inCurr := currByID[id]

		switch {
		case inCurr && !inPrev:
			changes = append(changes, models.HoldingChange{
				ETFSymbol:    etfSymbol,
				TradeDate:    tradeDate,
				SecurityID:   id,
				SecurityName: c.SecurityName,
				ChangeType:   types.ChangeAdded,
				NewWeightPct: decimalPtr(c.WeightPct),
				NewShares:    decimalPtr(c.SharesHeld),
				WeightDelta:  c.WeightPct,
				SharesDelta:  c.SharesHeld,
			})

		case inPrev && !inCurr:
			changes = append(changes, models.HoldingChange{
				ETFSymbol:     etfSymbol,
				TradeDate:     tradeDate,
				SecurityID:    id,
				SecurityName:  p.SecurityName,
				ChangeType:    types.ChangeRemoved,
				PrevWeightPct: decimalPtr(p.WeightPct),
				PrevShares:    decimalPtr(p.SharesHeld),
				WeightDelta:   p.WeightPct.Neg(),
				SharesDelta:   p.SharesHeld.Neg(),
			})

		default:
			weightDelta := c.WeightPct.Sub(p.WeightPct)
			sharesDelta := c.SharesHeld.Sub(p.SharesHeld)

			if weightDelta.IsZero() && sharesDelta.IsZero() {
				continue
			}

			var changeType types.ChangeType
			switch {
			case weightDelta.IsPositive():
				changeType = types.ChangeIncreased
			case weightDelta.IsNegative():
				changeType = types.ChangeDecreased
			default:
				// Rebalancing without a weight change; must not be dropped.
				changeType = types.ChangeSharesMoved
			}

			changes = append(changes, models.HoldingChange{
				ETFSymbol:     etfSymbol,
				TradeDate:     tradeDate,
				SecurityID:    id,
				SecurityName:  c.SecurityName,
				ChangeType:    changeType,
				PrevWeightPct: decimalPtr(p.WeightPct),
				NewWeightPct:  decimalPtr(c.WeightPct),
				WeightDelta:   weightDelta,
				PrevShares:    decimalPtr(p.SharesHeld),
				NewShares:     decimalPtr(c.SharesHeld),
				SharesDelta:   sharesDelta,
			})
		}
	}

	return changes
}

// indexBySecurityID maps a snapshot by security id. Later duplicates cannot
// occur in persisted snapshots; the uniqueness constraint guarantees it.
func indexBySecurityID(rows []models.Holding) map[string]*models.Holding {
	m := make(map[string]*models.Holding, len(rows))
	for i := range rows {
		m[rows[i].SecurityID()] = &rows[i]
	}
	return m
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
