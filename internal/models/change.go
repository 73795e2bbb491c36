package models

import (
	"time"

	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/shopspring/decimal"
)

// HoldingChange is the detected delta for one security between an ETF's prior
// and current trade-date snapshots. Rows are written under the current trade
// date, immutable once stored, and fully reproducible from the two snapshots.
//
// Prev* fields are nil for ADDED records and New* fields are nil for REMOVED
// records: a NULL distinguishes "not present in that snapshot" from "present
// with zero weight".
type HoldingChange struct {
	ID            int64            `json:"id" db:"id"`
	ETFSymbol     string           `json:"etfSymbol" db:"etf_symbol"`
	TradeDate     time.Time        `json:"tradeDate" db:"trade_date"`
	SecurityID    string           `json:"securityId" db:"security_id"`
	SecurityName  string           `json:"securityName" db:"security_name"`
	ChangeType    types.ChangeType `json:"changeType" db:"change_type"`
	PrevWeightPct *decimal.Decimal `json:"prevWeightPct,omitempty" db:"prev_weight_pct"`
	NewWeightPct  *decimal.Decimal `json:"newWeightPct,omitempty" db:"new_weight_pct"`
	WeightDelta   decimal.Decimal  `json:"weightDelta" db:"weight_delta"`
	PrevShares    *decimal.Decimal `json:"prevShares,omitempty" db:"prev_shares"`
	NewShares     *decimal.Decimal `json:"newShares,omitempty" db:"new_shares"`
	SharesDelta   decimal.Decimal  `json:"sharesDelta" db:"shares_delta"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
}
