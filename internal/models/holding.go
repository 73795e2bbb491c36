// Package models defines the persisted entities of the ETF holdings tracker.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one security's reported position within one ETF on one trade
// date. The triple (ETFSymbol, TradeDate, SecurityID()) is unique in storage.
//
// Identifier fields are nullable because source data quality varies: some
// providers publish ISINs, some only local tickers, some only a display name.
type Holding struct {
	ETFSymbol string    `json:"etfSymbol" db:"etf_symbol"`
	TradeDate time.Time `json:"tradeDate" db:"trade_date"`
	// HoldingDate is the effective date reported by the source when it lags
	// the scrape's trade date.
	HoldingDate    *time.Time      `json:"holdingDate,omitempty" db:"holding_date"`
	Rank           *int            `json:"rank,omitempty" db:"rank"`
	ISIN           *string         `json:"isin,omitempty" db:"isin"`
	TickerSymbol   *string         `json:"tickerSymbol,omitempty" db:"ticker_symbol"`
	IssuerName     string          `json:"issuerName" db:"issuer_name"`
	SecurityName   string          `json:"securityName" db:"security_name"`
	SecurityType   string          `json:"securityType" db:"security_type"`
	SharesHeld     decimal.Decimal `json:"sharesHeld" db:"shares_held"`
	MarketValueTWD decimal.Decimal `json:"marketValueTwd" db:"market_value_twd"`
	MarketValueUSD decimal.Decimal `json:"marketValueUsd" db:"market_value_usd"`
	WeightPct      decimal.Decimal `json:"weightPct" db:"weight_pct"`
	SourceURL      string          `json:"sourceUrl,omitempty" db:"source_url"`
	ScrapedAt      time.Time       `json:"scrapedAt" db:"scraped_at"`
}

// SecurityID returns the identifier the snapshot uniqueness constraint and the
// change detector key on: ISIN when present, else the local ticker, else the
// security display name. The fallback chain means inconsistently populated
// identifiers across runs can pair as spurious ADDED/REMOVED records; that is
// a documented limitation of identifier-keyed matching.
func (h *Holding) SecurityID() string {
	if h.ISIN != nil && *h.ISIN != "" {
		return *h.ISIN
	}
	if h.TickerSymbol != nil && *h.TickerSymbol != "" {
		return *h.TickerSymbol
	}
	return h.SecurityName
}
