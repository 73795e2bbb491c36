package models

import (
	"time"

	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/google/uuid"
)

// ScrapeRun records one attempt to fetch and ingest an ETF's holdings for one
// date. A retried attempt gets a new row; finished rows are never mutated, so
// the log preserves the full audit history. A STARTED run with no FinishedAt
// is the crash signature the stale-run query looks for.
type ScrapeRun struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ETFSymbol string    `json:"etfSymbol" db:"etf_symbol"`
	// ScrapeDate is the trade date the attempt targeted, not the wall-clock
	// day it ran on.
	ScrapeDate    time.Time       `json:"scrapeDate" db:"scrape_date"`
	Status        types.RunStatus `json:"status" db:"status"`
	StartedAt     time.Time       `json:"startedAt" db:"started_at"`
	FinishedAt    *time.Time      `json:"finishedAt,omitempty" db:"finished_at"`
	PagesScraped  int             `json:"pagesScraped" db:"pages_scraped"`
	HoldingsCount int             `json:"holdingsCount" db:"holdings_count"`
	ErrorMessage  *string         `json:"errorMessage,omitempty" db:"error_message"`
	// ExternalRequestID correlates the run with the upstream fetch provider.
	ExternalRequestID *string `json:"externalRequestId,omitempty" db:"external_request_id"`
}
