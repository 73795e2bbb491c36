package service

import (
	"context"
	"fmt"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/google/uuid"
)

// ScrapeRunStore is the persistence surface for run lifecycle records.
type ScrapeRunStore interface {
	Create(ctx context.Context, run *models.ScrapeRun) error
	Finish(ctx context.Context, id uuid.UUID, status types.RunStatus, pagesScraped, holdingsCount int, errorMessage *string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScrapeRun, error)
	ListByETF(ctx context.Context, etfSymbol string, limit int) ([]*models.ScrapeRun, error)
	ListUnfinished(ctx context.Context, olderThan time.Time) ([]*models.ScrapeRun, error)
}

// RunTracker records the lifecycle of scrape attempts. Each attempt gets its
// own row; retrying a date produces a new run rather than mutating the old
// one.
type RunTracker struct {
	runs ScrapeRunStore
}

// NewRunTracker creates a new run tracker
func NewRunTracker(runs ScrapeRunStore) *RunTracker {
	return &RunTracker{runs: runs}
}

// Start creates a run in STARTED state and returns it.
func (t *RunTracker) Start(ctx context.Context, etfSymbol string, scrapeDate time.Time, externalRequestID string) (*models.ScrapeRun, error) {
	run := &models.ScrapeRun{
		ID:         uuid.New(),
		ETFSymbol:  etfSymbol,
		ScrapeDate: scrapeDate,
		Status:     types.RunStarted,
		StartedAt:  time.Now().UTC(),
	}
	if externalRequestID != "" {
		run.ExternalRequestID = &externalRequestID
	}

	if err := t.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// Finish transitions a run to its terminal status. Only SUCCEEDED and FAILED
// are accepted; finishing an already-finished run fails with
// ALREADY_FINISHED and leaves the first result untouched.
func (t *RunTracker) Finish(ctx context.Context, id uuid.UUID, status types.RunStatus, pagesScraped, holdingsCount int, errorMessage *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not a terminal run status", status)
	}
	return t.runs.Finish(ctx, id, status, pagesScraped, holdingsCount, errorMessage)
}

// Get retrieves a run by id.
func (t *RunTracker) Get(ctx context.Context, id uuid.UUID) (*models.ScrapeRun, error) {
	return t.runs.GetByID(ctx, id)
}

// History returns the run history for an ETF, most recent first.
func (t *RunTracker) History(ctx context.Context, etfSymbol string, limit int) ([]*models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	return t.runs.ListByETF(ctx, etfSymbol, limit)
}

// ListStale returns STARTED runs older than the threshold: runs whose process
// likely crashed before finishing. They are surfaced for operational
// auditing; recovery is the external scheduler's call, which may simply start
// a new run.
func (t *RunTracker) ListStale(ctx context.Context, threshold time.Duration) ([]*models.ScrapeRun, error) {
	return t.runs.ListUnfinished(ctx, time.Now().UTC().Add(-threshold))
}
