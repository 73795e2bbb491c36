package service

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/google/uuid"
)

// In-memory store fakes mirroring the repository semantics the services rely
// on: uniqueness rejection, transactional replace, finish-once runs.

type fakeETFStore struct {
	etfs map[string]*models.ETF
}

func newFakeETFStore(symbols ...string) *fakeETFStore {
	s := &fakeETFStore{etfs: make(map[string]*models.ETF)}
	for _, sym := range symbols {
		s.etfs[sym] = &models.ETF{Symbol: sym, Name: "ETF " + sym}
	}
	return s
}

func (s *fakeETFStore) GetBySymbol(_ context.Context, symbol string) (*models.ETF, error) {
	etf, ok := s.etfs[symbol]
	if !ok {
		return nil, apperrors.NewNotFoundError("etf", symbol)
	}
	return etf, nil
}

type fakeHoldingStore struct {
	// snapshots[etf][date formatted as types.DateFormat]
	snapshots map[string]map[string][]models.Holding
}

func newFakeHoldingStore() *fakeHoldingStore {
	return &fakeHoldingStore{snapshots: make(map[string]map[string][]models.Holding)}
}

func (s *fakeHoldingStore) dateKey(d time.Time) string { return d.Format(types.DateFormat) }

func (s *fakeHoldingStore) SnapshotExists(_ context.Context, etfSymbol string, tradeDate time.Time) (bool, error) {
	rows, ok := s.snapshots[etfSymbol][s.dateKey(tradeDate)]
	return ok && len(rows) > 0, nil
}

func (s *fakeHoldingStore) InsertSnapshot(_ context.Context, rows []models.Holding) error {
	etf := rows[0].ETFSymbol
	key := s.dateKey(rows[0].TradeDate)
	if _, exists := s.snapshots[etf][key]; exists {
		return apperrors.NewAlreadyIngestedError(etf, rows[0].TradeDate)
	}
	if s.snapshots[etf] == nil {
		s.snapshots[etf] = make(map[string][]models.Holding)
	}
	s.snapshots[etf][key] = append([]models.Holding(nil), rows...)
	return nil
}

func (s *fakeHoldingStore) ReplaceSnapshot(_ context.Context, etfSymbol string, tradeDate time.Time, rows []models.Holding) error {
	if s.snapshots[etfSymbol] == nil {
		s.snapshots[etfSymbol] = make(map[string][]models.Holding)
	}
	s.snapshots[etfSymbol][s.dateKey(tradeDate)] = append([]models.Holding(nil), rows...)
	return nil
}

func (s *fakeHoldingStore) GetSnapshot(_ context.Context, etfSymbol string, tradeDate time.Time) ([]models.Holding, error) {
	return append([]models.Holding(nil), s.snapshots[etfSymbol][s.dateKey(tradeDate)]...), nil
}

func (s *fakeHoldingStore) LatestTradeDates(_ context.Context, etfSymbol string, before *time.Time, limit int) ([]time.Time, error) {
	keys := make([]string, 0, len(s.snapshots[etfSymbol]))
	for k := range s.snapshots[etfSymbol] {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	dates := make([]time.Time, 0, limit)
	for _, k := range keys {
		d, err := time.Parse(types.DateFormat, k)
		if err != nil {
			return nil, err
		}
		if before != nil && d.After(*before) {
			continue
		}
		dates = append(dates, d)
		if len(dates) == limit {
			break
		}
	}
	return dates, nil
}

func (s *fakeHoldingStore) rowCount(etfSymbol string, tradeDate time.Time) int {
	return len(s.snapshots[etfSymbol][s.dateKey(tradeDate)])
}

type fakeChangeStore struct {
	// changes[etf][date]
	changes map[string]map[string][]models.HoldingChange
}

func newFakeChangeStore() *fakeChangeStore {
	return &fakeChangeStore{changes: make(map[string]map[string][]models.HoldingChange)}
}

func (s *fakeChangeStore) ReplaceForDate(_ context.Context, etfSymbol string, tradeDate time.Time, changes []models.HoldingChange) error {
	if s.changes[etfSymbol] == nil {
		s.changes[etfSymbol] = make(map[string][]models.HoldingChange)
	}
	s.changes[etfSymbol][tradeDate.Format(types.DateFormat)] = append([]models.HoldingChange(nil), changes...)
	return nil
}

func (s *fakeChangeStore) forDate(etfSymbol string, tradeDate time.Time) []models.HoldingChange {
	return s.changes[etfSymbol][tradeDate.Format(types.DateFormat)]
}

type fakeRunStore struct {
	runs map[uuid.UUID]*models.ScrapeRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*models.ScrapeRun)}
}

func (s *fakeRunStore) Create(_ context.Context, run *models.ScrapeRun) error {
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) Finish(_ context.Context, id uuid.UUID, status types.RunStatus, pagesScraped, holdingsCount int, errorMessage *string) error {
	run, ok := s.runs[id]
	if !ok {
		return apperrors.NewNotFoundError("scrape run", id.String())
	}
	if run.FinishedAt != nil {
		return apperrors.NewAlreadyFinishedError(id.String())
	}
	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	run.PagesScraped = pagesScraped
	run.HoldingsCount = holdingsCount
	run.ErrorMessage = errorMessage
	return nil
}

func (s *fakeRunStore) GetByID(_ context.Context, id uuid.UUID) (*models.ScrapeRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("scrape run", id.String())
	}
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) ListByETF(_ context.Context, etfSymbol string, limit int) ([]*models.ScrapeRun, error) {
	out := make([]*models.ScrapeRun, 0)
	for _, run := range s.runs {
		if run.ETFSymbol == etfSymbol {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRunStore) ListUnfinished(_ context.Context, olderThan time.Time) ([]*models.ScrapeRun, error) {
	out := make([]*models.ScrapeRun, 0)
	for _, run := range s.runs {
		if run.FinishedAt == nil && run.StartedAt.Before(olderThan) {
			cp := *run
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeRunStore) onlyRun() *models.ScrapeRun {
	for _, run := range s.runs {
		return run
	}
	return nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) InvalidateSnapshot(_ context.Context, etfSymbol string, tradeDate time.Time) {
	f.invalidated = append(f.invalidated, etfSymbol+"@"+tradeDate.Format(types.DateFormat))
}
