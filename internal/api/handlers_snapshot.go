package api

import (
	"net/http"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/service"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// holdingRowRequest is one scraped holding row in an ingestion payload.
type holdingRowRequest struct {
	Rank           *int            `json:"rank,omitempty"`
	ISIN           *string         `json:"isin,omitempty"`
	TickerSymbol   *string         `json:"tickerSymbol,omitempty"`
	IssuerName     string          `json:"issuerName"`
	SecurityName   string          `json:"securityName"`
	SecurityType   string          `json:"securityType"`
	SharesHeld     decimal.Decimal `json:"sharesHeld"`
	MarketValueTWD decimal.Decimal `json:"marketValueTwd"`
	MarketValueUSD decimal.Decimal `json:"marketValueUsd"`
	WeightPct      decimal.Decimal `json:"weightPct"`
	HoldingDate    string          `json:"holdingDate,omitempty"`
	SourceURL      string          `json:"sourceUrl,omitempty"`
}

// ingestRequest is the ingestion payload produced by the external scraper.
type ingestRequest struct {
	TradeDate         string              `json:"tradeDate"`
	ExternalRequestID string              `json:"externalRequestId,omitempty"`
	PagesScraped      int                 `json:"pagesScraped,omitempty"`
	Rows              []holdingRowRequest `json:"rows"`
}

func parseDateParam(name, value string) (time.Time, error) {
	d, err := time.Parse(types.DateFormat, value)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("invalid "+name+" date", map[string]interface{}{
			name:       value,
			"expected": types.DateFormat,
		})
	}
	return d, nil
}

// handleIngestSnapshot handles POST /api/v1/etfs/{symbol}/snapshots.
// A repeated ingestion for the same trade date is rejected unless ?force=true
// is given, in which case the prior snapshot is replaced transactionally.
func (s *Server) handleIngestSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req ingestRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeValidationError,
			"invalid request body: "+err.Error(), nil)
		return
	}

	tradeDate, err := parseDateParam("tradeDate", req.TradeDate)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	rows := make([]models.Holding, len(req.Rows))
	for i, row := range req.Rows {
		h := models.Holding{
			Rank:           row.Rank,
			ISIN:           row.ISIN,
			TickerSymbol:   row.TickerSymbol,
			IssuerName:     row.IssuerName,
			SecurityName:   row.SecurityName,
			SecurityType:   row.SecurityType,
			SharesHeld:     row.SharesHeld,
			MarketValueTWD: row.MarketValueTWD,
			MarketValueUSD: row.MarketValueUSD,
			WeightPct:      row.WeightPct,
			SourceURL:      row.SourceURL,
		}
		if row.HoldingDate != "" {
			holdingDate, err := parseDateParam("holdingDate", row.HoldingDate)
			if err != nil {
				respondServiceError(w, err)
				return
			}
			h.HoldingDate = &holdingDate
		}
		rows[i] = h
	}

	result, err := s.ingestor.Ingest(r.Context(), &service.IngestInput{
		ETFSymbol:         symbol,
		TradeDate:         tradeDate,
		Force:             r.URL.Query().Get("force") == "true",
		ExternalRequestID: req.ExternalRequestID,
		PagesScraped:      req.PagesScraped,
		Rows:              rows,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleGetSnapshot handles GET /api/v1/etfs/{symbol}/snapshots/{date}.
// An empty holdings list means no snapshot exists for that date; that is a
// valid state, not a 404.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tradeDate, err := parseDateParam("date", vars["date"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	holdings, err := s.snapshots.GetSnapshot(r.Context(), vars["symbol"], tradeDate)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"etfSymbol": vars["symbol"],
		"tradeDate": tradeDate.Format(types.DateFormat),
		"holdings":  holdings,
	})
}

// handleGetChanges handles GET /api/v1/etfs/{symbol}/snapshots/{date}/changes
func (s *Server) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tradeDate, err := parseDateParam("date", vars["date"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	changes, err := s.changes.GetByETFAndDate(r.Context(), vars["symbol"], tradeDate)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"etfSymbol": vars["symbol"],
		"tradeDate": tradeDate.Format(types.DateFormat),
		"changes":   changes,
	})
}

// handleDiff handles POST /api/v1/etfs/{symbol}/diff. Re-runs change
// detection over the two most recent snapshots, optionally bounded by a
// ?before=YYYY-MM-DD cutoff.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		d, err := parseDateParam("before", raw)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		before = &d
	}

	result, err := s.detector.DetectAndStore(r.Context(), symbol, before)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
