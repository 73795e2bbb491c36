package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/gorilla/mux"
)

// defaultStaleThreshold is how old a STARTED run must be before it is
// considered abandoned by a crashed scrape process.
const defaultStaleThreshold = 2 * time.Hour

// handleListRuns handles GET /api/v1/etfs/{symbol}/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.runs.History(r.Context(), symbol, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if runs == nil {
		runs = []*models.ScrapeRun{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleListStaleRuns handles GET /api/v1/runs/stale. Surfaces STARTED runs
// left unfinished by crashed processes; recovery is the scheduler's decision.
func (s *Server) handleListStaleRuns(w http.ResponseWriter, r *http.Request) {
	threshold := defaultStaleThreshold
	if raw := r.URL.Query().Get("olderThan"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			threshold = parsed
		}
	}

	runs, err := s.runs.ListStale(r.Context(), threshold)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if runs == nil {
		runs = []*models.ScrapeRun{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
