package api

import (
	"net/http"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/gorilla/mux"
)

// etfRequest is the registration / metadata-refresh payload.
type etfRequest struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Type      string `json:"type"`
	SourceURL string `json:"sourceUrl"`
	ListedAt  string `json:"listedAt,omitempty"`
}

func (req *etfRequest) toModel() (*models.ETF, error) {
	etf := &models.ETF{
		Symbol:    req.Symbol,
		Name:      req.Name,
		Provider:  req.Provider,
		Type:      req.Type,
		SourceURL: req.SourceURL,
	}

	if req.ListedAt != "" {
		listedAt, err := time.Parse(types.DateFormat, req.ListedAt)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid listedAt date", map[string]interface{}{
				"listedAt": req.ListedAt,
				"expected": types.DateFormat,
			})
		}
		etf.ListedAt = &listedAt
	}

	return etf, nil
}

// handleRegisterETF handles POST /api/v1/etfs
func (s *Server) handleRegisterETF(w http.ResponseWriter, r *http.Request) {
	var req etfRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeValidationError,
			"invalid request body: "+err.Error(), nil)
		return
	}

	etf, err := req.toModel()
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.registry.Register(r.Context(), etf); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, etf)
}

// handleListETFs handles GET /api/v1/etfs
func (s *Server) handleListETFs(w http.ResponseWriter, r *http.Request) {
	etfs, err := s.snapshots.ListETFs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if etfs == nil {
		etfs = []*models.ETF{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"etfs": etfs})
}

// handleGetETF handles GET /api/v1/etfs/{symbol}
func (s *Server) handleGetETF(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	etf, err := s.registry.Lookup(r.Context(), symbol)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, etf)
}

// handleRefreshETF handles PUT /api/v1/etfs/{symbol}
func (s *Server) handleRefreshETF(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req etfRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeValidationError,
			"invalid request body: "+err.Error(), nil)
		return
	}
	req.Symbol = symbol

	etf, err := req.toModel()
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.registry.RefreshMetadata(r.Context(), etf); err != nil {
		respondServiceError(w, err)
		return
	}

	// Echo the stored entity, not the request: the upsert stamped timestamps
	// the request-derived struct does not carry.
	stored, err := s.registry.Lookup(r.Context(), etf.Symbol)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stored)
}

// handleDeleteETF handles DELETE /api/v1/etfs/{symbol}. Deletion cascades to
// the ETF's snapshots, change records and scrape runs.
func (s *Server) handleDeleteETF(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if err := s.registry.Deregister(r.Context(), symbol); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
