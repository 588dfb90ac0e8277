// Package handlers provides HTTP handlers for risk decomposition.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles risk HTTP requests
type Handler struct {
	repo *risk.Repository
	log  zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(repo *risk.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "risk").Logger(),
	}
}

// RegisterRoutes registers risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/decomposition", h.HandleGetDecomposition)
		r.Get("/covariance", h.HandleGetCovariance)
	})
}

// HandleGetDecomposition handles GET /api/risk/decomposition?date=&method=
func (h *Handler) HandleGetDecomposition(w http.ResponseWriter, r *http.Request) {
	method, date, ok := h.resolve(w, r)
	if !ok {
		return
	}

	rows, err := h.repo.Get(date, method)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get risk decomposition")
		http.Error(w, "Failed to get risk decomposition", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []risk.Decomposition{}
	}

	metadata := map[string]interface{}{
		"timestamp":      time.Now().Format(time.RFC3339),
		"portfolio_date": domain.FormatDate(date),
		"method":         method,
	}
	if len(rows) > 0 {
		metadata["portfolio_variance_total"] = rows[0].PortfolioVarianceTotal
		metadata["portfolio_ann_vol_total"] = rows[0].PortfolioAnnVolTotal
		metadata["cov_n_obs"] = rows[0].CovNObs
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     rows,
		"metadata": metadata,
	})
}

// HandleGetCovariance handles GET /api/risk/covariance?date=&method=
func (h *Handler) HandleGetCovariance(w http.ResponseWriter, r *http.Request) {
	method, date, ok := h.resolve(w, r)
	if !ok {
		return
	}

	snap, err := h.repo.GetCovariance(date, method)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get covariance snapshot")
		http.Error(w, "Failed to get covariance", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Covariance not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// resolve reads method and date; a missing date means the latest
// decomposed portfolio date. It writes the error response itself.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (domain.Method, time.Time, bool) {
	method, err := domain.ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		http.Error(w, "method is required", http.StatusBadRequest)
		return "", time.Time{}, false
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return "", time.Time{}, false
		}
		return method, date, true
	}

	latest, err := h.repo.LatestDate(method)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest risk date")
		http.Error(w, "Failed to get risk decomposition", http.StatusInternalServerError)
		return "", time.Time{}, false
	}
	if latest == nil {
		http.Error(w, "No risk decomposition computed", http.StatusNotFound)
		return "", time.Time{}, false
	}
	return method, *latest, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
