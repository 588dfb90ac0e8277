// Package handlers provides HTTP handlers for portfolio factor exposures.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/exposure"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles exposure HTTP requests
type Handler struct {
	repo *exposure.Repository
	log  zerolog.Logger
}

// NewHandler creates a new exposure handler
func NewHandler(repo *exposure.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "exposure").Logger(),
	}
}

// RegisterRoutes registers exposure routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/exposure", h.HandleGetExposure)
}

// HandleGetExposure handles GET /api/exposure?date=&method=
// Without a date the latest computed portfolio date is used.
func (h *Handler) HandleGetExposure(w http.ResponseWriter, r *http.Request) {
	method, err := domain.ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		http.Error(w, "method is required", http.StatusBadRequest)
		return
	}

	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		if date, err = domain.ParseDate(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		latest, err := h.repo.LatestDate(method)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to get latest exposure date")
			http.Error(w, "Failed to get exposures", http.StatusInternalServerError)
			return
		}
		if latest == nil {
			http.Error(w, "No exposures computed", http.StatusNotFound)
			return
		}
		date = *latest
	}

	rows, err := h.repo.Get(date, method)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get exposures")
		http.Error(w, "Failed to get exposures", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []exposure.Exposure{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": rows,
		"metadata": map[string]interface{}{
			"timestamp":      time.Now().Format(time.RFC3339),
			"portfolio_date": domain.FormatDate(date),
			"method":         method,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
