// Package handlers provides HTTP handlers for factor rankings.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/ranking"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles ranking HTTP requests
type Handler struct {
	service *ranking.Service
	log     zerolog.Logger
}

// NewHandler creates a new ranking handler
func NewHandler(service *ranking.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ranking").Logger(),
	}
}

// RegisterRoutes registers ranking routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rankings", func(r chi.Router) {
		r.Get("/{factor}", h.HandleGetRanking)
	})
}

// HandleGetRanking handles GET /api/rankings/{factor}?date=&method=&axis=&n=
// date defaults to today, axis to SENSITIVITY.
func (h *Handler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	factor := chi.URLParam(r, "factor")
	q := r.URL.Query()

	method, err := domain.ParseMethod(q.Get("method"))
	if err != nil {
		http.Error(w, "method is required", http.StatusBadRequest)
		return
	}

	date := domain.Truncate(time.Now())
	if raw := q.Get("date"); raw != "" {
		if date, err = domain.ParseDate(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	axis := ranking.AxisSensitivity
	if raw := q.Get("axis"); raw != "" {
		if axis, err = ranking.ParseAxis(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	n := 0
	if raw := q.Get("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil || n <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	slices, err := h.service.Slices(date, method, factor, axis, n)
	if err != nil {
		h.log.Error().Err(err).Str("factor", factor).Msg("Failed to rank securities")
		http.Error(w, "Failed to get rankings", http.StatusInternalServerError)
		return
	}
	if slices.Top == nil {
		slices.Top = []ranking.Entry{}
	}
	if slices.Bottom == nil {
		slices.Bottom = []ranking.Entry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": slices,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"as_of":     domain.FormatDate(date),
			"method":    method,
			"axis":      axis,
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
