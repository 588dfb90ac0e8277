// Package handlers provides HTTP handlers for beta history.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles beta HTTP requests
type Handler struct {
	repo *betas.Repository
	log  zerolog.Logger
}

// NewHandler creates a new beta handler
func NewHandler(repo *betas.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "betas").Logger(),
	}
}

// RegisterRoutes registers beta routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/betas", func(r chi.Router) {
		r.Get("/{security}", h.HandleGetHistory)
	})
}

// HandleGetHistory handles GET /api/betas/{security}?method=&factor=&limit=
// The method is required: results of different methods are never mixed.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	security := chi.URLParam(r, "security")

	method, err := domain.ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		http.Error(w, "method is required: SINGLE_RAW, SINGLE_ZSCORE, MULTI_RAW or MULTI_ZSCORE", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	history, err := h.repo.History(security, method, r.URL.Query().Get("factor"), limit)
	if err != nil {
		h.log.Error().Err(err).Str("security", security).Msg("Failed to get beta history")
		http.Error(w, "Failed to get beta history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []betas.Beta{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": history,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"method":    method,
			"count":     len(history),
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
