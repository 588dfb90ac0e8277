// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.PortfolioService
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.PortfolioService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/positions", h.HandleGetPositions)
		r.Get("/snapshots", h.HandleGetSnapshots)
		r.Post("/snapshots", h.HandleImportSnapshot)
	})
}

// HandleGetPositions handles GET /api/portfolio/positions?date=
// The latest snapshot on or before date is returned.
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := domain.ParseDate(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		asOf = t
	}

	positions, date, err := h.service.PositionsAsOf(asOf)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get positions")
		h.writeError(w, http.StatusInternalServerError, "Failed to get positions")
		return
	}
	if date == nil {
		h.writeError(w, http.StatusNotFound, "no portfolio snapshot found")
		return
	}

	snap, err := h.service.Repository().GetSnapshot(*date)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"as_of_date": domain.FormatDate(*date),
			"snapshot":   snap,
			"positions":  positions,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSnapshots handles GET /api/portfolio/snapshots
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	dates, err := h.service.Repository().SnapshotDates(100)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = domain.FormatDate(d)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": out,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleImportSnapshot handles POST /api/portfolio/snapshots.
// The body is a JSON snapshot, or CSV when Content-Type is text/csv.
func (h *Handler) HandleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var (
		in  portfolio.SnapshotImport
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		in, err = portfolio.ParsePositionsCSV(r.Body)
	} else {
		in, err = portfolio.ParseSnapshotJSON(r.Body)
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.ImportSnapshot(r.Context(), in)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to import snapshot")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
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

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
