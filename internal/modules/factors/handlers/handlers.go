// Package handlers provides read-only HTTP handlers for factor data.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/factors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles factor HTTP requests
type Handler struct {
	service     *factors.Service
	repo        *factors.Repository
	tradingDays int
	log         zerolog.Logger
}

// NewHandler creates a new factor handler
func NewHandler(service *factors.Service, repo *factors.Repository, tradingDays int, log zerolog.Logger) *Handler {
	return &Handler{
		service:     service,
		repo:        repo,
		tradingDays: tradingDays,
		log:         log.With().Str("handler", "factors").Logger(),
	}
}

// RegisterRoutes registers factor routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/factors", func(r chi.Router) {
		r.Get("/", h.HandleGetCatalog)
		r.Get("/{code}/returns", h.HandleGetReturns)
		r.Get("/{code}/diagnostics", h.HandleGetDiagnostics)
	})
}

// catalogEntry is a catalog factor with the lag policy actually in force
type catalogEntry struct {
	config.FactorSpec
	EffectiveLag string `json:"effective_lag_policy"`
}

// HandleGetCatalog handles GET /api/factors
func (h *Handler) HandleGetCatalog(w http.ResponseWriter, r *http.Request) {
	lags, err := h.service.EffectiveLags()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve lag policies")
		http.Error(w, "Failed to resolve lag policies", http.StatusInternalServerError)
		return
	}

	catalog := h.service.Catalog()
	entries := make([]catalogEntry, 0, len(catalog.Factors))
	for _, spec := range catalog.Factors {
		entries = append(entries, catalogEntry{
			FactorSpec:   spec,
			EffectiveLag: lags[spec.Code].String(),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entries,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetReturns handles GET /api/factors/{code}/returns?from=&to=
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, ok := h.service.Catalog().Get(code); !ok {
		http.Error(w, "Unknown factor", http.StatusNotFound)
		return
	}

	from, err := optionalDate(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := optionalDate(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	returns, err := h.repo.GetReturns(code, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("factor", code).Msg("Failed to get factor returns")
		http.Error(w, "Failed to get factor returns", http.StatusInternalServerError)
		return
	}
	if returns == nil {
		returns = []factors.Return{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": returns,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(returns),
		},
	})
}

// HandleGetDiagnostics handles GET /api/factors/{code}/diagnostics?window=&against=
func (h *Handler) HandleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, ok := h.service.Catalog().Get(code); !ok {
		http.Error(w, "Unknown factor", http.StatusNotFound)
		return
	}

	window := 60
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			http.Error(w, "window must be an integer >= 2", http.StatusBadRequest)
			return
		}
		window = n
	}

	against := r.URL.Query().Get("against")
	if against != "" {
		if _, ok := h.service.Catalog().Get(against); !ok {
			http.Error(w, "Unknown factor in against", http.StatusBadRequest)
			return
		}
	}

	diag, err := factors.ComputeDiagnostics(h.repo, code, against, window, h.tradingDays)
	if err != nil {
		h.log.Error().Err(err).Str("factor", code).Msg("Failed to compute diagnostics")
		http.Error(w, "Failed to compute diagnostics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": diag,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func optionalDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return domain.ParseDate(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
