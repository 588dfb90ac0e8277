package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/factorrisk/internal/domain"
	"github.com/aristath/factorrisk/internal/modules/betas"
	"github.com/aristath/factorrisk/internal/pipeline"
)

// runTimeout bounds a run triggered over HTTP
const runTimeout = 30 * time.Minute

// RunHandlers serves the run registry and triggers runs
type RunHandlers struct {
	pipeline *pipeline.Pipeline
	reports  *betas.Repository
	now      func() time.Time
	log      zerolog.Logger
}

// NewRunHandlers creates the run handlers
func NewRunHandlers(p *pipeline.Pipeline, reports *betas.Repository, log zerolog.Logger) *RunHandlers {
	return &RunHandlers{
		pipeline: p,
		reports:  reports,
		now:      time.Now,
		log:      log.With().Str("handler", "runs").Logger(),
	}
}

// RegisterRoutes registers run routes
func (h *RunHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Post("/", h.HandleTriggerRun)
		r.Get("/{id}", h.HandleGetRun)
	})
}

// HandleListRuns handles GET /api/runs?limit=
func (h *RunHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.pipeline.Runs().List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []pipeline.Run{}
	}

	writeJSON(w, http.StatusOK, envelope(runs, map[string]interface{}{"count": len(runs)}), h.log)
}

// HandleGetRun handles GET /api/runs/{id}. The response carries the run
// record and its per-security report rows.
func (h *RunHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.pipeline.Runs().Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	report, err := h.reports.GetReport(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run report")
		http.Error(w, "Failed to get run report", http.StatusInternalServerError)
		return
	}
	if report == nil {
		report = []betas.ReportRow{}
	}

	writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"run":    run,
		"report": report,
	}, nil), h.log)
}

// HandleTriggerRun handles POST /api/runs?date=YYYY-MM-DD
// The run proceeds in the background; poll GET /api/runs for its outcome.
func (h *RunHandlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	asOf := domain.Truncate(h.now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := domain.ParseDate(raw)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		asOf = t
	}

	if err := h.pipeline.TryStart(asOf, runTimeout); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Msg("Failed to start run")
		http.Error(w, "Failed to start run", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("as_of", domain.FormatDate(asOf)).Msg("Pipeline run triggered")
	writeJSON(w, http.StatusAccepted, envelope(map[string]interface{}{
		"status": "started",
		"as_of":  domain.FormatDate(asOf),
	}, nil), h.log)
}
