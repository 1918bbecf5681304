package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/quantfold/signalrun/internal/app"
	"github.com/quantfold/signalrun/internal/history"
	"github.com/quantfold/signalrun/internal/snapshot"
)

// Handlers holds the API endpoint implementations.
type Handlers struct {
	analyzer *app.Analyzer
	started  time.Time
}

// NewHandlers creates the endpoint set over an analyzer.
func NewHandlers(analyzer *app.Analyzer) *Handlers {
	return &Handlers{analyzer: analyzer, started: time.Now()}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrInsufficientHistory):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, history.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, snapshot.ErrDataUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// Health reports liveness and uptime.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Analyze runs the full pipeline for one symbol and returns the decision.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	decision, err := h.analyzer.Analyze(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// History lists stored decisions for a symbol, newest first. Supports
// ?limit=N, ?start=RFC3339 and ?end=RFC3339.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	filter := history.Filter{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}
	for param, dst := range map[string]*time.Time{"start": &filter.Start, "end": &filter.End} {
		if raw := r.URL.Query().Get(param); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: param + " must be RFC3339"})
				return
			}
			*dst = ts
		}
	}

	entries, err := h.analyzer.History(r.Context(), symbol, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"count":   len(entries),
		"entries": entries,
	})
}

// Drift runs a fresh analysis and reports per-pillar movement against the
// stored baseline.
func (h *Handlers) Drift(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	report, decision, err := h.analyzer.Drift(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":   report,
		"decision": decision,
	})
}

// Correlation reports pairwise pillar correlation. Supports ?window=N.
func (h *Handlers) Correlation(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	report, err := h.analyzer.Correlation(r.Context(), symbol, windowParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Accuracy reports directional consistency. Supports ?window=N.
func (h *Handlers) Accuracy(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	report, err := h.analyzer.Accuracy(r.Context(), symbol, windowParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// NotFound is the catch-all JSON 404.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func windowParam(r *http.Request) int {
	if raw := r.URL.Query().Get("window"); raw != "" {
		if window, err := strconv.Atoi(raw); err == nil && window > 0 {
			return window
		}
	}
	return 0
}
