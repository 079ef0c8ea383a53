package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// RunRequest is the optional body of POST /api/runs.
type RunRequest struct {
	Incremental bool `json:"incremental"`
	// Async hands the run to a worker over the event bus and returns 202.
	Async bool `json:"async"`
}

// RunResponse summarizes a finished run.
type RunResponse struct {
	RunID              string    `json:"runId"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
	ScoredTransactions int       `json:"scoredTransactions"`
	TotalChecks        int       `json:"totalChecks"`
	FailedChecks       int       `json:"failedChecks"`
	SuccessRate        float64   `json:"successRate"`
	AlertsOpened       int       `json:"alertsOpened"`
	DurationMs         int64     `json:"durationMs"`
}

// TriggerRun handles POST /api/runs.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req := domain.RunRequest{
		RunID:       uuid.New().String(),
		Trigger:     "api",
		Incremental: body.Incremental,
	}

	if body.Async {
		if h.bus == nil {
			writeMessage(w, http.StatusServiceUnavailable, "event bus not available")
			return
		}
		if err := worker.RequestRun(ctx, h.bus, req); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":  req.RunID,
			"status": "accepted",
		})
		return
	}

	if h.engine == nil {
		writeMessage(w, http.StatusServiceUnavailable, "pipeline not available")
		return
	}

	start := time.Now()
	run, err := h.engine.Run(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		RunID:              run.RunID,
		StartedAt:          run.StartedAt,
		FinishedAt:         run.FinishedAt,
		ScoredTransactions: run.ScoredTransactions,
		TotalChecks:        run.Quality.TotalChecks,
		FailedChecks:       run.Quality.Failed,
		SuccessRate:        run.Quality.SuccessRate,
		AlertsOpened:       len(run.Alerts),
		DurationMs:         time.Since(start).Milliseconds(),
	})
}

// LatestRun handles GET /api/runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.LatestRun(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// LatestReport handles GET /api/reports/latest?format=json|xlsx.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "xlsx" {
		writeMessage(w, http.StatusBadRequest, "format must be json or xlsx")
		return
	}

	doc, err := report.Load(r.Context(), h.repo, report.Options{
		Days:     7,
		Location: h.cfg.Quality.Location,
	}, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, doc)
		return
	}

	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="kestrel-report-%s.xlsx"`, doc.RunID))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteXLSX(w, doc); err != nil {
		slog.Error("failed to write report workbook",
			"run_id", doc.RunID,
			"error", err,
		)
	}
}
