package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// alertQuery is the validated query of GET /api/fraud-alerts.
type alertQuery struct {
	Severity string `validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Status   string `validate:"omitempty,oneof=OPEN INVESTIGATING RESOLVED FALSE_POSITIVE"`
	Customer string `validate:"omitempty,max=64"`
}

// ListAlerts handles GET /api/fraud-alerts?severity&status&customer&limit.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := alertQuery{
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		Customer: q.Get("customer"),
	}
	if err := domain.Validator().Struct(query); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	limit, err := intParam(r, "limit", 100, 1000)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.repo.ListAlerts(r.Context(), domain.AlertFilter{
		Severity:   domain.Severity(query.Severity),
		Status:     domain.AlertStatus(query.Status),
		CustomerID: query.Customer,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert handles GET /api/fraud-alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.repo.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// UpdateAlert handles PATCH /api/fraud-alerts/{id}: a reviewer moves the
// alert to INVESTIGATING, RESOLVED or FALSE_POSITIVE.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "id")

	var update domain.AlertStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := domain.Validator().Struct(update); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid update: "+err.Error())
		return
	}

	alert, err := h.repo.UpdateAlertStatus(ctx, alertID, &update, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.cache != nil {
		if err := cache.Invalidate(ctx, h.cache, domain.CacheKeyOverview); err != nil {
			slog.Warn("cache invalidation failed", "key", domain.CacheKeyOverview, "error", err)
		}
	}

	slog.Info("alert reviewed",
		"alert_id", alert.ID,
		"status", alert.Status,
		"trace_id", GetTraceID(ctx),
	)
	writeJSON(w, http.StatusOK, alert)
}
