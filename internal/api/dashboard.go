package api

import (
	"context"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/aggregate"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// QualitySummary handles GET /api/data-quality/summary.
func (h *Handler) QualitySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := cached(r.Context(), h, domain.CacheKeyQuality, func(ctx context.Context) (*domain.QualitySummary, error) {
		run, err := h.repo.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		return &run.Quality, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ComplianceMetrics handles GET /api/compliance/metrics.
func (h *Handler) ComplianceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := cached(r.Context(), h, domain.CacheKeyCompliance, func(ctx context.Context) (*[]domain.ComplianceMetric, error) {
		run, err := h.repo.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		return &run.Compliance, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": *metrics,
		"count":   len(*metrics),
	})
}

// DashboardOverview handles GET /api/dashboard/overview. The active alert
// count is read live so reviews show up before the next run.
func (h *Handler) DashboardOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := cached(r.Context(), h, domain.CacheKeyOverview, func(ctx context.Context) (*domain.DashboardOverview, error) {
		run, err := h.repo.LatestRun(ctx)
		if err != nil {
			return nil, err
		}
		active, err := h.activeAlerts(ctx)
		if err != nil {
			return nil, err
		}
		overview := run.Overview
		overview.ActiveAlerts = active
		return &overview, nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

const maxActiveAlerts = 100000

func (h *Handler) activeAlerts(ctx context.Context) (int, error) {
	total := 0
	for _, status := range []domain.AlertStatus{domain.AlertOpen, domain.AlertInvestigating} {
		alerts, err := h.repo.ListAlerts(ctx, domain.AlertFilter{Status: status, Limit: maxActiveAlerts})
		if err != nil {
			return 0, err
		}
		total += len(alerts)
	}
	return total, nil
}

// TransactionSummary handles GET /api/transactions/summary?days=N.
func (h *Handler) TransactionSummary(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7, 90)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if days == 0 {
		days = 1
	}

	now := h.now()
	loc := h.cfg.Quality.Location
	from := domain.DayOf(now.AddDate(0, 0, -(days-1)), loc)
	to := domain.DayOf(now, loc)

	summaries, err := h.repo.ListDailySummaries(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	trend := aggregate.Trend(summaries)
	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from,
		"to":    to,
		"days":  trend,
		"count": len(trend),
	})
}

// CustomerRiskProfiles handles GET /api/customers/risk-profile?limit=N.
func (h *Handler) CustomerRiskProfiles(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50, 1000)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	profiles, err := h.repo.ListCustomerProfiles(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// UnverifiedDevices handles GET /api/unverified-devices?limit=N.
func (h *Handler) UnverifiedDevices(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 100, 1000)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	devices, err := h.repo.ListUnverifiedDevices(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}
