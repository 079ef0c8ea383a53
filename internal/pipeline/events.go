package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// DashboardKeys are the cached read models a run makes stale.
var DashboardKeys = []string{
	domain.CacheKeyOverview,
	domain.CacheKeyQuality,
	domain.CacheKeyCompliance,
}

// afterCommit runs the side effects of a committed run. None of them can
// fail the run: the outputs are already durable.
func (e *Engine) afterCommit(ctx context.Context, log *slog.Logger, report *domain.RunReport) {
	ctx = context.WithoutCancel(ctx)

	if e.cache != nil {
		if err := cache.Invalidate(ctx, e.cache, DashboardKeys...); err != nil {
			log.Warn("failed to invalidate dashboard cache", "error", err)
		}
	}

	if e.bus != nil {
		e.publishCompleted(ctx, log, report)
		for i := range report.Alerts {
			e.publish(ctx, log, domain.TopicAlertOpened, &report.Alerts[i])
		}
	}

	if e.cfg.Pipeline.PurgeEnabled {
		e.purge(ctx, log, report)
	}
}

func (e *Engine) publishCompleted(ctx context.Context, log *slog.Logger, report *domain.RunReport) {
	highRisk := 0
	for i := range report.Assessments {
		if report.Assessments[i].IsHighRisk {
			highRisk++
		}
	}

	e.publish(ctx, log, domain.TopicRunCompleted, &domain.RunCompleted{
		RunID:         report.RunID,
		TotalChecks:   report.Quality.TotalChecks,
		FailedChecks:  report.Quality.Failed,
		Scored:        report.ScoredTransactions,
		AlertsOpened:  len(report.Alerts),
		FinishedAt:    report.FinishedAt,
		DurationMs:    report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		QualityScore:  report.Quality.SuccessRate,
		HighRiskCount: highRisk,
	})
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		log.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func (e *Engine) purge(ctx context.Context, log *slog.Logger, report *domain.RunReport) {
	p := e.cfg.Pipeline
	if p.AuthRetention <= 0 || p.AlertRetention <= 0 {
		return
	}

	auth, alerts, err := e.repo.PurgeExpired(ctx,
		report.StartedAt.Add(-p.AuthRetention),
		report.StartedAt.Add(-p.AlertRetention),
	)
	if err != nil {
		log.Warn("retention purge failed", "error", err)
		return
	}
	if auth > 0 || alerts > 0 {
		log.Info("retention purge",
			"auth_events_deleted", auth,
			"alerts_deleted", alerts,
		)
	}
}
