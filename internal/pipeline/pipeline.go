// Package pipeline runs one batch: load a snapshot, validate, score,
// aggregate, raise alerts and commit every output at once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/aggregate"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("a run is already in progress")

var tracer = otel.Tracer("kestrel-pipeline")

// Engine executes batch runs. It is safe for concurrent use; concurrent
// runs are serialized by the run lock when a cache is configured.
type Engine struct {
	cfg     *domain.Config
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	custom  *rules.Engine
	rules   *rules.RuleSet
	scorer  *scoring.Scorer
	agg     *aggregate.Aggregator
	emitter *alerting.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a pipeline engine. cache, bus and custom may be nil.
func New(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, custom *rules.Engine, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		custom:  custom,
		rules:   rules.NewRuleSet(cfg.Quality, custom, logger),
		scorer:  scoring.NewScorer(cfg.Scoring),
		agg:     aggregate.New(cfg.Aggregation),
		emitter: alerting.NewEmitter(cfg.Alerting, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one batch run and returns what it committed. Nothing is
// written unless every stage succeeds; a cancelled run leaves the store as
// it was.
func (e *Engine) Run(ctx context.Context, req domain.RunRequest) (*domain.RunReport, error) {
	start := e.now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.trigger", req.Trigger),
		),
	)
	defer span.End()

	log := e.logger.With("run_id", runID)

	release, err := e.lock(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer release()

	report, err := e.execute(ctx, log, runID, req, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("run failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	e.afterCommit(ctx, log, report)

	span.SetAttributes(
		attribute.Int("run.scored", report.ScoredTransactions),
		attribute.Int("run.alerts", len(report.Alerts)),
	)
	log.Info("run completed",
		"trigger", req.Trigger,
		"checks", report.Quality.TotalChecks,
		"failed_checks", report.Quality.Failed,
		"scored", report.ScoredTransactions,
		"alerts", len(report.Alerts),
		"quality_score", report.Quality.SuccessRate,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

func (e *Engine) execute(ctx context.Context, log *slog.Logger, runID string, req domain.RunRequest, start time.Time) (*domain.RunReport, error) {
	report := &domain.RunReport{
		RunID:     runID,
		Trigger:   req.Trigger,
		StartedAt: start,
	}

	var snap *domain.Snapshot
	err := e.stage(ctx, log, "load", func(ctx context.Context) error {
		var err error
		snap, err = e.repo.LoadSnapshot(ctx, e.snapshotOptions(req, start))
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var checks []domain.CheckResult
	err = e.stage(ctx, log, "validate", func(ctx context.Context) error {
		checks = e.rules.Run(ctx, snap, start)
		report.Quality = aggregate.Quality(checks, start)
		report.Quality.RunID = runID
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, log, "score", func(ctx context.Context) error {
		assessments, err := e.scorer.ScoreSnapshot(ctx, snap, start)
		if err != nil {
			return fmt.Errorf("score transactions: %w", err)
		}
		report.Assessments = assessments
		report.ScoredTransactions = len(assessments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	existing := derefAlerts(snap.Alerts)
	err = e.stage(ctx, log, "aggregate", func(ctx context.Context) error {
		report.DailySummaries = e.agg.DailySummaries(snap, report.Assessments, start)
		report.Profiles = e.agg.Profiles(snap, report.Assessments, existing, start)
		report.Compliance = e.agg.ComplianceMetrics(snap, start)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, log, "alert", func(ctx context.Context) error {
		report.Alerts = e.emitter.Emit(&alerting.Input{
			RunID:       runID,
			Snapshot:    snap,
			Assessments: report.Assessments,
			Checks:      checks,
			Now:         start,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Profiles and the overview count alerts, so they are rebuilt once the
	// alerts of this run exist.
	err = e.stage(ctx, log, "profile", func(ctx context.Context) error {
		all := append(slices.Clip(existing), report.Alerts...)
		report.Profiles = e.agg.Profiles(snap, report.Assessments, all, start)
		report.Overview = e.agg.Overview(snap, report.Assessments, report.Quality, all, start)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The store rejects alerts that duplicate one the snapshot did not see;
	// the counts are then rebuilt from what is active at commit time.
	settle := func(report *domain.RunReport, active []*domain.FraudAlert) {
		all := derefAlerts(active)
		for _, a := range existing {
			if !a.Status.IsActive() {
				all = append(all, a)
			}
		}
		log.Info("duplicate alerts dropped at commit",
			"inserted", len(report.Alerts),
			"active", len(active),
		)
		report.Profiles = e.agg.Profiles(snap, report.Assessments, all, start)
		report.Overview = e.agg.Overview(snap, report.Assessments, report.Quality, all, start)
	}

	err = e.stage(ctx, log, "commit", func(ctx context.Context) error {
		report.FinishedAt = e.now().UTC()
		if err := e.repo.CommitRun(ctx, report, settle); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

// stage runs fn inside its own span. Cancellation is checked before each
// stage starts.
func (e *Engine) stage(ctx context.Context, log *slog.Logger, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run aborted before %s: %w", name, err)
	}

	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	started := time.Now()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	log.Debug("stage finished",
		"stage", name,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// lock takes the run lock. Without a cache runs are not serialized.
func (e *Engine) lock(ctx context.Context) (func(), error) {
	if e.cache == nil {
		return func() {}, nil
	}

	ttl := e.cfg.Pipeline.RunLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	ok, err := e.cache.Acquire(ctx, domain.CacheKeyRunLock, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	return func() {
		if err := e.cache.Release(context.WithoutCancel(ctx), domain.CacheKeyRunLock); err != nil {
			e.logger.Warn("failed to release run lock", "error", err)
		}
	}, nil
}

// snapshotOptions bounds the load: history for velocity and profiles,
// stored summaries for the consistency checks, recent alerts for profiles.
func (e *Engine) snapshotOptions(req domain.RunRequest, now time.Time) domain.SnapshotOptions {
	p := e.cfg.Pipeline
	var opts domain.SnapshotOptions

	if req.Incremental || p.Incremental {
		window := p.IncrementalWindow
		if window <= 0 {
			window = 24 * time.Hour
		}
		opts.ScoreFrom = now.Add(-window)
	}
	if p.HistoryWindow > 0 {
		opts.HistoryFrom = now.Add(-p.HistoryWindow)
	}
	if days := e.cfg.Quality.ConsistencyDays; days > 0 {
		opts.SummariesFrom = domain.DayOf(now.AddDate(0, 0, -days), e.cfg.Quality.Location)
	}
	if w := e.cfg.Aggregation.RecentAlertWindow; w > 0 {
		opts.AlertsFrom = now.Add(-w)
	}
	return opts
}

func derefAlerts(alerts []*domain.FraudAlert) []domain.FraudAlert {
	out := make([]domain.FraudAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, *a)
	}
	return out
}
