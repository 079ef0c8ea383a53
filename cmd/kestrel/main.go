// Kestrel - Data-quality validation and fraud scoring for core banking data.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/report"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usage = `usage: kestrel <command> [flags]

commands:
  serve    run the HTTP API, the run worker and the optional scheduler
  run      execute one batch run and exit
  version  print version information
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(os.Args[2:])
	case "run":
		err = runOnce(os.Args[2:])
	case "version":
		fmt.Printf("kestrel %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("kestrel failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg    *domain.Config
	logger *slog.Logger
	repo   *repository.SQLRepository
	cache  domain.Cache
	bus    domain.EventBus
	engine *pipeline.Engine
}

func setup(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"timezone", cfg.TimeZone,
	)

	a := &app{cfg: cfg, logger: logger}

	a.repo, err = repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	a.cache, err = cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize cache: %w", err)
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	a.bus, err = bus.New(cfg.EventBus)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize event bus: %w", err)
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	custom, err := rules.NewEngine()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize rule engine: %w", err)
	}

	a.engine = pipeline.New(cfg, a.repo, a.cache, a.bus, custom, logger)

	if err := a.engine.SeedRules(ctx); err != nil {
		a.Close()
		return nil, err
	}
	count, err := a.engine.ReloadRules(ctx)
	if err != nil {
		// A broken stored rule must not stop the built-in checks.
		slog.Warn("failed to load custom checks", "error", err)
	}
	slog.Info("rule engine initialized", "custom_checks", count)

	return a, nil
}

// Close releases the components in reverse order of creation.
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	envFile := fs.String("env", ".env", "optional dotenv file")
	noWorker := fs.Bool("no-worker", false, "do not consume run requests in this process")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, *envFile)
	if err != nil {
		return err
	}
	defer a.Close()

	var runWorker *worker.Worker
	if !*noWorker {
		runWorker = worker.NewWorker(a.bus, a.engine, a.logger)
		if err := runWorker.Start(worker.Config{
			Interval:    a.cfg.Pipeline.Interval,
			Incremental: a.cfg.Pipeline.Incremental,
		}); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}

	srv := api.NewServer(a.cfg, a.repo, a.cache, a.bus, a.engine, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("kestrel is ready",
		"addr", srv.Addr(),
		"schedule", a.cfg.Pipeline.Interval.String(),
	)
	printBanner(a.cfg, Version)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		slog.Error("server failed", "error", err)
	}
	slog.Info("shutting down...")

	if runWorker != nil {
		if err := runWorker.Stop(); err != nil {
			slog.Error("failed to stop worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return err
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	envFile := fs.String("env", ".env", "optional dotenv file")
	incremental := fs.Bool("incremental", false, "score only recent transactions")
	reportPath := fs.String("report", "", "write the run report to this .json or .xlsx file")
	days := fs.Int("days", 7, "daily summary days included in the report")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, *envFile)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.engine.Run(ctx, domain.RunRequest{
		Trigger:     "cli",
		Incremental: *incremental,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d transactions scored, %d/%d checks passed (%.2f%%), %d alerts opened\n",
		run.RunID, run.ScoredTransactions, run.Quality.Passed, run.Quality.TotalChecks,
		run.Quality.SuccessRate, len(run.Alerts))

	if *reportPath == "" {
		return nil
	}
	return writeReport(ctx, a, *reportPath, *days)
}

func writeReport(ctx context.Context, a *app, path string, days int) error {
	doc, err := report.Load(ctx, a.repo, report.Options{
		Days:     days,
		Location: a.cfg.Quality.Location,
	}, time.Now())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = report.WriteXLSX(f, doc)
	default:
		err = report.WriteJSON(f, doc)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.Info("report written", "path", path, "run_id", doc.RunID)
	return f.Close()
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL  data quality and fraud scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET   /api/data-quality/summary   - Latest quality summary")
	fmt.Println("    GET   /api/fraud-alerts           - List fraud alerts")
	fmt.Println("    PATCH /api/fraud-alerts/{id}      - Review an alert")
	fmt.Println("    GET   /api/transactions/summary   - Daily transaction trend")
	fmt.Println("    GET   /api/compliance/metrics     - Compliance metrics")
	fmt.Println("    GET   /api/customers/risk-profile - Customer risk profiles")
	fmt.Println("    GET   /api/dashboard/overview     - Dashboard overview")
	fmt.Println("    GET   /api/unverified-devices     - Unverified devices")
	fmt.Println("    POST  /api/runs                   - Trigger a batch run")
	fmt.Println("    GET   /api/reports/latest         - Latest report (json or xlsx)")
	fmt.Println("    GET   /api/rules                  - List custom checks")
	fmt.Println("    POST  /api/rules/reload           - Hot-reload custom checks")
	fmt.Println("    GET   /health                     - Health check")
	fmt.Println()
}
