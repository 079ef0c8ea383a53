// Package worker executes batch runs requested over the EventBus or on a
// fixed interval.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Runner executes one batch run.
type Runner interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunReport, error)
}

// Worker consumes run requests from the EventBus.
type Worker struct {
	bus    domain.EventBus
	runner Runner
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Interval triggers a run on a fixed schedule; zero disables the scheduler.
	Interval time.Duration

	// Incremental makes scheduled runs score only recent transactions.
	Incremental bool
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, runner Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to run requests and, when configured, starts the scheduler.
func (w *Worker) Start(cfg Config) error {
	if w.bus != nil {
		sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunRequested, w.handleMessage)
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()

		w.logger.Info("worker subscribed",
			"topic", domain.TopicRunRequested,
		)
	}

	if cfg.Interval > 0 {
		w.wg.Add(1)
		go w.schedule(cfg.Interval, cfg.Incremental)

		w.logger.Info("scheduler started",
			"interval", cfg.Interval.String(),
			"incremental", cfg.Incremental,
		)
	}

	return nil
}

// handleMessage executes the run described by a run.requested message.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			w.logger.Error("failed to parse run request",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}
	if req.Trigger == "" {
		req.Trigger = "bus"
	}

	return w.execute(ctx, req)
}

// schedule triggers a run every interval until the worker stops.
func (w *Worker) schedule(interval time.Duration, incremental bool) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			_ = w.execute(w.ctx, domain.RunRequest{Trigger: "schedule", Incremental: incremental})
		}
	}
}

func (w *Worker) execute(ctx context.Context, req domain.RunRequest) error {
	start := time.Now()

	report, err := w.runner.Run(ctx, req)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		w.logger.Info("run skipped, another run holds the lock",
			"trigger", req.Trigger,
		)
		return nil
	}
	if err != nil {
		w.logger.Error("run failed",
			"run_id", req.RunID,
			"trigger", req.Trigger,
			"error", err,
		)
		return err
	}

	w.logger.Debug("run finished",
		"run_id", report.RunID,
		"trigger", req.Trigger,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the subscriptions and the scheduler, waiting for a
// scheduled run in flight.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

// RequestRun publishes a run request for a worker to pick up.
func RequestRun(ctx context.Context, bus domain.EventBus, req domain.RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, domain.TopicRunRequested, payload)
}
