// Package api serves the dashboard read models, alert review and run
// control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	cfg     *domain.Config
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *pipeline.Engine
	version string
	now     func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(cfg *domain.Config, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pipeline.Engine, version string) *Handler {
	return &Handler{
		cfg:     cfg,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
		now:     time.Now,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
			return
		}
		components[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}

	body := map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	}
	if s, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
		stats := s.Stats()
		body["cache"] = map[string]any{
			"stats":   stats,
			"hitRate": math.Round(stats.HitRate()*100) / 100,
		}
	}
	if d, ok := h.bus.(interface{ Dropped(topic string) int64 }); ok {
		dropped := map[string]int64{}
		for _, topic := range []string{domain.TopicRunRequested, domain.TopicRunCompleted, domain.TopicAlertOpened} {
			dropped[topic] = d.Dropped(topic)
		}
		body["busDropped"] = dropped
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready returns whether the server can reach its store.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.repo.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps sentinel errors to status codes. Anything unknown is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInvalidInput), errors.As(err, &verrs):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, pipeline.ErrRunInProgress):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeMessage(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// cached reads key from the cache and falls back to load, storing the
// result. Cache failures only cost a reload.
func cached[T any](ctx context.Context, h *Handler, key string, load func(context.Context) (*T, error)) (*T, error) {
	if h.cache != nil {
		hit, err := cache.GetJSON[T](ctx, h.cache, key)
		if err != nil {
			slog.Warn("cache read failed", "key", key, "error", err)
		} else if hit != nil {
			return hit, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := cache.SetJSON(ctx, h.cache, key, v, h.cfg.Pipeline.CacheTTL); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}

// intParam parses an optional non-negative integer query parameter
// capped at max.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
