// Package rules provides the data-quality rule set: built-in checks plus
// operator-defined CEL checks, evaluated independently over a snapshot.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Check is one data-quality check. Run must not mutate the environment.
type Check struct {
	Name     string
	Category domain.CheckCategory
	Subject  string
	Policy   domain.CheckPolicy
	Run      func(ctx context.Context, env *Env) Finding
}

// Finding is what a check observed.
type Finding struct {
	// Affected is the number of offending records.
	Affected int
	// Population is the number of records examined.
	Population int
	// Message describes the violation; used only when Affected > 0.
	Message   string
	RecordIDs []string
	Details   map[string]any
}

// RuleSet evaluates the built-in catalog and any loaded custom checks.
type RuleSet struct {
	cfg        domain.QualityConfig
	builtin    []Check
	custom     *Engine
	maxWorkers int
	logger     *slog.Logger
}

// NewRuleSet creates a rule set. custom may be nil.
func NewRuleSet(cfg domain.QualityConfig, custom *Engine, logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 8
	}
	return &RuleSet{
		cfg:        cfg,
		builtin:    BuiltinChecks(cfg),
		custom:     custom,
		maxWorkers: workers,
		logger:     logger,
	}
}

// Checks returns the catalog in evaluation order: built-ins first, then custom checks by ID.
func (r *RuleSet) Checks() []Check {
	checks := make([]Check, 0, len(r.builtin)+8)
	checks = append(checks, r.builtin...)
	if r.custom != nil {
		checks = append(checks, r.custom.Checks()...)
	}
	return checks
}

// Run evaluates every check against snap. No check can prevent another from
// running; the result slice is in catalog order.
func (r *RuleSet) Run(ctx context.Context, snap *domain.Snapshot, now time.Time) []domain.CheckResult {
	env := NewEnv(snap, now, r.cfg)
	checks := r.Checks()

	results := make([]domain.CheckResult, len(checks))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, r.maxWorkers)

	for i, check := range checks {
		wg.Add(1)
		go func(idx int, c Check) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = r.runCheck(ctx, c, env)
		}(i, check)
	}

	wg.Wait()

	return results
}

func (r *RuleSet) runCheck(ctx context.Context, c Check, env *Env) (result domain.CheckResult) {
	start := time.Now()
	result = domain.CheckResult{
		CheckName: c.Name,
		Category:  c.Category,
		Subject:   c.Subject,
		Timestamp: env.Now,
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("check panicked",
				"check", c.Name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			result.Status = domain.CheckFail
			result.Message = fmt.Sprintf("check %s could not be evaluated: %v", c.Name, rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Status = domain.CheckFail
		result.Message = fmt.Sprintf("check %s not evaluated: %v", c.Name, err)
		return result
	}

	f := c.Run(ctx, env)
	result.AffectedRecords = f.Affected
	result.Status = decide(c.Policy, f.Affected, f.Population, r.cfg.SoftFailRatio)
	result.RecordIDs = f.RecordIDs
	result.Details = f.Details
	if f.Affected > 0 {
		result.Message = f.Message
		if len(f.RecordIDs) > 0 {
			if result.Details == nil {
				result.Details = make(map[string]any, 1)
			}
			result.Details["sample"] = sample(f.RecordIDs, 10)
		}
	} else {
		result.Message = fmt.Sprintf("%s: all %d records passed", c.Subject, f.Population)
	}

	r.logger.Debug("check evaluated",
		"check", c.Name,
		"status", result.Status,
		"affected", f.Affected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// decide maps a violation count to a status under policy.
func decide(policy domain.CheckPolicy, affected, population int, softRatio float64) domain.CheckStatus {
	if affected <= 0 {
		return domain.CheckPass
	}
	switch policy {
	case domain.PolicyAdvisory:
		return domain.CheckWarning
	case domain.PolicySoft:
		if population > 0 && float64(affected)/float64(population) < softRatio {
			return domain.CheckWarning
		}
		return domain.CheckFail
	default:
		return domain.CheckFail
	}
}

func sample(ids []string, n int) []string {
	if len(ids) <= n {
		return ids
	}
	return ids[:n]
}
