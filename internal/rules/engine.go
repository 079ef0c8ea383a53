package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// evalCostLimit bounds the work of one predicate on one record. A custom
// check runs once per row, so an unbounded comprehension would stall the run.
const evalCostLimit = 100_000

// Engine compiles and holds operator-defined CEL checks.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new CEL check engine. Expressions see `record` (the
// snake_case columns of one row) and `now` (the run clock), plus the
// built-in validators valid_cccd, valid_phone, valid_email and
// strong_auth so operators can reuse them in their own checks.
func NewEngine() (*Engine, error) {
	opts := []cel.EnvOption{
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
		stringPredicate("valid_cccd", ValidCCCD),
		stringPredicate("valid_phone", ValidPhone),
		stringPredicate("valid_email", ValidEmail),
		stringPredicate("strong_auth", func(s string) bool { return domain.AuthMethod(s).IsStrong() }),
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if err := domain.Validator().Struct(cfg); err != nil {
		return fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles cfg and adds it to the loaded set, replacing a rule
// with the same ID.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules loads every enabled rule, stopping at the first compile error.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// On error the previously loaded set stays active.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations, sorted by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Checks turns every loaded rule into a catalog check, sorted by ID.
func (e *Engine) Checks() []Check {
	e.mu.RLock()
	compiled := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, c := range e.compiledRules {
		compiled = append(compiled, c)
	}
	e.mu.RUnlock()

	sort.Slice(compiled, func(i, j int) bool { return compiled[i].Config.ID < compiled[j].Config.ID })

	checks := make([]Check, 0, len(compiled))
	for _, c := range compiled {
		policy := c.Config.Policy
		if policy == "" {
			policy = domain.PolicySoft
		}
		checks = append(checks, Check{
			Name:     c.Config.ID,
			Category: domain.CategoryCustom,
			Subject:  c.Config.Collection,
			Policy:   policy,
			Run:      c.run,
		})
	}
	return checks
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

// run evaluates the predicate against every record of the rule's collection.
// A record whose evaluation errors counts as a violation.
func (c *CompiledRule) run(ctx context.Context, env *Env) Finding {
	records := Records(env, c.Config.Collection)

	var ids []string
	evalErrors := 0
	var firstErr error
	for i, rec := range records {
		if i%256 == 0 && ctx.Err() != nil {
			return Finding{
				Affected:   len(records),
				Population: len(records),
				Message:    fmt.Sprintf("%s: evaluation cancelled: %v", c.Config.Name, ctx.Err()),
			}
		}

		out, _, err := c.Program.Eval(map[string]any{
			"record": rec.Values,
			"now":    env.Now,
		})
		if err != nil {
			evalErrors++
			if firstErr == nil {
				firstErr = err
			}
			ids = append(ids, rec.ID)
			continue
		}
		if ok, isBool := out.(types.Bool); !isBool || !bool(ok) {
			ids = append(ids, rec.ID)
		}
	}

	f := Finding{
		Affected:   len(ids),
		Population: len(records),
		Message:    fmt.Sprintf("Found %d records in %s violating %q", len(ids), c.Config.Collection, c.Config.Name),
		RecordIDs:  ids,
	}
	if evalErrors > 0 {
		f.Message = fmt.Sprintf("%s (%d could not be evaluated: %v)", f.Message, evalErrors, firstErr)
		f.Details = map[string]any{"evaluationErrors": evalErrors}
	}
	return f
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if outputType := ast.OutputType(); outputType != cel.BoolType && outputType != cel.DynType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(evalCostLimit),
		cel.EvalOptions(cel.OptOptimize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// stringPredicate declares a global CEL function name(string) -> bool.
func stringPredicate(name string, fn func(string) bool) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_string", []*cel.Type{cel.StringType}, cel.BoolType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				s, ok := v.(types.String)
				if !ok {
					return types.Bool(false)
				}
				return types.Bool(fn(string(s)))
			}),
		),
	)
}
