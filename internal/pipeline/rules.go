package pipeline

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Rules returns the custom check engine, or nil when custom checks are off.
func (e *Engine) Rules() *rules.Engine {
	return e.custom
}

// SeedRules stores the default custom checks when none exist yet.
func (e *Engine) SeedRules(ctx context.Context) error {
	existing, err := e.repo.ListRuleConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list rule configs: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, rule := range domain.DefaultRuleConfigs() {
		if err := e.repo.SaveRuleConfig(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}
	e.logger.Info("seeded default custom checks", "count", len(domain.DefaultRuleConfigs()))
	return nil
}

// ReloadRules recompiles the enabled custom checks from the store. A
// broken expression leaves the previous set active.
func (e *Engine) ReloadRules(ctx context.Context) (int, error) {
	if e.custom == nil {
		return 0, nil
	}

	configs, err := e.repo.ListRuleConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rule configs: %w", err)
	}
	if err := e.custom.ReloadRules(configs); err != nil {
		return 0, fmt.Errorf("reload rules: %w", err)
	}

	count := e.custom.RulesCount()
	e.logger.Info("custom checks loaded", "count", count)
	return count, nil
}
