package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveRuleConfig stores a custom check configuration. Saving the same id
// and version again replaces it.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	version := rule.Version
	if version == "" {
		version = "1.0.0"
	}
	policy := rule.Policy
	if policy == "" {
		policy = domain.PolicySoft
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, collection, expression, policy, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			collection = excluded.collection,
			expression = excluded.expression,
			policy = excluded.policy,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, version, rule.Collection,
		rule.Expression, policy, boolToInt(rule.Enabled), now, now,
	)
	return err
}

const ruleColumns = `id, name, description, version, collection, expression, policy, enabled, created_at, updated_at`

func scanRule(s scanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var desc sql.NullString
	var enabled int

	if err := s.Scan(
		&cfg.ID, &cfg.Name, &desc, &cfg.Version, &cfg.Collection,
		&cfg.Expression, &cfg.Policy, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cfg.Description = desc.String
	cfg.Enabled = enabled == 1
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// GetRuleConfig retrieves the most recently saved version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rule_configs
		WHERE id = ?
		ORDER BY updated_at DESC, version DESC
		LIMIT 1
	`

	cfg, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return cfg, err
}

// ListRuleConfigs returns the most recently saved version of every rule,
// enabled or not, ordered by id.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rule_configs
		ORDER BY id, updated_at DESC, version DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if n := len(configs); n > 0 && configs[n-1].ID == cfg.ID {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
