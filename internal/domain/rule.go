package domain

import "time"

// Collections a custom check can target.
const (
	CollectionCustomers    = "customers"
	CollectionAccounts     = "bank_accounts"
	CollectionDevices      = "devices"
	CollectionAuthEvents   = "authentication_logs"
	CollectionTransactions = "transactions"
)

// CheckPolicy maps a violation count to a check status.
type CheckPolicy string

const (
	// PolicyStrict fails on any violation.
	PolicyStrict CheckPolicy = "strict"
	// PolicySoft warns below the soft-fail ratio and fails above it.
	PolicySoft CheckPolicy = "soft"
	// PolicyAdvisory only ever warns.
	PolicyAdvisory CheckPolicy = "advisory"
)

// RuleConfig is an operator-defined data-quality check.
// Expression is a CEL predicate over `record` and `now` that every record
// of Collection must satisfy.
type RuleConfig struct {
	ID          string      `json:"id" validate:"required,max=64"`
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Collection  string      `json:"collection" validate:"required,oneof=customers bank_accounts devices authentication_logs transactions"`
	Expression  string      `json:"expression" validate:"required"`
	Policy      CheckPolicy `json:"policy" validate:"omitempty,oneof=strict soft advisory"`
	Enabled     bool        `json:"enabled"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// DefaultRuleConfigs are seeded when no custom checks exist yet.
func DefaultRuleConfigs() []*RuleConfig {
	return []*RuleConfig{
		{
			ID:          "business_rule_transfer_destination",
			Name:        "Transfers name a destination account",
			Description: "TRANSFER transactions must carry to_account_id",
			Version:     "1.0.0",
			Collection:  CollectionTransactions,
			Expression:  `record.transaction_type != "TRANSFER" || record.to_account_id != ""`,
			Policy:      PolicySoft,
			Enabled:     true,
		},
		{
			ID:          "business_rule_completed_timestamp",
			Name:        "Completed transactions carry completed_at",
			Description: "COMPLETED transactions must record a completion time",
			Version:     "1.0.0",
			Collection:  CollectionTransactions,
			Expression:  `record.status != "COMPLETED" || has(record.completed_at)`,
			Policy:      PolicySoft,
			Enabled:     true,
		},
		{
			ID:          "business_rule_auth_failed_attempts",
			Name:        "Failed logins record attempts",
			Description: "FAILED authentication events must count at least one failed attempt",
			Version:     "1.0.0",
			Collection:  CollectionAuthEvents,
			Expression:  `record.auth_status != "FAILED" || record.failed_attempts > 0`,
			Policy:      PolicyAdvisory,
			Enabled:     true,
		},
	}
}
