package domain

import "time"

// CheckStatus is the verdict of one data-quality check.
type CheckStatus string

const (
	CheckPass    CheckStatus = "PASS"
	CheckWarning CheckStatus = "WARNING"
	CheckFail    CheckStatus = "FAIL"
)

// CheckCategory groups data-quality checks.
type CheckCategory string

const (
	CategoryCompleteness CheckCategory = "COMPLETENESS"
	CategoryDomain       CheckCategory = "DOMAIN"
	CategoryUniqueness   CheckCategory = "UNIQUENESS"
	CategoryFormat       CheckCategory = "FORMAT"
	CategoryIntegrity    CheckCategory = "REFERENTIAL_INTEGRITY"
	CategoryBusiness     CheckCategory = "BUSINESS_RULE"
	CategoryCompliance   CheckCategory = "COMPLIANCE"
	CategoryTemporal     CheckCategory = "TEMPORAL"
	CategoryFreshness    CheckCategory = "FRESHNESS"
	CategoryConsistency  CheckCategory = "CONSISTENCY"
	CategoryCustom       CheckCategory = "CUSTOM"
)

// CheckResult is the outcome of a single check over the record set.
// RecordIDs holds the identifiers of offending records and is not persisted.
type CheckResult struct {
	CheckName       string         `json:"checkName"`
	Category        CheckCategory  `json:"category"`
	Subject         string         `json:"subject"`
	Status          CheckStatus    `json:"status"`
	Message         string         `json:"message"`
	AffectedRecords int            `json:"affectedRecords"`
	Details         map[string]any `json:"details,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	RecordIDs       []string       `json:"-"`
}

// CategorySummary rolls check results up per category.
type CategorySummary struct {
	Category CheckCategory `json:"category"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Warnings int           `json:"warnings"`
	Failed   int           `json:"failed"`
}

// QualitySummary is the per-run data-quality roll-up.
type QualitySummary struct {
	RunID       string            `json:"runId,omitempty"`
	TotalChecks int               `json:"totalChecks"`
	Passed      int               `json:"passed"`
	Warnings    int               `json:"warnings"`
	Failed      int               `json:"failed"`
	SuccessRate float64           `json:"successRate"`
	Categories  []CategorySummary `json:"categories,omitempty"`
	Checks      []CheckResult     `json:"checks"`
	LastUpdated time.Time         `json:"lastUpdated"`
}
