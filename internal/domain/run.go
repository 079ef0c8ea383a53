package domain

import "time"

// Snapshot is the bounded, read-only record set a run evaluates.
// Transactions created before ScoreFrom are history only: they feed
// velocity and aggregates but are not re-scored.
type Snapshot struct {
	Customers       []*Customer     `json:"customers"`
	Accounts        []*Account      `json:"accounts"`
	Devices         []*Device       `json:"devices"`
	AuthEvents      []*AuthEvent    `json:"authEvents"`
	Transactions    []*Transaction  `json:"transactions"`
	StoredSummaries []*DailySummary `json:"storedSummaries"`
	Alerts          []*FraudAlert   `json:"alerts"`
	ScoreFrom       time.Time       `json:"scoreFrom"`
	LoadedAt        time.Time       `json:"loadedAt"`
}

// ScoredTransactions returns the transactions the run must score.
func (s *Snapshot) ScoredTransactions() []*Transaction {
	if s.ScoreFrom.IsZero() {
		return s.Transactions
	}
	out := make([]*Transaction, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		if !tx.CreatedAt.Before(s.ScoreFrom) {
			out = append(out, tx)
		}
	}
	return out
}

// SnapshotOptions bounds what the record source loads.
type SnapshotOptions struct {
	// ScoreFrom limits scoring to newer transactions; zero means a full run.
	ScoreFrom time.Time
	// HistoryFrom is the oldest transaction and auth event loaded; zero loads everything.
	HistoryFrom time.Time
	// SummariesFrom is the oldest stored daily summary loaded, as YYYY-MM-DD.
	SummariesFrom string
	// AlertsFrom is the oldest inactive alert loaded; active alerts are always loaded.
	AlertsFrom time.Time
}

// RunRequest asks the engine for one batch run.
type RunRequest struct {
	RunID       string `json:"runId,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
	Incremental bool   `json:"incremental"`
}

// RunReport is everything a run produced.
type RunReport struct {
	RunID              string                `json:"runId"`
	Trigger            string                `json:"trigger,omitempty"`
	StartedAt          time.Time             `json:"startedAt"`
	FinishedAt         time.Time             `json:"finishedAt"`
	ScoredTransactions int                   `json:"scoredTransactions"`
	Quality            QualitySummary        `json:"quality"`
	Assessments        []RiskAssessment      `json:"assessments,omitempty"`
	DailySummaries     []DailySummary        `json:"dailySummaries,omitempty"`
	Profiles           []CustomerRiskProfile `json:"profiles,omitempty"`
	Alerts             []FraudAlert          `json:"alerts,omitempty"`
	Overview           DashboardOverview     `json:"overview"`
	Compliance         []ComplianceMetric    `json:"compliance"`
}

// RunCompleted is published after a run is committed.
type RunCompleted struct {
	RunID         string    `json:"runId"`
	TotalChecks   int       `json:"totalChecks"`
	FailedChecks  int       `json:"failedChecks"`
	Scored        int       `json:"scored"`
	AlertsOpened  int       `json:"alertsOpened"`
	FinishedAt    time.Time `json:"finishedAt"`
	DurationMs    int64     `json:"durationMs"`
	QualityScore  float64   `json:"qualityScore"`
	HighRiskCount int       `json:"highRiskCount"`
}
