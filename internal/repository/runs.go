package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	assessmentColumns = []string{
		"run_id", "account_id", "customer_id", "score", "risk_level", "decision",
		"flags", "factors", "is_high_risk", "requires_strong_auth", "assessed_at",
	}
	summaryColumns = []string{
		"total_transactions", "total_amount", "high_value_transactions", "strong_auth_transactions",
		"failed_transactions", "high_risk_transactions", "risk_score_avg", "updated_at",
	}
	profileColumns = []string{
		"full_name", "risk_level", "total_transactions", "total_amount", "unverified_devices",
		"suspicious_devices", "high_risk_transactions", "recent_alerts", "open_alerts", "updated_at",
	}
)

const insertAlert = `
	INSERT INTO fraud_alerts (
		alert_id, transaction_id, customer_id, subject, alert_type, severity,
		description, status, run_id, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING
`

// CommitRun writes every output of a run in one SQL transaction: either all
// upserts and inserts land or none do. Alerts that lose a race against an
// active alert with the same subject and type are dropped from report.Alerts;
// settle, when set, then gets every active alert as seen inside the
// transaction and rebuilds the alert-derived outputs before the profiles
// and the run row are written.
func (r *SQLRepository) CommitRun(ctx context.Context, report *domain.RunReport, settle domain.AlertSettler) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := r.writeAssessments(ctx, tx, report); err != nil {
		return fmt.Errorf("write assessments: %w", err)
	}
	if err := r.writeSummaries(ctx, tx, report.DailySummaries, report.FinishedAt); err != nil {
		return fmt.Errorf("write daily summaries: %w", err)
	}
	inserted, err := r.writeAlerts(ctx, tx, report.Alerts)
	if err != nil {
		return fmt.Errorf("write alerts: %w", err)
	}
	if len(inserted) != len(report.Alerts) {
		report.Alerts = inserted
		if settle != nil {
			active, err := r.activeAlerts(ctx, tx)
			if err != nil {
				return fmt.Errorf("reload active alerts: %w", err)
			}
			settle(report, active)
		}
	}
	if err := r.writeProfiles(ctx, tx, report.Profiles); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	if err := r.writeRun(ctx, tx, report); err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (r *SQLRepository) writeAssessments(ctx context.Context, tx *sql.Tx, report *domain.RunReport) error {
	if len(report.Assessments) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(upsert("risk_assessments", []string{"transaction_id"}, assessmentColumns)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range report.Assessments {
		a := &report.Assessments[i]
		flags, err := json.Marshal(a.Flags)
		if err != nil {
			return fmt.Errorf("assessment %s flags: %w", a.TransactionID, err)
		}
		factors, err := json.Marshal(a.Factors)
		if err != nil {
			return fmt.Errorf("assessment %s factors: %w", a.TransactionID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			a.TransactionID, report.RunID, a.AccountID, nullString(a.CustomerID), a.Score, a.Level,
			a.Decision, string(flags), string(factors), boolToInt(a.IsHighRisk),
			boolToInt(a.RequiresStrongAuth), a.AssessedAt.UTC(),
		); err != nil {
			return fmt.Errorf("assessment %s: %w", a.TransactionID, err)
		}
	}
	return nil
}

func (r *SQLRepository) writeSummaries(ctx context.Context, tx *sql.Tx, summaries []domain.DailySummary, at time.Time) error {
	if len(summaries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(upsert("daily_summaries", []string{"customer_id", "summary_date"}, summaryColumns)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range summaries {
		if _, err := stmt.ExecContext(ctx,
			s.CustomerID, s.SummaryDate, s.TotalTransactions, s.TotalAmount, s.HighValueTransactions,
			s.StrongAuthTransactions, s.FailedTransactions, s.HighRiskTransactions, s.RiskScoreAvg, at.UTC(),
		); err != nil {
			return fmt.Errorf("summary %s/%s: %w", s.CustomerID, s.SummaryDate, err)
		}
	}
	return nil
}

// writeProfiles upserts profiles and mirrors each risk level onto its
// customer, the only raw column the engine ever changes.
func (r *SQLRepository) writeProfiles(ctx context.Context, tx *sql.Tx, profiles []domain.CustomerRiskProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(upsert("customer_profiles", []string{"customer_id"}, profileColumns)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	level, err := tx.PrepareContext(ctx, r.rebind(`UPDATE customers SET risk_level = ? WHERE customer_id = ?`))
	if err != nil {
		return err
	}
	defer level.Close()

	for _, p := range profiles {
		if _, err := stmt.ExecContext(ctx,
			p.CustomerID, nullString(p.FullName), p.RiskLevel, p.TotalTransactions, p.TotalAmount,
			p.UnverifiedDevices, p.SuspiciousDevices, p.HighRiskTransactions, p.RecentAlerts,
			p.OpenAlerts, p.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("profile %s: %w", p.CustomerID, err)
		}
		if _, err := level.ExecContext(ctx, p.RiskLevel, p.CustomerID); err != nil {
			return fmt.Errorf("risk level %s: %w", p.CustomerID, err)
		}
	}
	return nil
}

func (r *SQLRepository) writeAlerts(ctx context.Context, tx *sql.Tx, alerts []domain.FraudAlert) ([]domain.FraudAlert, error) {
	if len(alerts) == 0 {
		return alerts, nil
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(insertAlert))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]domain.FraudAlert, 0, len(alerts))
	for _, a := range alerts {
		res, err := stmt.ExecContext(ctx,
			a.ID, a.TransactionID, a.CustomerID, a.Subject, a.AlertType, a.Severity,
			a.Description, a.Status, nullString(a.RunID), a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		inserted = append(inserted, a)
	}
	return inserted, nil
}

func (r *SQLRepository) writeRun(ctx context.Context, tx *sql.Tx, report *domain.RunReport) error {
	summary, err := json.Marshal(report.Quality)
	if err != nil {
		return err
	}
	overview, err := json.Marshal(report.Overview)
	if err != nil {
		return err
	}
	compliance, err := json.Marshal(report.Compliance)
	if err != nil {
		return err
	}

	q := report.Quality
	if _, err := tx.ExecContext(ctx, r.rebind(`
		INSERT INTO quality_runs (
			run_id, trigger_source, started_at, finished_at, scored_transactions,
			total_checks, passed, warnings, failed, success_rate, summary, overview, compliance
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		report.RunID, nullString(report.Trigger), report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.ScoredTransactions, q.TotalChecks, q.Passed, q.Warnings, q.Failed, q.SuccessRate,
		string(summary), string(overview), string(compliance),
	); err != nil {
		return err
	}

	if len(q.Checks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO check_results (
			run_id, check_name, category, subject, status, message, affected_records, details, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range q.Checks {
		var details any
		if len(c.Details) > 0 {
			b, _ := json.Marshal(c.Details)
			details = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			report.RunID, c.CheckName, c.Category, c.Subject, c.Status, c.Message,
			c.AffectedRecords, details, c.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("check %s: %w", c.CheckName, err)
		}
	}
	return nil
}

// LatestRun returns the headline of the most recent committed run.
// Assessments, summaries, profiles and alerts are served by their own queries.
func (r *SQLRepository) LatestRun(ctx context.Context) (*domain.RunReport, error) {
	var report domain.RunReport
	var trigger sql.NullString
	var summary, overview, compliance string

	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, trigger_source, started_at, finished_at, scored_transactions,
			   summary, overview, compliance
		FROM quality_runs
		ORDER BY finished_at DESC, run_id DESC
		LIMIT 1
	`).Scan(
		&report.RunID, &trigger, &report.StartedAt, &report.FinishedAt, &report.ScoredTransactions,
		&summary, &overview, &compliance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	report.Trigger = trigger.String
	report.StartedAt = report.StartedAt.UTC()
	report.FinishedAt = report.FinishedAt.UTC()
	if err := json.Unmarshal([]byte(summary), &report.Quality); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	if err := json.Unmarshal([]byte(overview), &report.Overview); err != nil {
		return nil, fmt.Errorf("failed to parse run overview: %w", err)
	}
	if err := json.Unmarshal([]byte(compliance), &report.Compliance); err != nil {
		return nil, fmt.Errorf("failed to parse run compliance: %w", err)
	}
	return &report, nil
}
