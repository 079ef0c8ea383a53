package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const alertColumns = `alert_id, transaction_id, customer_id, subject, alert_type, severity,
	description, status, review_note, run_id, created_at, updated_at, resolved_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var txID, note, runID sql.NullString
	var resolved sql.NullTime

	if err := s.Scan(
		&a.ID, &txID, &a.CustomerID, &a.Subject, &a.AlertType, &a.Severity,
		&a.Description, &a.Status, &note, &runID, &a.CreatedAt, &a.UpdatedAt, &resolved,
	); err != nil {
		return nil, err
	}

	a.TransactionID = strPtr(txID)
	a.ReviewNote = note.String
	a.RunID = runID.String
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.ResolvedAt = timePtr(resolved)
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]*domain.FraudAlert, error) {
	defer rows.Close()

	var out []*domain.FraudAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// loadSnapshotAlerts returns every active alert plus inactive ones created since from.
func (r *SQLRepository) loadSnapshotAlerts(ctx context.Context, q queryer, from time.Time) ([]*domain.FraudAlert, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`
		SELECT `+alertColumns+`
		FROM fraud_alerts
		WHERE status IN ('OPEN', 'INVESTIGATING') OR created_at >= ?
		ORDER BY created_at, alert_id
	`), from.UTC())
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *SQLRepository) activeAlerts(ctx context.Context, q queryer) ([]*domain.FraudAlert, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM fraud_alerts
		WHERE status IN ('OPEN', 'INVESTIGATING')
		ORDER BY created_at, alert_id
	`)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// ListAlerts returns alerts matching filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.FraudAlert, error) {
	var where []string
	var args []any

	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + alertColumns + " FROM fraud_alerts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, alert_id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error) {
	return r.getAlert(ctx, r.db, alertID)
}

func (r *SQLRepository) getAlert(ctx context.Context, q queryer, alertID string) (*domain.FraudAlert, error) {
	row := q.QueryRowContext(ctx, r.rebind(`SELECT `+alertColumns+` FROM fraud_alerts WHERE alert_id = ?`), alertID)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// UpdateAlertStatus applies a reviewer's status change. Moving an alert out
// of OPEN or INVESTIGATING stamps resolved_at.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, alertID string, update *domain.AlertStatusUpdate, at time.Time) (*domain.FraudAlert, error) {
	if update == nil || update.Status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := r.getAlert(ctx, tx, alertID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(update.Status) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, update.Status)
	}

	var resolved any
	if !update.Status.IsActive() {
		resolved = at.UTC()
	}
	note := current.ReviewNote
	if update.Note != "" {
		note = update.Note
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE fraud_alerts
		SET status = ?, review_note = ?, updated_at = ?, resolved_at = ?
		WHERE alert_id = ?
	`), update.Status, nullString(note), at.UTC(), resolved, alertID); err != nil {
		return nil, err
	}

	updated, err := r.getAlert(ctx, tx, alertID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// PurgeExpired deletes old authentication events and closed alerts.
func (r *SQLRepository) PurgeExpired(ctx context.Context, authBefore, alertsBefore time.Time) (int64, int64, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM authentication_logs WHERE created_at < ?`), authBefore.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("purge auth events: %w", err)
	}
	authDeleted, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, r.rebind(`
		DELETE FROM fraud_alerts
		WHERE status IN ('RESOLVED', 'FALSE_POSITIVE') AND updated_at < ?
	`), alertsBefore.UTC())
	if err != nil {
		return authDeleted, 0, fmt.Errorf("purge alerts: %w", err)
	}
	alertsDeleted, _ := res.RowsAffected()

	return authDeleted, alertsDeleted, nil
}
