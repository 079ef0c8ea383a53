package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// ListCustomerProfiles returns profiles, riskiest first.
func (r *SQLRepository) ListCustomerProfiles(ctx context.Context, limit int) ([]*domain.CustomerRiskProfile, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT customer_id, full_name, risk_level, total_transactions, total_amount, unverified_devices,
			   suspicious_devices, high_risk_transactions, recent_alerts, open_alerts, updated_at
		FROM customer_profiles
		ORDER BY CASE risk_level WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END DESC,
				 high_risk_transactions DESC, total_amount DESC, customer_id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CustomerRiskProfile
	for rows.Next() {
		var p domain.CustomerRiskProfile
		var name sql.NullString
		var amount decimal.NullDecimal

		if err := rows.Scan(
			&p.CustomerID, &name, &p.RiskLevel, &p.TotalTransactions, &amount, &p.UnverifiedDevices,
			&p.SuspiciousDevices, &p.HighRiskTransactions, &p.RecentAlerts, &p.OpenAlerts, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}

		p.FullName = name.String
		p.TotalAmount = decOrZero(amount)
		p.UpdatedAt = p.UpdatedAt.UTC()
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListDailySummaries returns stored summaries with from <= summary_date <= to.
// Empty bounds are open.
func (r *SQLRepository) ListDailySummaries(ctx context.Context, from, to string) ([]*domain.DailySummary, error) {
	return r.queryDailySummaries(ctx, r.db, from, to)
}

func (r *SQLRepository) queryDailySummaries(ctx context.Context, q queryer, from, to string) ([]*domain.DailySummary, error) {
	var where []string
	var args []any
	if from != "" {
		where = append(where, "summary_date >= ?")
		args = append(args, from)
	}
	if to != "" {
		where = append(where, "summary_date <= ?")
		args = append(args, to)
	}

	query := `
		SELECT customer_id, summary_date, total_transactions, total_amount, high_value_transactions,
			   strong_auth_transactions, failed_transactions, high_risk_transactions, risk_score_avg
		FROM daily_summaries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY summary_date, customer_id"

	rows, err := q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DailySummary
	for rows.Next() {
		var s domain.DailySummary
		var amount decimal.NullDecimal

		if err := rows.Scan(
			&s.CustomerID, &s.SummaryDate, &s.TotalTransactions, &amount, &s.HighValueTransactions,
			&s.StrongAuthTransactions, &s.FailedTransactions, &s.HighRiskTransactions, &s.RiskScoreAvg,
		); err != nil {
			return nil, err
		}

		s.TotalAmount = decOrZero(amount)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListUnverifiedDevices returns devices that are not VERIFIED, with their owners.
func (r *SQLRepository) ListUnverifiedDevices(ctx context.Context, limit int) ([]*domain.UnverifiedDevice, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT d.device_id, d.customer_id, c.full_name, d.device_type, d.verification_status,
			   d.last_used_at, d.created_at
		FROM devices d
		LEFT JOIN customers c ON c.customer_id = d.customer_id
		WHERE d.verification_status IS NULL OR d.verification_status <> 'VERIFIED'
		ORDER BY d.created_at DESC, d.device_id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UnverifiedDevice
	for rows.Next() {
		var d domain.UnverifiedDevice
		var customer, name, typ, status sql.NullString
		var lastUsed sql.NullTime

		if err := rows.Scan(&d.DeviceID, &customer, &name, &typ, &status, &lastUsed, &d.CreatedAt); err != nil {
			return nil, err
		}

		d.CustomerID = customer.String
		d.FullName = name.String
		d.DeviceType = domain.DeviceType(typ.String)
		d.VerificationStatus = domain.DeviceStatus(status.String)
		d.LastUsedAt = timePtr(lastUsed)
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}
