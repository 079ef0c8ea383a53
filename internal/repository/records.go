package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	customerColumns = []string{
		"cccd_number", "passport_number", "full_name", "date_of_birth", "phone_number",
		"email", "address", "kyc_status", "risk_level", "is_active", "created_at",
	}
	accountColumns = []string{
		"customer_id", "account_number", "account_type", "balance", "currency",
		"status", "daily_limit", "monthly_limit", "opened_at", "created_at",
	}
	deviceColumns = []string{
		"customer_id", "device_fingerprint", "device_type", "is_trusted",
		"verification_status", "last_used_at", "created_at",
	}
	authEventColumns = []string{
		"customer_id", "device_id", "auth_method", "auth_status",
		"risk_score", "failed_attempts", "created_at",
	}
	transactionColumns = []string{
		"from_account_id", "to_account_id", "transaction_type", "amount", "currency",
		"reference_number", "description", "status", "channel", "device_id", "auth_method",
		"risk_score", "is_high_risk", "requires_strong_auth", "created_at", "completed_at",
	}
)

// SaveCustomer inserts or replaces a customer.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		return fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	risk := c.RiskLevel
	if risk == "" {
		risk = domain.RiskLow
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsert("customers", []string{"customer_id"}, customerColumns)),
		c.ID, nullString(c.CCCDNumber), c.PassportNumber, nullString(c.FullName), nullTime(c.DateOfBirth),
		nullString(c.PhoneNumber), nullString(c.Email), c.Address, nullString(string(c.KYCStatus)),
		risk, boolToInt(c.IsActive), c.CreatedAt.UTC(),
	)
	return err
}

// SaveAccount inserts or replaces a bank account.
func (r *SQLRepository) SaveAccount(ctx context.Context, a *domain.Account) error {
	if a.ID == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidInput)
	}
	currency := a.Currency
	if currency == "" {
		currency = "VND"
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsert("bank_accounts", []string{"account_id"}, accountColumns)),
		a.ID, nullString(a.CustomerID), nullString(a.AccountNumber), nullString(string(a.AccountType)),
		a.Balance, currency, nullString(string(a.Status)), a.DailyLimit, a.MonthlyLimit,
		nullTime(a.OpenedAt), a.CreatedAt.UTC(),
	)
	return err
}

// SaveDevice inserts or replaces a device.
func (r *SQLRepository) SaveDevice(ctx context.Context, d *domain.Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsert("devices", []string{"device_id"}, deviceColumns)),
		d.ID, nullString(d.CustomerID), nullString(d.Fingerprint), nullString(string(d.DeviceType)),
		boolToInt(d.IsTrusted), nullString(string(d.VerificationStatus)), nullTime(d.LastUsedAt), d.CreatedAt.UTC(),
	)
	return err
}

// SaveAuthEvent inserts or replaces an authentication event.
func (r *SQLRepository) SaveAuthEvent(ctx context.Context, e *domain.AuthEvent) error {
	if e.ID == "" {
		return fmt.Errorf("%w: auth_id is required", ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsert("authentication_logs", []string{"auth_id"}, authEventColumns)),
		e.ID, nullString(e.CustomerID), e.DeviceID, nullString(string(e.Method)), nullString(string(e.Status)),
		e.RiskScore, e.FailedAttempts, e.CreatedAt.UTC(),
	)
	return err
}

// SaveTransaction inserts or replaces a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidInput)
	}
	currency := tx.Currency
	if currency == "" {
		currency = "VND"
	}
	_, err := r.db.ExecContext(ctx, r.rebind(upsert("transactions", []string{"transaction_id"}, transactionColumns)),
		tx.ID, nullString(tx.FromAccountID), tx.ToAccountID, nullString(string(tx.Type)), tx.Amount, currency,
		tx.ReferenceNumber, tx.Description, nullString(string(tx.Status)), nullString(string(tx.Channel)),
		tx.DeviceID, nullString(string(tx.AuthMethod)), tx.RiskScore, boolToInt(tx.IsHighRisk),
		boolToInt(tx.RequiresStrongAuth), tx.CreatedAt.UTC(), nullTime(tx.CompletedAt),
	)
	return err
}

// LoadSnapshot reads every record a run needs inside one read transaction.
// Transactions carry the latest stored assessment, when there is one.
func (r *SQLRepository) LoadSnapshot(ctx context.Context, opts domain.SnapshotOptions) (*domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := &domain.Snapshot{ScoreFrom: opts.ScoreFrom}

	if snap.Customers, err = r.loadCustomers(ctx, tx); err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	if snap.Accounts, err = r.loadAccounts(ctx, tx); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if snap.Devices, err = r.loadDevices(ctx, tx); err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	if snap.AuthEvents, err = r.loadAuthEvents(ctx, tx, opts.HistoryFrom); err != nil {
		return nil, fmt.Errorf("load auth events: %w", err)
	}
	if snap.Transactions, err = r.loadTransactions(ctx, tx, opts.HistoryFrom); err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if snap.StoredSummaries, err = r.queryDailySummaries(ctx, tx, opts.SummariesFrom, ""); err != nil {
		return nil, fmt.Errorf("load daily summaries: %w", err)
	}
	if snap.Alerts, err = r.loadSnapshotAlerts(ctx, tx, opts.AlertsFrom); err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	snap.LoadedAt = time.Now().UTC()
	return snap, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) loadCustomers(ctx context.Context, q queryer) ([]*domain.Customer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT customer_id, cccd_number, passport_number, full_name, date_of_birth, phone_number,
			   email, address, kyc_status, risk_level, is_active, created_at
		FROM customers
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		var cccd, passport, name, phone, email, address, kyc sql.NullString
		var dob sql.NullTime
		var active int

		if err := rows.Scan(
			&c.ID, &cccd, &passport, &name, &dob, &phone,
			&email, &address, &kyc, &c.RiskLevel, &active, &c.CreatedAt,
		); err != nil {
			return nil, err
		}

		c.CCCDNumber = cccd.String
		c.PassportNumber = strPtr(passport)
		c.FullName = name.String
		c.DateOfBirth = timePtr(dob)
		c.PhoneNumber = phone.String
		c.Email = email.String
		c.Address = strPtr(address)
		c.KYCStatus = domain.KYCStatus(kyc.String)
		c.IsActive = active == 1
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *SQLRepository) loadAccounts(ctx context.Context, q queryer) ([]*domain.Account, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account_id, customer_id, account_number, account_type, balance, currency,
			   status, daily_limit, monthly_limit, opened_at, created_at
		FROM bank_accounts
		ORDER BY account_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		var a domain.Account
		var customer, number, typ, status sql.NullString
		var balance, daily, monthly decimal.NullDecimal
		var opened sql.NullTime

		if err := rows.Scan(
			&a.ID, &customer, &number, &typ, &balance, &a.Currency,
			&status, &daily, &monthly, &opened, &a.CreatedAt,
		); err != nil {
			return nil, err
		}

		a.CustomerID = customer.String
		a.AccountNumber = number.String
		a.AccountType = domain.AccountType(typ.String)
		a.Balance = decOrZero(balance)
		a.Status = domain.AccountStatus(status.String)
		a.DailyLimit = decPtr(daily)
		a.MonthlyLimit = decPtr(monthly)
		a.OpenedAt = timePtr(opened)
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *SQLRepository) loadDevices(ctx context.Context, q queryer) ([]*domain.Device, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT device_id, customer_id, device_fingerprint, device_type, is_trusted,
			   verification_status, last_used_at, created_at
		FROM devices
		ORDER BY device_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		var d domain.Device
		var customer, fingerprint, typ, status sql.NullString
		var trusted int
		var lastUsed sql.NullTime

		if err := rows.Scan(
			&d.ID, &customer, &fingerprint, &typ, &trusted,
			&status, &lastUsed, &d.CreatedAt,
		); err != nil {
			return nil, err
		}

		d.CustomerID = customer.String
		d.Fingerprint = fingerprint.String
		d.DeviceType = domain.DeviceType(typ.String)
		d.IsTrusted = trusted == 1
		d.VerificationStatus = domain.DeviceStatus(status.String)
		d.LastUsedAt = timePtr(lastUsed)
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *SQLRepository) loadAuthEvents(ctx context.Context, q queryer, from time.Time) ([]*domain.AuthEvent, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`
		SELECT auth_id, customer_id, device_id, auth_method, auth_status,
			   risk_score, failed_attempts, created_at
		FROM authentication_logs
		WHERE created_at >= ?
		ORDER BY created_at, auth_id
	`), from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuthEvent
	for rows.Next() {
		var e domain.AuthEvent
		var customer, device, method, status sql.NullString

		if err := rows.Scan(
			&e.ID, &customer, &device, &method, &status,
			&e.RiskScore, &e.FailedAttempts, &e.CreatedAt,
		); err != nil {
			return nil, err
		}

		e.CustomerID = customer.String
		e.DeviceID = strPtr(device)
		e.Method = domain.AuthMethod(method.String)
		e.Status = domain.AuthStatus(status.String)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *SQLRepository) loadTransactions(ctx context.Context, q queryer, from time.Time) ([]*domain.Transaction, error) {
	rows, err := q.QueryContext(ctx, r.rebind(`
		SELECT t.transaction_id, t.from_account_id, t.to_account_id, t.transaction_type, t.amount,
			   t.currency, t.reference_number, t.description, t.status, t.channel, t.device_id,
			   t.auth_method, COALESCE(ra.score, t.risk_score), COALESCE(ra.is_high_risk, t.is_high_risk),
			   t.requires_strong_auth, t.created_at, t.completed_at
		FROM transactions t
		LEFT JOIN risk_assessments ra ON ra.transaction_id = t.transaction_id
		WHERE t.created_at >= ?
		ORDER BY t.created_at, t.transaction_id
	`), from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var account, to, typ, ref, desc, status, channel, device, method sql.NullString
		var amount decimal.NullDecimal
		var highRisk, strong int
		var completed sql.NullTime

		if err := rows.Scan(
			&t.ID, &account, &to, &typ, &amount,
			&t.Currency, &ref, &desc, &status, &channel, &device,
			&method, &t.RiskScore, &highRisk,
			&strong, &t.CreatedAt, &completed,
		); err != nil {
			return nil, err
		}

		t.FromAccountID = account.String
		t.ToAccountID = strPtr(to)
		t.Type = domain.TransactionType(typ.String)
		t.Amount = decPtr(amount)
		t.ReferenceNumber = strPtr(ref)
		t.Description = strPtr(desc)
		t.Status = domain.TransactionStatus(status.String)
		t.Channel = domain.Channel(channel.String)
		t.DeviceID = strPtr(device)
		t.AuthMethod = domain.AuthMethod(method.String)
		t.IsHighRisk = highRisk == 1
		t.RequiresStrongAuth = strong == 1
		t.CreatedAt = t.CreatedAt.UTC()
		t.CompletedAt = timePtr(completed)
		out = append(out, &t)
	}
	return out, rows.Err()
}
