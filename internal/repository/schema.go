package repository

// Schema definitions for the Kestrel store.
// Compatible with both SQLite and PostgreSQL. Booleans are stored as
// INTEGER 0/1 and summary dates as YYYY-MM-DD text.

// Raw records. Columns that data-quality checks inspect stay nullable so
// defective rows can be loaded and reported instead of rejected.
const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id TEXT PRIMARY KEY,
    cccd_number TEXT,
    passport_number TEXT,
    full_name TEXT,
    date_of_birth DATE,
    phone_number TEXT,
    email TEXT,
    address TEXT,
    kyc_status TEXT,
    risk_level TEXT NOT NULL DEFAULT 'LOW',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_active ON customers(is_active);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS bank_accounts (
    account_id TEXT PRIMARY KEY,
    customer_id TEXT,
    account_number TEXT,
    account_type TEXT,
    balance NUMERIC(18,2) NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'VND',
    status TEXT,
    daily_limit NUMERIC(18,2),
    monthly_limit NUMERIC(18,2),
    opened_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bank_accounts_customer ON bank_accounts(customer_id);
`

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    device_id TEXT PRIMARY KEY,
    customer_id TEXT,
    device_fingerprint TEXT,
    device_type TEXT,
    is_trusted INTEGER NOT NULL DEFAULT 0,
    verification_status TEXT,
    last_used_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_devices_customer ON devices(customer_id);
CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(verification_status);
`

const schemaAuthEvents = `
CREATE TABLE IF NOT EXISTS authentication_logs (
    auth_id TEXT PRIMARY KEY,
    customer_id TEXT,
    device_id TEXT,
    auth_method TEXT,
    auth_status TEXT,
    risk_score INTEGER NOT NULL DEFAULT 0,
    failed_attempts INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_auth_logs_customer ON authentication_logs(customer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_auth_logs_created ON authentication_logs(created_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    from_account_id TEXT,
    to_account_id TEXT,
    transaction_type TEXT,
    amount NUMERIC(18,2),
    currency TEXT NOT NULL DEFAULT 'VND',
    reference_number TEXT,
    description TEXT,
    status TEXT,
    channel TEXT,
    device_id TEXT,
    auth_method TEXT,
    risk_score INTEGER NOT NULL DEFAULT 0,
    is_high_risk INTEGER NOT NULL DEFAULT 0,
    requires_strong_auth INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(from_account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

// Engine outputs.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS risk_assessments (
    transaction_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    customer_id TEXT,
    score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    decision TEXT NOT NULL,
    flags TEXT NOT NULL,
    factors TEXT NOT NULL,
    is_high_risk INTEGER NOT NULL,
    requires_strong_auth INTEGER NOT NULL,
    assessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_assessments_run ON risk_assessments(run_id);
`

// schemaAlerts enforces at most one active alert per (subject, alert_type).
const schemaAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    alert_id TEXT PRIMARY KEY,
    transaction_id TEXT,
    customer_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL,
    status TEXT NOT NULL,
    review_note TEXT,
    run_id TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fraud_alerts_active
    ON fraud_alerts(subject, alert_type)
    WHERE status IN ('OPEN', 'INVESTIGATING');
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status ON fraud_alerts(status, created_at);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_customer ON fraud_alerts(customer_id);
`

const schemaDailySummaries = `
CREATE TABLE IF NOT EXISTS daily_summaries (
    customer_id TEXT NOT NULL,
    summary_date TEXT NOT NULL,
    total_transactions INTEGER NOT NULL,
    total_amount NUMERIC(18,2) NOT NULL,
    high_value_transactions INTEGER NOT NULL,
    strong_auth_transactions INTEGER NOT NULL,
    failed_transactions INTEGER NOT NULL,
    high_risk_transactions INTEGER NOT NULL,
    risk_score_avg DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (customer_id, summary_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_summaries_date ON daily_summaries(summary_date);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS customer_profiles (
    customer_id TEXT PRIMARY KEY,
    full_name TEXT,
    risk_level TEXT NOT NULL,
    total_transactions INTEGER NOT NULL,
    total_amount NUMERIC(18,2) NOT NULL,
    unverified_devices INTEGER NOT NULL,
    suspicious_devices INTEGER NOT NULL,
    high_risk_transactions INTEGER NOT NULL,
    recent_alerts INTEGER NOT NULL,
    open_alerts INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS quality_runs (
    run_id TEXT PRIMARY KEY,
    trigger_source TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL,
    scored_transactions INTEGER NOT NULL,
    total_checks INTEGER NOT NULL,
    passed INTEGER NOT NULL,
    warnings INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    success_rate DOUBLE PRECISION NOT NULL,
    summary TEXT NOT NULL,
    overview TEXT NOT NULL,
    compliance TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quality_runs_finished ON quality_runs(finished_at);

CREATE TABLE IF NOT EXISTS check_results (
    run_id TEXT NOT NULL,
    check_name TEXT NOT NULL,
    category TEXT NOT NULL,
    subject TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT NOT NULL,
    affected_records INTEGER NOT NULL,
    details TEXT,
    checked_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, check_name)
);

CREATE INDEX IF NOT EXISTS idx_check_results_status ON check_results(status);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    collection TEXT NOT NULL,
    expression TEXT NOT NULL,
    policy TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaAccounts,
		schemaDevices,
		schemaAuthEvents,
		schemaTransactions,
		schemaAssessments,
		schemaAlerts,
		schemaDailySummaries,
		schemaProfiles,
		schemaRuns,
		schemaRuleConfigs,
	}
}
