package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func amt(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func str(s string) *string { return &s }

func newRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seed stores one customer making a 15,000,000 PASSWORD transfer from an
// unverified device.
func seed(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveCustomer(ctx, &domain.Customer{
		ID: "cust-1", CCCDNumber: "001090000001", FullName: "Nguyen Van An", DateOfBirth: &dob,
		PhoneNumber: "0912345678", Email: "an@example.vn", KYCStatus: domain.KYCVerified,
		IsActive: true, CreatedAt: now.AddDate(-1, 0, 0),
	}))
	require.NoError(t, repo.SaveAccount(ctx, &domain.Account{
		ID: "acc-1", CustomerID: "cust-1", AccountNumber: "1234567890", AccountType: domain.AccountChecking,
		Balance: decimal.NewFromInt(100_000_000), Status: domain.AccountActive,
		DailyLimit: amt(500_000_000), CreatedAt: now.AddDate(-1, 0, 0),
	}))
	require.NoError(t, repo.SaveDevice(ctx, &domain.Device{
		ID: "dev-1", CustomerID: "cust-1", Fingerprint: "fp-1", DeviceType: domain.DeviceMobile,
		VerificationStatus: domain.DeviceUnverified, CreatedAt: now.AddDate(0, -1, 0),
	}))
	require.NoError(t, repo.SaveTransaction(ctx, &domain.Transaction{
		ID: "tx-1", FromAccountID: "acc-1", ToAccountID: str("acc-9"), Type: domain.TxTransfer,
		Amount: amt(15_000_000), Currency: "VND", ReferenceNumber: str("REF-1"),
		Status: domain.TxCompleted, Channel: domain.ChannelMobile, DeviceID: str("dev-1"),
		AuthMethod: domain.AuthPassword, CreatedAt: now.Add(-time.Hour), CompletedAt: timeRef(now.Add(-time.Hour)),
	}))
}

func timeRef(t time.Time) *time.Time { return &t }

func newEngine(t *testing.T, repo domain.Repository, c domain.Cache, b domain.EventBus, custom *rules.Engine) *Engine {
	t.Helper()
	e := New(domain.DefaultConfig(), repo, c, b, custom, nil)
	e.now = func() time.Time { return now }
	return e
}

func alertTypes(alerts []domain.FraudAlert) map[domain.AlertType]domain.Severity {
	out := make(map[domain.AlertType]domain.Severity, len(alerts))
	for _, a := range alerts {
		out[a.AlertType] = a.Severity
	}
	return out
}

func TestRun(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	ctx := context.Background()
	e := newEngine(t, repo, nil, nil, nil)

	report, err := e.Run(ctx, domain.RunRequest{RunID: "run-1", Trigger: "test"})
	require.NoError(t, err)

	require.Equal(t, 1, report.ScoredTransactions)
	a := report.Assessments[0]
	assert.GreaterOrEqual(t, a.Score, 70)
	assert.LessOrEqual(t, a.Score, 100)
	assert.True(t, a.IsHighRisk)
	assert.True(t, a.HasFlag(domain.FlagWeakAuth))

	types := alertTypes(report.Alerts)
	assert.Equal(t, domain.SeverityHigh, types[domain.AlertRegulatory])
	assert.Contains(t, types, domain.AlertDeviceRisk)

	stored, err := repo.ListAlerts(ctx, domain.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, len(report.Alerts))

	latest, err := repo.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	assert.Equal(t, report.Quality.TotalChecks, latest.Quality.TotalChecks)

	var highValueAuth *domain.CheckResult
	for i := range report.Quality.Checks {
		if report.Quality.Checks[i].Category == domain.CategoryCompliance &&
			report.Quality.Checks[i].Subject == "transactions.auth_method" {
			highValueAuth = &report.Quality.Checks[i]
		}
	}
	require.NotNil(t, highValueAuth)
	assert.Equal(t, domain.CheckFail, highValueAuth.Status)

	summaries, err := repo.ListDailySummaries(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].TotalTransactions)
	assert.True(t, summaries[0].TotalAmount.Equal(decimal.NewFromInt(15_000_000)))

	profiles, err := repo.ListCustomerProfiles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.NotEqual(t, domain.RiskLow, profiles[0].RiskLevel)

	t.Run("rerun is idempotent", func(t *testing.T) {
		again, err := e.Run(ctx, domain.RunRequest{RunID: "run-2", Trigger: "test"})
		require.NoError(t, err)
		assert.Empty(t, again.Alerts)

		stored, err := repo.ListAlerts(ctx, domain.AlertFilter{})
		require.NoError(t, err)
		assert.Len(t, stored, len(report.Alerts))

		rerun, err := repo.ListDailySummaries(ctx, "2026-03-10", "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, summaries, rerun)
		assert.Equal(t, report.Assessments, again.Assessments)
	})
}

// TestRerunDoesNotDrift stores a customer whose profile turns HIGH on the
// first run (daily limit exceeded) while every transaction stays below the
// high-risk threshold. A second run over the same records must score the
// same.
func TestRerunDoesNotDrift(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	dob := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveCustomer(ctx, &domain.Customer{
		ID: "cust-2", CCCDNumber: "001085000002", FullName: "Tran Thi Binh", DateOfBirth: &dob,
		PhoneNumber: "0987654321", Email: "binh@example.vn", KYCStatus: domain.KYCVerified,
		IsActive: true, CreatedAt: now.AddDate(-1, 0, 0),
	}))
	require.NoError(t, repo.SaveAccount(ctx, &domain.Account{
		ID: "acc-2", CustomerID: "cust-2", AccountNumber: "2234567890", AccountType: domain.AccountChecking,
		Balance: decimal.NewFromInt(500_000_000), Status: domain.AccountActive,
		DailyLimit: amt(50_000_000), CreatedAt: now.AddDate(-1, 0, 0),
	}))
	require.NoError(t, repo.SaveDevice(ctx, &domain.Device{
		ID: "dev-2", CustomerID: "cust-2", Fingerprint: "fp-2", DeviceType: domain.DeviceMobile,
		IsTrusted: true, VerificationStatus: domain.DeviceVerified, CreatedAt: now.Add(-3 * time.Hour),
	}))
	for i := 0; i < 4; i++ {
		at := now.Add(-time.Duration(150-30*i) * time.Minute)
		require.NoError(t, repo.SaveTransaction(ctx, &domain.Transaction{
			ID: fmt.Sprintf("tx-2%d", i), FromAccountID: "acc-2", ToAccountID: str("acc-9"), Type: domain.TxTransfer,
			Amount: amt(15_000_000), Currency: "VND", ReferenceNumber: str(fmt.Sprintf("REF-2%d", i)),
			Status: domain.TxCompleted, Channel: domain.ChannelMobile, DeviceID: str("dev-2"),
			AuthMethod: domain.AuthPassword, CreatedAt: at, CompletedAt: timeRef(at),
		}))
	}

	e := newEngine(t, repo, nil, nil, nil)
	first, err := e.Run(ctx, domain.RunRequest{RunID: "run-1", Trigger: "test"})
	require.NoError(t, err)

	require.Len(t, first.Assessments, 4)
	for _, a := range first.Assessments {
		// HIGH_VALUE + WEAK_AUTH + NEW_DEVICE
		assert.Equal(t, 65, a.Score, a.TransactionID)
		assert.False(t, a.IsHighRisk)
	}
	require.Len(t, first.Profiles, 1)
	assert.Equal(t, domain.RiskHigh, first.Profiles[0].RiskLevel)
	firstSummaries, err := repo.ListDailySummaries(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)

	second, err := e.Run(ctx, domain.RunRequest{RunID: "run-2", Trigger: "test"})
	require.NoError(t, err)

	assert.Equal(t, first.Assessments, second.Assessments)
	for _, a := range second.Assessments {
		assert.False(t, a.HasFlag(domain.FlagHighRiskCustomer), a.TransactionID)
	}
	secondSummaries, err := repo.ListDailySummaries(ctx, "2026-03-10", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, firstSummaries, secondSummaries)
	require.Len(t, secondSummaries, 1)
	assert.Zero(t, secondSummaries[0].HighRiskTransactions)
	assert.Equal(t, 65.0, secondSummaries[0].RiskScoreAvg)
}

// racingRepo stores a competing alert right before the run commits.
type racingRepo struct {
	*repository.SQLRepository
	before func(ctx context.Context, report *domain.RunReport)
}

func (r *racingRepo) CommitRun(ctx context.Context, report *domain.RunReport, settle domain.AlertSettler) error {
	if r.before != nil {
		r.before(ctx, report)
		r.before = nil
	}
	return r.SQLRepository.CommitRun(ctx, report, settle)
}

func TestRunCountsOnlyStoredAlerts(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	ctx := context.Background()

	racing := &racingRepo{SQLRepository: repo}
	racing.before = func(ctx context.Context, report *domain.RunReport) {
		require.NotEmpty(t, report.Alerts)
		dup := report.Alerts[0]
		dup.ID = "alert-elsewhere"
		dup.RunID = "run-other"
		require.NoError(t, repo.CommitRun(ctx, &domain.RunReport{
			RunID: "run-other", Trigger: "test", StartedAt: now, FinishedAt: now,
			Alerts: []domain.FraudAlert{dup},
		}, nil))
	}

	e := newEngine(t, racing, nil, nil, nil)
	report, err := e.Run(ctx, domain.RunRequest{RunID: "run-1", Trigger: "test"})
	require.NoError(t, err)

	stored, err := repo.ListAlerts(ctx, domain.AlertFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	assert.Len(t, report.Alerts, len(stored)-1)

	assert.Equal(t, len(stored), report.Overview.ActiveAlerts)
	require.Len(t, report.Profiles, 1)
	assert.Equal(t, len(stored), report.Profiles[0].OpenAlerts)

	profiles, err := repo.ListCustomerProfiles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, len(stored), profiles[0].OpenAlerts)
}

func TestRunCancelled(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	e := newEngine(t, repo, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, domain.RunRequest{RunID: "run-x"})
	require.ErrorIs(t, err, context.Canceled)

	_, err = repo.LatestRun(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	alerts, err := repo.ListAlerts(context.Background(), domain.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRunLock(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	ctx := context.Background()
	c := cache.NewLRUCache(100, "test")
	e := newEngine(t, repo, c, nil, nil)

	ok, err := c.Acquire(ctx, domain.CacheKeyRunLock, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.Run(ctx, domain.RunRequest{})
	require.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, c.Release(ctx, domain.CacheKeyRunLock))
	_, err = e.Run(ctx, domain.RunRequest{})
	require.NoError(t, err)

	// the run released its own lease
	ok, err = c.Acquire(ctx, domain.CacheKeyRunLock, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunSideEffects(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	ctx := context.Background()
	c := cache.NewLRUCache(100, "test")
	b := bus.NewChannelBus(100)
	defer b.Close()

	completed := make(chan domain.RunCompleted, 1)
	_, err := b.Subscribe(ctx, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		var evt domain.RunCompleted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return err
		}
		completed <- evt
		return nil
	})
	require.NoError(t, err)

	opened := make(chan string, 10)
	_, err = b.Subscribe(ctx, domain.TopicAlertOpened, func(ctx context.Context, msg *domain.Message) error {
		var a domain.FraudAlert
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		opened <- a.ID
		return nil
	})
	require.NoError(t, err)

	for _, key := range DashboardKeys {
		require.NoError(t, c.Set(ctx, key, []byte("stale"), time.Hour))
	}

	e := newEngine(t, repo, c, b, nil)
	report, err := e.Run(ctx, domain.RunRequest{RunID: "run-1"})
	require.NoError(t, err)

	select {
	case evt := <-completed:
		assert.Equal(t, "run-1", evt.RunID)
		assert.Equal(t, 1, evt.Scored)
		assert.Equal(t, len(report.Alerts), evt.AlertsOpened)
		assert.Equal(t, 1, evt.HighRiskCount)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for run.completed")
	}

	for range report.Alerts {
		select {
		case <-opened:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for alert.opened")
		}
	}

	for _, key := range DashboardKeys {
		val, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, val, "expected %s to be invalidated", key)
	}
}

func TestCustomRules(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo)
	ctx := context.Background()

	custom, err := rules.NewEngine()
	require.NoError(t, err)
	e := newEngine(t, repo, nil, nil, custom)

	baseline, err := e.Run(ctx, domain.RunRequest{RunID: "run-1"})
	require.NoError(t, err)

	require.NoError(t, e.SeedRules(ctx))
	require.NoError(t, e.SeedRules(ctx))

	configs, err := repo.ListRuleConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, configs, len(domain.DefaultRuleConfigs()))

	count, err := e.ReloadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(domain.DefaultRuleConfigs()), count)

	report, err := e.Run(ctx, domain.RunRequest{RunID: "run-2"})
	require.NoError(t, err)
	assert.Equal(t, baseline.Quality.TotalChecks+count, report.Quality.TotalChecks)

	t.Run("broken rule keeps the loaded set", func(t *testing.T) {
		require.NoError(t, repo.SaveRuleConfig(ctx, &domain.RuleConfig{
			ID: "broken", Name: "Broken", Collection: domain.CollectionTransactions,
			Expression: "record.amount >", Enabled: true,
		}))
		_, err := e.ReloadRules(ctx)
		require.Error(t, err)
		assert.Equal(t, count, custom.RulesCount())
	})
}

func TestSnapshotOptions(t *testing.T) {
	e := New(domain.DefaultConfig(), nil, nil, nil, nil, nil)

	full := e.snapshotOptions(domain.RunRequest{}, now)
	assert.True(t, full.ScoreFrom.IsZero())
	assert.Equal(t, now.AddDate(0, 0, -30), full.HistoryFrom)
	assert.Equal(t, "2026-03-03", full.SummariesFrom)
	assert.Equal(t, now.AddDate(0, 0, -30), full.AlertsFrom)

	inc := e.snapshotOptions(domain.RunRequest{Incremental: true}, now)
	assert.Equal(t, now.Add(-24*time.Hour), inc.ScoreFrom)
}
