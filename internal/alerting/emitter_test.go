package alerting

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func amt(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func strPtr(s string) *string { return &s }

func newEmitter() *Emitter {
	e := NewEmitter(domain.DefaultConfig().Alerting, nil)
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
	return e
}

func baseSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Customers: []*domain.Customer{{ID: "cust-1", IsActive: true}},
		Accounts:  []*domain.Account{{ID: "acc-1", CustomerID: "cust-1"}},
		Devices: []*domain.Device{
			{ID: "dev-1", CustomerID: "cust-1", VerificationStatus: domain.DeviceUnverified, CreatedAt: now.AddDate(0, -1, 0)},
		},
	}
}

func byType(alerts []domain.FraudAlert) map[domain.AlertType][]domain.FraudAlert {
	out := make(map[domain.AlertType][]domain.FraudAlert)
	for _, a := range alerts {
		out[a.AlertType] = append(out[a.AlertType], a)
	}
	return out
}

// pipe runs the real rule set and scorer over snap, then emits.
func pipe(t *testing.T, e *Emitter, snap *domain.Snapshot) []domain.FraudAlert {
	t.Helper()
	cfg := domain.DefaultConfig()
	checks := rules.NewRuleSet(cfg.Quality, nil, nil).Run(t.Context(), snap, now)
	assessments, err := scoring.NewScorer(cfg.Scoring).ScoreSnapshot(t.Context(), snap, now)
	require.NoError(t, err)
	return e.Emit(&Input{RunID: "run-1", Snapshot: snap, Assessments: assessments, Checks: checks, Now: now})
}

func TestHighValueWeakAuthUnverifiedDevice(t *testing.T) {
	snap := baseSnapshot()
	snap.Transactions = []*domain.Transaction{{
		ID: "tx-1", FromAccountID: "acc-1", Type: domain.TxTransfer, Amount: amt(15_000_000),
		Currency: "VND", AuthMethod: domain.AuthPassword, DeviceID: strPtr("dev-1"),
		Status: domain.TxCompleted, CreatedAt: now.Add(-time.Hour),
	}}

	alerts := pipe(t, newEmitter(), snap)
	got := byType(alerts)

	require.Len(t, got[domain.AlertRegulatory], 1)
	reg := got[domain.AlertRegulatory][0]
	assert.Equal(t, domain.SeverityHigh, reg.Severity)
	assert.Equal(t, domain.AlertOpen, reg.Status)
	assert.Equal(t, "cust-1", reg.CustomerID)
	require.NotNil(t, reg.TransactionID)
	assert.Equal(t, "tx-1", *reg.TransactionID)

	require.Len(t, got[domain.AlertDeviceRisk], 1)
	assert.Equal(t, domain.SeverityHigh, got[domain.AlertDeviceRisk][0].Severity)

	require.Len(t, got[domain.AlertHighRiskTransaction], 1)
	assert.Equal(t, domain.SeverityHigh, got[domain.AlertHighRiskTransaction][0].Severity)

	for _, a := range alerts {
		assert.Equal(t, "run-1", a.RunID)
		assert.Equal(t, now, a.CreatedAt)
	}
}

func TestNoDuplicatesOnRerun(t *testing.T) {
	snap := baseSnapshot()
	snap.Transactions = []*domain.Transaction{{
		ID: "tx-1", FromAccountID: "acc-1", Type: domain.TxTransfer, Amount: amt(15_000_000),
		AuthMethod: domain.AuthPassword, DeviceID: strPtr("dev-1"),
		Status: domain.TxCompleted, CreatedAt: now.Add(-time.Hour),
	}}

	e := newEmitter()
	first := pipe(t, e, snap)
	require.NotEmpty(t, first)

	for i := range first {
		snap.Alerts = append(snap.Alerts, &first[i])
	}
	second := pipe(t, e, snap)
	assert.Empty(t, second)

	t.Run("resolved alerts do not block", func(t *testing.T) {
		for _, a := range snap.Alerts {
			a.Status = domain.AlertResolved
		}
		third := pipe(t, e, snap)
		assert.Len(t, third, len(first))
	})

	t.Run("investigating alerts still block", func(t *testing.T) {
		for _, a := range snap.Alerts {
			a.Status = domain.AlertInvestigating
		}
		assert.Empty(t, pipe(t, e, snap))
	})
}

func TestScoreSeverityFloor(t *testing.T) {
	snap := baseSnapshot()
	assessments := []domain.RiskAssessment{
		{TransactionID: "tx-low", CustomerID: "cust-1", Score: 39},
		{TransactionID: "tx-med", CustomerID: "cust-1", Score: 40},
		{TransactionID: "tx-crit", CustomerID: "cust-1", Score: 95},
	}

	alerts := newEmitter().Emit(&Input{Snapshot: snap, Assessments: assessments, Now: now})
	got := byType(alerts)[domain.AlertHighRiskTransaction]

	require.Len(t, got, 2)
	assert.Equal(t, domain.SeverityMedium, got[0].Severity)
	assert.Equal(t, domain.SeverityCritical, got[1].Severity)
}

func TestComplianceAlertsSkipNonTransactionSubjects(t *testing.T) {
	snap := baseSnapshot()
	checks := []domain.CheckResult{
		{CheckName: rules.CheckDailyLimitAuth, Category: domain.CategoryCompliance, Subject: "daily_summaries.strong_auth_transactions",
			Status: domain.CheckFail, RecordIDs: []string{"cust-1/2026-03-10"}},
		{CheckName: rules.CheckDeviceVerification, Category: domain.CategoryCompliance, Subject: "devices.verification_status",
			Status: domain.CheckFail, RecordIDs: []string{"dev-1"}},
	}
	alerts := newEmitter().Emit(&Input{Snapshot: snap, Checks: checks, Now: now})
	assert.Empty(t, byType(alerts)[domain.AlertRegulatory])
}

func TestDeviceLimit(t *testing.T) {
	snap := baseSnapshot()
	for i := 2; i <= 3; i++ {
		snap.Devices = append(snap.Devices, &domain.Device{
			ID: fmt.Sprintf("dev-%d", i), CustomerID: "cust-1", VerificationStatus: domain.DeviceUnverified,
		})
	}

	alerts := newEmitter().Emit(&Input{Snapshot: snap, Now: now})
	got := byType(alerts)[domain.AlertDeviceLimit]
	require.Len(t, got, 1)
	assert.Equal(t, CustomerSubject("cust-1"), got[0].Subject)
	assert.Nil(t, got[0].TransactionID)
	assert.Equal(t, domain.SeverityMedium, got[0].Severity)
}

func TestDeviceRiskMinimumAmount(t *testing.T) {
	snap := baseSnapshot()
	snap.Transactions = []*domain.Transaction{
		{ID: "tx-small", FromAccountID: "acc-1", Amount: amt(1_000_000), DeviceID: strPtr("dev-1"), CreatedAt: now},
		{ID: "tx-big", FromAccountID: "acc-1", Amount: amt(1_000_001), DeviceID: strPtr("dev-1"), CreatedAt: now},
	}

	alerts := newEmitter().Emit(&Input{Snapshot: snap, Now: now})
	got := byType(alerts)[domain.AlertDeviceRisk]
	require.Len(t, got, 1)
	assert.Equal(t, "tx-big", got[0].Subject)
	assert.Equal(t, domain.SeverityMedium, got[0].Severity)
}

func TestAuthFailureMonitor(t *testing.T) {
	snap := baseSnapshot()
	for i := 0; i < 5; i++ {
		snap.AuthEvents = append(snap.AuthEvents, &domain.AuthEvent{
			ID: fmt.Sprintf("auth-%d", i), CustomerID: "cust-1", Status: domain.AuthFailed,
			CreatedAt: now.Add(-time.Duration(i*10) * time.Minute),
		})
	}
	snap.AuthEvents = append(snap.AuthEvents, &domain.AuthEvent{
		ID: "auth-old", CustomerID: "cust-2", Status: domain.AuthFailed, CreatedAt: now.Add(-2 * time.Hour),
	})

	got := byType(newEmitter().Emit(&Input{Snapshot: snap, Now: now}))[domain.AlertAuthFailure]
	require.Len(t, got, 1)
	assert.Equal(t, "cust-1", got[0].CustomerID)
	assert.Equal(t, domain.SeverityHigh, got[0].Severity)

	t.Run("below limit", func(t *testing.T) {
		snap.AuthEvents = snap.AuthEvents[1:]
		got := byType(newEmitter().Emit(&Input{Snapshot: snap, Now: now}))[domain.AlertAuthFailure]
		assert.Empty(t, got)
	})
}

func TestSuspiciousPatternMonitor(t *testing.T) {
	snap := baseSnapshot()
	for i := 0; i < 5; i++ {
		snap.Transactions = append(snap.Transactions, &domain.Transaction{
			ID: fmt.Sprintf("tx-%d", i), FromAccountID: "acc-1", Amount: amt(6_000_000),
			Status: domain.TxCompleted, CreatedAt: now.Add(-time.Duration(i*10) * time.Minute),
		})
	}

	got := byType(newEmitter().Emit(&Input{Snapshot: snap, Now: now}))[domain.AlertSuspiciousPattern]
	require.Len(t, got, 1)
	assert.Equal(t, domain.SeverityHigh, got[0].Severity)

	t.Run("spread over more than the window", func(t *testing.T) {
		for i, tx := range snap.Transactions {
			tx.CreatedAt = now.Add(-time.Duration(i*25) * time.Minute)
		}
		got := byType(newEmitter().Emit(&Input{Snapshot: snap, Now: now}))[domain.AlertSuspiciousPattern]
		assert.Empty(t, got)
	})
}

func TestDensest(t *testing.T) {
	base := now
	times := []time.Time{base, base.Add(10 * time.Minute), base.Add(50 * time.Minute), base.Add(70 * time.Minute), base.Add(3 * time.Hour)}
	assert.Equal(t, 3, densest(times, time.Hour))
	assert.Equal(t, 0, densest(nil, time.Hour))
}

func TestLimitWarningMonitor(t *testing.T) {
	snap := baseSnapshot()
	snap.Accounts = append(snap.Accounts,
		&domain.Account{ID: "acc-2", CustomerID: "cust-1", DailyLimit: amt(10_000_000)},
		&domain.Account{ID: "acc-3", CustomerID: "cust-1", DailyLimit: amt(10_000_000)},
		&domain.Account{ID: "acc-4", CustomerID: "cust-1", DailyLimit: amt(10_000_000)},
	)
	snap.Transactions = []*domain.Transaction{
		{ID: "a", FromAccountID: "acc-2", Amount: amt(9_000_000), Status: domain.TxCompleted, CreatedAt: now},
		{ID: "b", FromAccountID: "acc-3", Amount: amt(11_000_000), Status: domain.TxPending, CreatedAt: now},
		{ID: "c", FromAccountID: "acc-4", Amount: amt(5_000_000), Status: domain.TxCompleted, CreatedAt: now},
		{ID: "d", FromAccountID: "acc-4", Amount: amt(8_000_000), Status: domain.TxFailed, CreatedAt: now},
	}

	got := byType(newEmitter().Emit(&Input{Snapshot: snap, Now: now}))[domain.AlertLimitWarning]
	require.Len(t, got, 2)
	assert.Equal(t, AccountDaySubject("acc-2", "2026-03-10"), got[0].Subject)
	assert.Equal(t, domain.SeverityHigh, got[0].Severity)
	assert.Equal(t, AccountDaySubject("acc-3", "2026-03-10"), got[1].Subject)
	assert.Equal(t, domain.SeverityCritical, got[1].Severity)
}

func TestIndex(t *testing.T) {
	existing := []*domain.FraudAlert{
		{Subject: "tx-1", AlertType: domain.AlertDeviceRisk, Status: domain.AlertOpen},
		{Subject: "tx-2", AlertType: domain.AlertDeviceRisk, Status: domain.AlertFalsePositive},
	}
	ix := NewIndex(existing)
	assert.Equal(t, 1, ix.Len())
	assert.False(t, ix.Claim(domain.AlertKey{Subject: "tx-1", AlertType: domain.AlertDeviceRisk}))
	assert.True(t, ix.Claim(domain.AlertKey{Subject: "tx-1", AlertType: domain.AlertRegulatory}))
	assert.True(t, ix.Claim(domain.AlertKey{Subject: "tx-2", AlertType: domain.AlertDeviceRisk}))
	assert.False(t, ix.Claim(domain.AlertKey{Subject: "tx-2", AlertType: domain.AlertDeviceRisk}))
}
