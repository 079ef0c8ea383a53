// Package alerting turns scores, compliance failures and behavioural
// monitors into fraud alerts for human review.
package alerting

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Index tracks the de-duplication keys of active alerts.
type Index struct {
	keys map[domain.AlertKey]struct{}
}

// NewIndex seeds an index with every OPEN or INVESTIGATING alert.
func NewIndex(existing []*domain.FraudAlert) *Index {
	ix := &Index{keys: make(map[domain.AlertKey]struct{}, len(existing))}
	for _, a := range existing {
		if a.Status.IsActive() {
			ix.keys[a.Key()] = struct{}{}
		}
	}
	return ix
}

// Claim reserves key and reports whether it was free.
func (ix *Index) Claim(key domain.AlertKey) bool {
	if _, ok := ix.keys[key]; ok {
		return false
	}
	ix.keys[key] = struct{}{}
	return true
}

// Len returns the number of active keys.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// CustomerSubject is the alert subject for customer-level alerts.
func CustomerSubject(customerID string) string {
	return "customer:" + customerID
}

// AccountDaySubject is the alert subject for account-level daily alerts.
func AccountDaySubject(accountID, day string) string {
	return "account:" + accountID + ":" + day
}

// Input is everything one emission pass looks at.
type Input struct {
	RunID       string
	Snapshot    *domain.Snapshot
	Assessments []domain.RiskAssessment
	Checks      []domain.CheckResult
	Now         time.Time
}

// Emitter creates fraud alerts.
type Emitter struct {
	cfg    domain.AlertConfig
	logger *slog.Logger
	newID  func() string
}

// NewEmitter creates an alert emitter.
func NewEmitter(cfg domain.AlertConfig, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Emitter{cfg: cfg, logger: logger, newID: uuid.NewString}
}

// emission collects the alerts of one pass.
type emission struct {
	e      *Emitter
	in     *Input
	index  *Index
	alerts []domain.FraudAlert
	txs    map[string]*domain.Transaction
	owners map[string]string
	scores map[string]*domain.RiskAssessment
}

// Emit returns the new alerts for in. Pairs already covered by an active
// alert in the snapshot, or by an earlier alert of this pass, are skipped,
// so emitting twice over the same data yields nothing the second time.
func (e *Emitter) Emit(in *Input) []domain.FraudAlert {
	snap := in.Snapshot
	em := &emission{
		e:      e,
		in:     in,
		index:  NewIndex(snap.Alerts),
		txs:    make(map[string]*domain.Transaction, len(snap.Transactions)),
		owners: make(map[string]string, len(snap.Accounts)),
		scores: make(map[string]*domain.RiskAssessment, len(in.Assessments)),
	}
	for _, tx := range snap.Transactions {
		em.txs[tx.ID] = tx
	}
	for _, a := range snap.Accounts {
		em.owners[a.ID] = a.CustomerID
	}
	for i := range in.Assessments {
		em.scores[in.Assessments[i].TransactionID] = &in.Assessments[i]
	}

	em.scoreAlerts()
	em.complianceAlerts()
	em.deviceAlerts()
	em.deviceLimitAlerts()
	em.authFailureAlerts()
	em.patternAlerts()
	em.limitAlerts()

	e.logger.Debug("alerts emitted",
		"run_id", in.RunID,
		"count", len(em.alerts),
		"active_keys", em.index.Len(),
	)
	return em.alerts
}

func (em *emission) add(txID, customerID, subject string, typ domain.AlertType, sev domain.Severity, desc string) {
	key := domain.AlertKey{Subject: subject, AlertType: typ}
	if !em.index.Claim(key) {
		return
	}
	a := domain.FraudAlert{
		ID:          em.e.newID(),
		CustomerID:  customerID,
		Subject:     subject,
		AlertType:   typ,
		Severity:    sev,
		Description: desc,
		Status:      domain.AlertOpen,
		RunID:       em.in.RunID,
		CreatedAt:   em.in.Now,
		UpdatedAt:   em.in.Now,
	}
	if txID != "" {
		id := txID
		a.TransactionID = &id
	}
	em.alerts = append(em.alerts, a)
}

// scoreSeverity returns the severity implied by the transaction's score.
func (em *emission) scoreSeverity(txID string) (domain.Severity, int) {
	if a, ok := em.scores[txID]; ok {
		return em.e.cfg.Bands.Severity(a.Score), a.Score
	}
	if tx, ok := em.txs[txID]; ok {
		return em.e.cfg.Bands.Severity(tx.RiskScore), tx.RiskScore
	}
	return domain.SeverityLow, 0
}

func (em *emission) scoreAlerts() {
	floor := em.e.cfg.MinScoreSeverity.Rank()
	for _, a := range em.in.Assessments {
		sev := em.e.cfg.Bands.Severity(a.Score)
		if sev.Rank() < floor {
			continue
		}
		desc := fmt.Sprintf("Transaction %s scored %d (%s)", a.TransactionID, a.Score, a.Level)
		if len(a.Flags) > 0 {
			desc += ": " + strings.Join(a.Flags, ", ")
		}
		em.add(a.TransactionID, a.CustomerID, a.TransactionID, domain.AlertHighRiskTransaction, sev, desc)
	}
}

// complianceAlerts raises one regulatory alert per transaction named by a
// failed compliance check over transaction columns.
func (em *emission) complianceAlerts() {
	for _, c := range em.in.Checks {
		if c.Category != domain.CategoryCompliance || c.Status != domain.CheckFail {
			continue
		}
		if !strings.HasPrefix(c.Subject, "transactions.") {
			continue
		}
		for _, id := range c.RecordIDs {
			tx, ok := em.txs[id]
			if !ok || !em.scored(tx) {
				continue
			}
			sev, _ := em.scoreSeverity(id)
			desc := fmt.Sprintf("Transaction %s violates %s (%s, %s via %s)",
				id, c.CheckName, tx.AmountValue().StringFixed(0), tx.Currency, tx.AuthMethod)
			em.add(id, em.owners[tx.FromAccountID], id, domain.AlertRegulatory, sev.Max(domain.SeverityHigh), desc)
		}
	}
}

func (em *emission) scored(tx *domain.Transaction) bool {
	return em.in.Snapshot.ScoreFrom.IsZero() || !tx.CreatedAt.Before(em.in.Snapshot.ScoreFrom)
}

func (em *emission) deviceAlerts() {
	devices := make(map[string]*domain.Device, len(em.in.Snapshot.Devices))
	for _, d := range em.in.Snapshot.Devices {
		devices[d.ID] = d
	}

	for _, tx := range em.in.Snapshot.ScoredTransactions() {
		if tx.DeviceID == nil || !tx.AmountValue().GreaterThan(em.e.cfg.DeviceRiskMinAmount) {
			continue
		}
		d, ok := devices[*tx.DeviceID]
		if !ok || d.VerificationStatus == domain.DeviceVerified {
			continue
		}
		sev, _ := em.scoreSeverity(tx.ID)
		sev = sev.Max(domain.SeverityMedium)
		if d.VerificationStatus == domain.DeviceSuspicious {
			sev = sev.Max(domain.SeverityHigh)
		}
		desc := fmt.Sprintf("Transaction %s of %s from %s device %s",
			tx.ID, tx.AmountValue().StringFixed(0), d.VerificationStatus, d.ID)
		em.add(tx.ID, em.owners[tx.FromAccountID], tx.ID, domain.AlertDeviceRisk, sev, desc)
	}
}

func (em *emission) deviceLimitAlerts() {
	unverified := make(map[string]int)
	for _, d := range em.in.Snapshot.Devices {
		if d.VerificationStatus == domain.DeviceUnverified {
			unverified[d.CustomerID]++
		}
	}

	ids := make([]string, 0, len(unverified))
	for id, n := range unverified {
		if n >= em.e.cfg.UnverifiedDeviceLimit {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		desc := fmt.Sprintf("Customer %s has %d unverified devices (limit %d)", id, unverified[id], em.e.cfg.UnverifiedDeviceLimit)
		em.add("", id, CustomerSubject(id), domain.AlertDeviceLimit, domain.SeverityMedium, desc)
	}
}
