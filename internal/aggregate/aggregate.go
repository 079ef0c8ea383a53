package aggregate

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Aggregator builds per-day, per-customer and dashboard roll-ups.
type Aggregator struct {
	cfg domain.AggregationConfig
	loc *time.Location
}

// New creates an aggregator.
func New(cfg domain.AggregationConfig) *Aggregator {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{cfg: cfg, loc: loc}
}

// view joins a snapshot with this run's assessments.
type view struct {
	snap     *domain.Snapshot
	assessed map[string]*domain.RiskAssessment
	owners   map[string]string
}

func newView(snap *domain.Snapshot, assessments []domain.RiskAssessment) *view {
	v := &view{
		snap:     snap,
		assessed: make(map[string]*domain.RiskAssessment, len(assessments)),
		owners:   make(map[string]string, len(snap.Accounts)),
	}
	for i := range assessments {
		v.assessed[assessments[i].TransactionID] = &assessments[i]
	}
	for _, a := range snap.Accounts {
		v.owners[a.ID] = a.CustomerID
	}
	return v
}

// risk returns the freshest score for tx: this run's assessment, else the stored one.
func (v *view) risk(tx *domain.Transaction) (score int, high bool) {
	if a, ok := v.assessed[tx.ID]; ok {
		return a.Score, a.IsHighRisk
	}
	return tx.RiskScore, tx.IsHighRisk
}

type dayKey struct {
	customerID string
	day        string
}

type dayAcc struct {
	count, highValue, strong, failed, highRisk int
	amount                                     decimal.Decimal
	scoreSum                                   int
}

// DailySummaries computes one summary per customer and day. The run day
// gets a row for every customer holding an account, zero-filled when idle;
// other days appear when this run scored a transaction on them.
func (g *Aggregator) DailySummaries(snap *domain.Snapshot, assessments []domain.RiskAssessment, now time.Time) []domain.DailySummary {
	v := newView(snap, assessments)
	today := domain.DayOf(now, g.loc)

	days := map[string]bool{today: true}
	for _, tx := range snap.ScoredTransactions() {
		days[domain.DayOf(tx.CreatedAt, g.loc)] = true
	}

	acc := make(map[dayKey]*dayAcc)
	for _, tx := range snap.Transactions {
		day := domain.DayOf(tx.CreatedAt, g.loc)
		owner := v.owners[tx.FromAccountID]
		if owner == "" || !days[day] {
			continue
		}
		k := dayKey{customerID: owner, day: day}
		a := acc[k]
		if a == nil {
			a = &dayAcc{}
			acc[k] = a
		}
		score, high := v.risk(tx)
		a.count++
		a.amount = a.amount.Add(tx.AmountValue())
		a.scoreSum += score
		if tx.IsHighValue(g.cfg.StrongAuthThreshold) {
			a.highValue++
		}
		if tx.AuthMethod.IsStrong() {
			a.strong++
		}
		if tx.Status == domain.TxFailed {
			a.failed++
		}
		if high {
			a.highRisk++
		}
	}

	for _, owner := range v.owners {
		k := dayKey{customerID: owner, day: today}
		if acc[k] == nil {
			acc[k] = &dayAcc{}
		}
	}

	out := make([]domain.DailySummary, 0, len(acc))
	for k, a := range acc {
		s := domain.DailySummary{
			CustomerID:             k.customerID,
			SummaryDate:            k.day,
			TotalTransactions:      a.count,
			TotalAmount:            a.amount,
			HighValueTransactions:  a.highValue,
			StrongAuthTransactions: a.strong,
			FailedTransactions:     a.failed,
			HighRiskTransactions:   a.highRisk,
		}
		if a.count > 0 {
			s.RiskScoreAvg = Round2(float64(a.scoreSum) / float64(a.count))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SummaryDate != out[j].SummaryDate {
			return out[i].SummaryDate < out[j].SummaryDate
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// Profiles computes one risk profile per active customer. alerts should
// hold every known alert, including those emitted by the current run.
func (g *Aggregator) Profiles(snap *domain.Snapshot, assessments []domain.RiskAssessment, alerts []domain.FraudAlert, now time.Time) []domain.CustomerRiskProfile {
	v := newView(snap, assessments)
	since := now.Add(-g.cfg.ProfileWindow)
	alertSince := now.Add(-g.cfg.RecentAlertWindow)

	profiles := make(map[string]*domain.CustomerRiskProfile, len(snap.Customers))
	for _, c := range snap.Customers {
		if !c.IsActive {
			continue
		}
		profiles[c.ID] = &domain.CustomerRiskProfile{
			CustomerID: c.ID,
			FullName:   c.FullName,
			UpdatedAt:  now,
		}
	}

	for _, tx := range snap.Transactions {
		p := profiles[v.owners[tx.FromAccountID]]
		if p == nil || tx.CreatedAt.Before(since) || tx.CreatedAt.After(now) {
			continue
		}
		p.TotalTransactions++
		p.TotalAmount = p.TotalAmount.Add(tx.AmountValue())
		if _, high := v.risk(tx); high {
			p.HighRiskTransactions++
		}
	}

	for _, d := range snap.Devices {
		p := profiles[d.CustomerID]
		if p == nil {
			continue
		}
		switch d.VerificationStatus {
		case domain.DeviceUnverified:
			p.UnverifiedDevices++
		case domain.DeviceSuspicious:
			p.SuspiciousDevices++
		}
	}

	criticalOpen := make(map[string]bool)
	for i := range alerts {
		al := &alerts[i]
		p := profiles[al.CustomerID]
		if p == nil {
			continue
		}
		if !al.CreatedAt.Before(alertSince) {
			p.RecentAlerts++
		}
		if al.Status.IsActive() {
			p.OpenAlerts++
			if al.Severity == domain.SeverityCritical {
				criticalOpen[al.CustomerID] = true
			}
		}
	}

	out := make([]domain.CustomerRiskProfile, 0, len(profiles))
	for id, p := range profiles {
		switch {
		case criticalOpen[id] || p.HighRiskTransactions > g.cfg.HighRiskTransactionLimit:
			p.RiskLevel = domain.RiskHigh
		case p.OpenAlerts > 0:
			p.RiskLevel = domain.RiskMedium
		default:
			p.RiskLevel = domain.RiskLow
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// Overview computes the dashboard headline for the run day.
func (g *Aggregator) Overview(snap *domain.Snapshot, assessments []domain.RiskAssessment, quality domain.QualitySummary, alerts []domain.FraudAlert, now time.Time) domain.DashboardOverview {
	v := newView(snap, assessments)
	today := domain.DayOf(now, g.loc)

	o := domain.DashboardOverview{
		DataQualityScore: quality.SuccessRate,
		LastUpdated:      now,
	}
	for _, c := range snap.Customers {
		if c.IsActive {
			o.TotalCustomers++
		}
	}

	highValue, compliant := 0, 0
	for _, tx := range snap.Transactions {
		if tx.Status != domain.TxCompleted || domain.DayOf(tx.CreatedAt, g.loc) != today {
			continue
		}
		o.TodayTransactions++
		o.TodayVolume = o.TodayVolume.Add(tx.AmountValue())
		if _, high := v.risk(tx); high {
			o.HighRiskTransactions++
		}
		if tx.IsHighValue(g.cfg.StrongAuthThreshold) {
			highValue++
			if tx.AuthMethod.IsStrong() {
				compliant++
			}
		}
	}
	o.ComplianceRate = Percent(compliant, highValue, 100)

	for i := range alerts {
		if alerts[i].Status.IsActive() {
			o.ActiveAlerts++
		}
	}
	return o
}

// ComplianceMetrics grades authentication, device and KYC compliance.
func (g *Aggregator) ComplianceMetrics(snap *domain.Snapshot, now time.Time) []domain.ComplianceMetric {
	since := now.Add(-g.cfg.ComplianceWindow)

	hvTotal, hvStrong := 0, 0
	for _, tx := range snap.Transactions {
		if tx.Status != domain.TxCompleted || tx.CreatedAt.Before(since) {
			continue
		}
		if tx.IsHighValue(g.cfg.StrongAuthThreshold) {
			hvTotal++
			if tx.AuthMethod.IsStrong() {
				hvStrong++
			}
		}
	}

	devTotal, devVerified := 0, 0
	for _, d := range snap.Devices {
		if d.LastUsedAt == nil || d.LastUsedAt.Before(since) {
			continue
		}
		devTotal++
		if d.VerificationStatus == domain.DeviceVerified {
			devVerified++
		}
	}

	kycTotal, kycVerified := 0, 0
	for _, c := range snap.Customers {
		if !c.IsActive {
			continue
		}
		kycTotal++
		if c.KYCStatus == domain.KYCVerified {
			kycVerified++
		}
	}

	return []domain.ComplianceMetric{
		metric("High-Value Auth Compliance", hvStrong, hvTotal, 95, 90),
		metric("Device Verification Rate", devVerified, devTotal, 80, 60),
		metric("KYC Completion Rate", kycVerified, kycTotal, 95, 90),
	}
}

func metric(name string, value, total int, good, warning float64) domain.ComplianceMetric {
	pct := Percent(value, total, 100)
	status := domain.MetricCritical
	switch {
	case pct >= good:
		status = domain.MetricGood
	case pct >= warning:
		status = domain.MetricWarning
	}
	return domain.ComplianceMetric{
		MetricName: name,
		Value:      value,
		Total:      total,
		Percentage: pct,
		Status:     status,
	}
}

// Trend folds stored daily summaries into one row per day, newest first.
func Trend(summaries []*domain.DailySummary) []domain.TransactionDaySummary {
	type acc struct {
		row      domain.TransactionDaySummary
		weighted float64
	}
	byDay := make(map[string]*acc)
	for _, s := range summaries {
		a := byDay[s.SummaryDate]
		if a == nil {
			a = &acc{row: domain.TransactionDaySummary{Date: s.SummaryDate}}
			byDay[s.SummaryDate] = a
		}
		a.row.TransactionCount += s.TotalTransactions
		a.row.TotalVolume = a.row.TotalVolume.Add(s.TotalAmount)
		a.row.HighValueTransactions += s.HighValueTransactions
		a.row.HighRiskTransactions += s.HighRiskTransactions
		a.weighted += s.RiskScoreAvg * float64(s.TotalTransactions)
	}

	out := make([]domain.TransactionDaySummary, 0, len(byDay))
	for _, a := range byDay {
		if a.row.TransactionCount > 0 {
			a.row.AvgRiskScore = Round2(a.weighted / float64(a.row.TransactionCount))
		}
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
