package alerting

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// authFailureAlerts flags customers with repeated failed logins in the
// trailing window.
func (em *emission) authFailureAlerts() {
	cfg := em.e.cfg
	if cfg.AuthFailureLimit <= 0 {
		return
	}
	since := em.in.Now.Add(-cfg.AuthFailureWindow)

	failed := make(map[string]int)
	for _, ev := range em.in.Snapshot.AuthEvents {
		if ev.Status != domain.AuthFailed || ev.CreatedAt.Before(since) || ev.CreatedAt.After(em.in.Now) {
			continue
		}
		failed[ev.CustomerID]++
	}

	for _, id := range sortedKeys(failed) {
		n := failed[id]
		if n < cfg.AuthFailureLimit {
			continue
		}
		desc := fmt.Sprintf("Customer %s had %d failed authentications in the last %s", id, n, cfg.AuthFailureWindow)
		em.add("", id, CustomerSubject(id), domain.AlertAuthFailure, domain.SeverityHigh, desc)
	}
}

// patternAlerts flags bursts of large completed transactions: at least
// PatternCount above PatternAmount inside any PatternWindow within the
// lookback.
func (em *emission) patternAlerts() {
	cfg := em.e.cfg
	if cfg.PatternCount <= 0 {
		return
	}
	since := em.in.Now.Add(-cfg.PatternLookback)

	large := make(map[string][]time.Time)
	for _, tx := range em.in.Snapshot.Transactions {
		if tx.Status != domain.TxCompleted || !tx.AmountValue().GreaterThan(cfg.PatternAmount) {
			continue
		}
		if tx.CreatedAt.Before(since) || tx.CreatedAt.After(em.in.Now) {
			continue
		}
		owner := em.owners[tx.FromAccountID]
		if owner == "" {
			continue
		}
		large[owner] = append(large[owner], tx.CreatedAt)
	}

	for _, id := range sortedKeys(large) {
		times := large[id]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		if peak := densest(times, cfg.PatternWindow); peak >= cfg.PatternCount {
			desc := fmt.Sprintf("Customer %s made %d transactions above %s within %s",
				id, peak, cfg.PatternAmount.StringFixed(0), cfg.PatternWindow)
			em.add("", id, CustomerSubject(id), domain.AlertSuspiciousPattern, domain.SeverityHigh, desc)
		}
	}
}

// densest returns the largest number of sorted timestamps inside any window.
func densest(times []time.Time, window time.Duration) int {
	best, lo := 0, 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}

// limitAlerts compares each account's volume for the run day with its
// daily limit.
func (em *emission) limitAlerts() {
	cfg := em.e.cfg
	today := domain.DayOf(em.in.Now, cfg.Location)
	ratio := decimal.NewFromFloat(cfg.LimitWarningRatio)

	volume := make(map[string]decimal.Decimal)
	for _, tx := range em.in.Snapshot.Transactions {
		if tx.Status == domain.TxFailed || tx.Status == domain.TxCancelled {
			continue
		}
		if tx.Day(cfg.Location) != today {
			continue
		}
		volume[tx.FromAccountID] = volume[tx.FromAccountID].Add(tx.AmountValue())
	}

	accounts := append([]*domain.Account(nil), em.in.Snapshot.Accounts...)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	for _, acc := range accounts {
		if acc.DailyLimit == nil || !acc.DailyLimit.IsPositive() {
			continue
		}
		used, ok := volume[acc.ID]
		if !ok {
			continue
		}
		limit := *acc.DailyLimit
		var sev domain.Severity
		switch {
		case used.GreaterThan(limit):
			sev = domain.SeverityCritical
		case used.GreaterThanOrEqual(limit.Mul(ratio)):
			sev = domain.SeverityHigh
		default:
			continue
		}
		pct := used.Div(limit).Mul(decimal.NewFromInt(100)).StringFixed(1)
		desc := fmt.Sprintf("Account %s used %s of its %s daily limit (%s%%) on %s",
			acc.ID, used.StringFixed(0), limit.StringFixed(0), pct, today)
		em.add("", acc.CustomerID, AccountDaySubject(acc.ID, today), domain.AlertLimitWarning, sev, desc)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
