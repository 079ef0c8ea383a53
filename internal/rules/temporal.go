package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// clockSkew tolerates small differences between source clocks and the run clock.
const clockSkew = 5 * time.Minute

func temporalChecks() []Check {
	return []Check{
		{
			Name:     "temporal_future_transactions",
			Category: domain.CategoryTemporal,
			Subject:  "transactions.created_at",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				limit := env.Now.Add(clockSkew)
				var ids []string
				for _, tx := range env.Snapshot.Transactions {
					if tx.CreatedAt.After(limit) {
						ids = append(ids, tx.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: len(env.Snapshot.Transactions),
					Message:    fmt.Sprintf("Found %d future-dated values in transactions.created_at", len(ids)),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     "temporal_future_auth_events",
			Category: domain.CategoryTemporal,
			Subject:  "authentication_logs.created_at",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				limit := env.Now.Add(clockSkew)
				var ids []string
				for _, e := range env.Snapshot.AuthEvents {
					if e.CreatedAt.After(limit) {
						ids = append(ids, e.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: len(env.Snapshot.AuthEvents),
					Message:    fmt.Sprintf("Found %d future-dated values in authentication_logs.created_at", len(ids)),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     "temporal_completion_order",
			Category: domain.CategoryTemporal,
			Subject:  "transactions.completed_at",
			Policy:   domain.PolicySoft,
			Run: func(_ context.Context, env *Env) Finding {
				var ids []string
				population := 0
				for _, tx := range env.Snapshot.Transactions {
					if tx.CompletedAt == nil {
						continue
					}
					population++
					if tx.CompletedAt.Before(tx.CreatedAt) {
						ids = append(ids, tx.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message:    fmt.Sprintf("Found %d transactions with transactions.completed_at before created_at", len(ids)),
					RecordIDs:  ids,
				}
			},
		},
		freshness("freshness_transactions", domain.CollectionTransactions, func(env *Env) (time.Time, bool) {
			var latest time.Time
			for _, tx := range env.Snapshot.Transactions {
				if tx.CreatedAt.After(latest) {
					latest = tx.CreatedAt
				}
			}
			return latest, len(env.Snapshot.Transactions) > 0
		}),
		freshness("freshness_authentication_logs", domain.CollectionAuthEvents, func(env *Env) (time.Time, bool) {
			var latest time.Time
			for _, e := range env.Snapshot.AuthEvents {
				if e.CreatedAt.After(latest) {
					latest = e.CreatedAt
				}
			}
			return latest, len(env.Snapshot.AuthEvents) > 0
		}),
	}
}

// freshness warns when nothing new has landed in a collection within the freshness window.
func freshness(name, collection string, latest func(env *Env) (time.Time, bool)) Check {
	return Check{
		Name:     name,
		Category: domain.CategoryFreshness,
		Subject:  collection + ".created_at",
		Policy:   domain.PolicyAdvisory,
		Run: func(_ context.Context, env *Env) Finding {
			last, ok := latest(env)
			window := env.Config.FreshnessWindow
			if !ok {
				return Finding{
					Affected:   1,
					Population: 1,
					Message:    fmt.Sprintf("No records in %s", collection),
				}
			}
			if window > 0 && env.Now.Sub(last) > window {
				return Finding{
					Affected:   1,
					Population: 1,
					Message:    fmt.Sprintf("Latest %s.created_at is %s old (window %s)", collection, env.Now.Sub(last).Truncate(time.Minute), window),
					Details:    map[string]any{"latest": last},
				}
			}
			return Finding{Population: 1}
		},
	}
}

func consistencyChecks() []Check {
	return []Check{
		{
			Name:     "consistency_daily_summaries",
			Category: domain.CategoryConsistency,
			Subject:  "daily_summaries.total_amount",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				days := env.Config.ConsistencyDays
				if days <= 0 {
					days = 7
				}
				from := env.Day(env.Now.AddDate(0, 0, -days))
				actual := env.dailyTotals()
				tolerance := env.Config.ConsistencyTolerance

				var ids []string
				population := 0
				for _, s := range env.Snapshot.StoredSummaries {
					if s.SummaryDate < from {
						continue
					}
					population++
					got := actual[customerDay{customerID: s.CustomerID, day: s.SummaryDate}]
					if s.TotalAmount.Sub(got).Abs().GreaterThan(tolerance) {
						ids = append(ids, s.CustomerID+"/"+s.SummaryDate)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message:    fmt.Sprintf("Found %d daily summaries whose daily_summaries.total_amount differs from transactions by more than %s", len(ids), tolerance),
					RecordIDs:  ids,
				}
			},
		},
	}
}
