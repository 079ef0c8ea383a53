package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func businessChecks() []Check {
	return []Check{
		{
			Name:     "business_rule_negative_balances",
			Category: domain.CategoryBusiness,
			Subject:  "bank_accounts.balance",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				var ids []string
				for _, a := range env.Snapshot.Accounts {
					if a.AccountType != domain.AccountCredit && a.Balance.IsNegative() {
						ids = append(ids, a.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: len(env.Snapshot.Accounts),
					Message:    fmt.Sprintf("Found %d non-credit accounts with negative balance in bank_accounts.balance", len(ids)),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     "business_rule_account_limits",
			Category: domain.CategoryBusiness,
			Subject:  "bank_accounts.daily_limit",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				var ids []string
				for _, a := range env.Snapshot.Accounts {
					bad := (a.DailyLimit != nil && a.DailyLimit.IsNegative()) ||
						(a.MonthlyLimit != nil && a.MonthlyLimit.IsNegative()) ||
						(a.DailyLimit != nil && a.MonthlyLimit != nil && a.DailyLimit.GreaterThan(*a.MonthlyLimit))
					if bad {
						ids = append(ids, a.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: len(env.Snapshot.Accounts),
					Message:    fmt.Sprintf("Found %d accounts with negative limits or daily_limit above monthly_limit", len(ids)),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     "business_rule_customer_age",
			Category: domain.CategoryBusiness,
			Subject:  "customers.date_of_birth",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				var ids []string
				population := 0
				for _, c := range env.Snapshot.Customers {
					if c.DateOfBirth == nil {
						continue
					}
					age := c.AgeAt(env.Now)
					population++
					if age < env.Config.MinCustomerAge || age > env.Config.MaxCustomerAge {
						ids = append(ids, c.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message: fmt.Sprintf("Found %d customers in customers.date_of_birth aged outside %d-%d",
						len(ids), env.Config.MinCustomerAge, env.Config.MaxCustomerAge),
					RecordIDs: ids,
				}
			},
		},
		{
			Name:     "business_rule_transaction_amount_bounds",
			Category: domain.CategoryBusiness,
			Subject:  "transactions.amount",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				lo, hi := env.Config.MinTransactionAmount, env.Config.MaxTransactionAmount
				var ids []string
				population := 0
				for _, tx := range env.Snapshot.Transactions {
					if tx.Amount == nil {
						continue
					}
					population++
					amt := *tx.Amount
					if !amt.IsPositive() || amt.LessThan(lo) || (hi.IsPositive() && amt.GreaterThan(hi)) {
						ids = append(ids, tx.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message:    fmt.Sprintf("Found %d transactions with transactions.amount outside [%s, %s]", len(ids), lo, hi),
					RecordIDs:  ids,
				}
			},
		},
	}
}
