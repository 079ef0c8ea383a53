package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func integrityCheck(name, subject, message string, scan func(env *Env) (ids []string, population int)) Check {
	return Check{
		Name:     name,
		Category: domain.CategoryIntegrity,
		Subject:  subject,
		Policy:   domain.PolicyStrict,
		Run: func(_ context.Context, env *Env) Finding {
			ids, population := scan(env)
			return Finding{
				Affected:   len(ids),
				Population: population,
				Message:    fmt.Sprintf("Found %d %s", len(ids), message),
				RecordIDs:  ids,
			}
		},
	}
}

func integrityChecks() []Check {
	return []Check{
		integrityCheck("fk_integrity_accounts_customers", "bank_accounts.customer_id",
			"accounts referencing unknown customers",
			func(env *Env) ([]string, int) {
				var ids []string
				for _, a := range env.Snapshot.Accounts {
					if a.CustomerID == "" {
						continue
					}
					if _, ok := env.Customer(a.CustomerID); !ok {
						ids = append(ids, a.ID)
					}
				}
				return ids, len(env.Snapshot.Accounts)
			}),
		integrityCheck("fk_integrity_devices_customers", "devices.customer_id",
			"devices referencing unknown customers",
			func(env *Env) ([]string, int) {
				var ids []string
				for _, d := range env.Snapshot.Devices {
					if d.CustomerID == "" {
						continue
					}
					if _, ok := env.Customer(d.CustomerID); !ok {
						ids = append(ids, d.ID)
					}
				}
				return ids, len(env.Snapshot.Devices)
			}),
		integrityCheck("fk_integrity_transactions_accounts", "transactions.from_account_id",
			"transactions referencing unknown accounts",
			func(env *Env) ([]string, int) {
				var ids []string
				for _, tx := range env.Snapshot.Transactions {
					orphan := false
					if tx.FromAccountID != "" {
						if _, ok := env.Account(tx.FromAccountID); !ok {
							orphan = true
						}
					}
					if tx.ToAccountID != nil && *tx.ToAccountID != "" {
						if _, ok := env.Account(*tx.ToAccountID); !ok {
							orphan = true
						}
					}
					if orphan {
						ids = append(ids, tx.ID)
					}
				}
				return ids, len(env.Snapshot.Transactions)
			}),
		integrityCheck("fk_integrity_transactions_devices", "transactions.device_id",
			"transactions referencing unknown devices",
			func(env *Env) ([]string, int) {
				var ids []string
				population := 0
				for _, tx := range env.Snapshot.Transactions {
					if tx.DeviceID == nil || *tx.DeviceID == "" {
						continue
					}
					population++
					if _, ok := env.Device(*tx.DeviceID); !ok {
						ids = append(ids, tx.ID)
					}
				}
				return ids, population
			}),
		integrityCheck("fk_integrity_auth_events", "authentication_logs.customer_id",
			"authentication events referencing unknown customers or devices",
			func(env *Env) ([]string, int) {
				var ids []string
				for _, e := range env.Snapshot.AuthEvents {
					orphan := false
					if e.CustomerID != "" {
						if _, ok := env.Customer(e.CustomerID); !ok {
							orphan = true
						}
					}
					if e.DeviceID != nil && *e.DeviceID != "" {
						if _, ok := env.Device(*e.DeviceID); !ok {
							orphan = true
						}
					}
					if orphan {
						ids = append(ids, e.ID)
					}
				}
				return ids, len(env.Snapshot.AuthEvents)
			}),
	}
}
