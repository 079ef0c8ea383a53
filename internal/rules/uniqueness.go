package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type keyedValue struct {
	id    string
	value string
}

// uniqueness builds a check that every non-empty value appears once.
// Affected counts every row that shares a duplicated value.
func uniqueness(collection, field string, values func(env *Env) []keyedValue) Check {
	return Check{
		Name:     fmt.Sprintf("uniqueness_%s_%s", collection, field),
		Category: domain.CategoryUniqueness,
		Subject:  collection + "." + field,
		Policy:   domain.PolicyStrict,
		Run: func(_ context.Context, env *Env) Finding {
			rows := values(env)
			byValue := make(map[string][]string, len(rows))
			for _, kv := range rows {
				if kv.value == "" {
					continue
				}
				byValue[kv.value] = append(byValue[kv.value], kv.id)
			}

			var ids []string
			duplicated := 0
			for _, owners := range byValue {
				if len(owners) > 1 {
					duplicated++
					ids = append(ids, owners...)
				}
			}
			sort.Strings(ids)

			return Finding{
				Affected:   len(ids),
				Population: len(rows),
				Message:    fmt.Sprintf("Found %d duplicate values in %s.%s across %d records", duplicated, collection, field, len(ids)),
				RecordIDs:  ids,
				Details:    map[string]any{"duplicateValues": duplicated},
			}
		},
	}
}

func uniquenessChecks() []Check {
	activeCustomers := func(env *Env, pick func(*domain.Customer) string) []keyedValue {
		out := make([]keyedValue, 0, len(env.Snapshot.Customers))
		for _, c := range env.Snapshot.Customers {
			if c.IsActive {
				out = append(out, keyedValue{id: c.ID, value: pick(c)})
			}
		}
		return out
	}

	return []Check{
		uniqueness(domain.CollectionCustomers, "cccd_number", func(env *Env) []keyedValue {
			return activeCustomers(env, func(c *domain.Customer) string { return c.CCCDNumber })
		}),
		uniqueness(domain.CollectionCustomers, "phone_number", func(env *Env) []keyedValue {
			return activeCustomers(env, func(c *domain.Customer) string { return c.PhoneNumber })
		}),
		uniqueness(domain.CollectionCustomers, "email", func(env *Env) []keyedValue {
			return activeCustomers(env, func(c *domain.Customer) string { return c.Email })
		}),
		uniqueness(domain.CollectionAccounts, "account_number", func(env *Env) []keyedValue {
			out := make([]keyedValue, 0, len(env.Snapshot.Accounts))
			for _, a := range env.Snapshot.Accounts {
				out = append(out, keyedValue{id: a.ID, value: a.AccountNumber})
			}
			return out
		}),
		uniqueness(domain.CollectionTransactions, "reference_number", func(env *Env) []keyedValue {
			out := make([]keyedValue, 0, len(env.Snapshot.Transactions))
			for _, tx := range env.Snapshot.Transactions {
				ref := ""
				if tx.ReferenceNumber != nil {
					ref = *tx.ReferenceNumber
				}
				out = append(out, keyedValue{id: tx.ID, value: ref})
			}
			return out
		}),
		uniqueness(domain.CollectionDevices, "device_fingerprint", func(env *Env) []keyedValue {
			out := make([]keyedValue, 0, len(env.Snapshot.Devices))
			for _, d := range env.Snapshot.Devices {
				out = append(out, keyedValue{id: d.ID, value: d.Fingerprint})
			}
			return out
		}),
	}
}
