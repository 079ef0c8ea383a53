package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BuiltinChecks returns the built-in catalog in a stable order.
func BuiltinChecks(cfg domain.QualityConfig) []Check {
	var checks []Check
	checks = append(checks, completenessChecks()...)
	checks = append(checks, domainChecks()...)
	checks = append(checks, uniquenessChecks()...)
	checks = append(checks, formatChecks()...)
	checks = append(checks, integrityChecks()...)
	checks = append(checks, businessChecks()...)
	checks = append(checks, complianceChecks()...)
	checks = append(checks, temporalChecks()...)
	checks = append(checks, consistencyChecks()...)
	return checks
}

// requiredFields lists the columns null checks cover, per collection.
var requiredFields = []struct {
	collection string
	fields     []string
}{
	{domain.CollectionCustomers, []string{"cccd_number", "full_name", "date_of_birth", "phone_number", "email"}},
	{domain.CollectionAccounts, []string{"customer_id", "account_number", "account_type"}},
	{domain.CollectionDevices, []string{"customer_id", "device_fingerprint"}},
	{domain.CollectionTransactions, []string{"from_account_id", "amount", "transaction_type", "reference_number"}},
}

func completenessChecks() []Check {
	var checks []Check
	for _, rf := range requiredFields {
		for _, field := range rf.fields {
			collection := rf.collection
			checks = append(checks, Check{
				Name:     fmt.Sprintf("null_check_%s_%s", collection, field),
				Category: domain.CategoryCompleteness,
				Subject:  collection + "." + field,
				Policy:   domain.PolicyStrict,
				Run: func(_ context.Context, env *Env) Finding {
					var ids []string
					for _, ri := range env.issues[collection] {
						for _, is := range ri.issues {
							if is.Field == field && is.IsMissing() {
								ids = append(ids, ri.id)
								break
							}
						}
					}
					return Finding{
						Affected:   len(ids),
						Population: env.Population(collection),
						Message:    fmt.Sprintf("Found %d null values in %s.%s", len(ids), collection, field),
						RecordIDs:  ids,
					}
				},
			})
		}
	}
	return checks
}

// domainChecks flag enum values and ranges outside their declared domain.
func domainChecks() []Check {
	collections := []string{
		domain.CollectionCustomers,
		domain.CollectionAccounts,
		domain.CollectionDevices,
		domain.CollectionAuthEvents,
		domain.CollectionTransactions,
	}
	checks := make([]Check, 0, len(collections))
	for _, collection := range collections {
		checks = append(checks, Check{
			Name:     "domain_check_" + collection,
			Category: domain.CategoryDomain,
			Subject:  collection,
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				var ids []string
				fields := make(map[string]int)
				for _, ri := range env.issues[collection] {
					bad := false
					for _, is := range ri.issues {
						if !is.IsMissing() {
							fields[is.Field]++
							bad = true
						}
					}
					if bad {
						ids = append(ids, ri.id)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: env.Population(collection),
					Message:    fmt.Sprintf("Found %d records in %s with out-of-domain values", len(ids), collection),
					RecordIDs:  ids,
					Details:    map[string]any{"fields": fields},
				}
			},
		})
	}
	return checks
}
