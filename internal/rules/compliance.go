package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Compliance check names. The alert emitter raises regulatory alerts for
// failed compliance checks whose subject is a transaction column.
const (
	CheckHighValueAuth      = "compliance_high_value_auth"
	CheckStrongAuthFlag     = "compliance_strong_auth_flag"
	CheckDeviceVerification = "compliance_device_verification"
	CheckDailyLimitAuth     = "compliance_daily_limit_auth"
)

func complianceChecks() []Check {
	return []Check{
		{
			Name:     CheckHighValueAuth,
			Category: domain.CategoryCompliance,
			Subject:  "transactions.auth_method",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				threshold := env.Config.StrongAuthThreshold
				var ids []string
				population := 0
				for _, tx := range env.Snapshot.Transactions {
					if !tx.IsHighValue(threshold) {
						continue
					}
					population++
					if !tx.AuthMethod.IsStrong() {
						ids = append(ids, tx.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message: fmt.Sprintf("Found %d transactions above %s in transactions.auth_method without strong authentication (BIOMETRIC, OTP_SMS, OTP_EMAIL)",
						len(ids), threshold),
					RecordIDs: ids,
				}
			},
		},
		{
			Name:     CheckStrongAuthFlag,
			Category: domain.CategoryCompliance,
			Subject:  "transactions.requires_strong_auth",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				threshold := env.Config.StrongAuthThreshold
				var ids []string
				population := 0
				for _, tx := range env.Snapshot.Transactions {
					if !tx.IsHighValue(threshold) {
						continue
					}
					population++
					if !tx.RequiresStrongAuth {
						ids = append(ids, tx.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: population,
					Message:    fmt.Sprintf("Found %d transactions above %s with transactions.requires_strong_auth unset", len(ids), threshold),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     CheckDeviceVerification,
			Category: domain.CategoryCompliance,
			Subject:  "devices.verification_status",
			Policy:   domain.PolicyAdvisory,
			Run: func(_ context.Context, env *Env) Finding {
				since := env.Now.Add(-env.Config.DeviceLookback)
				var ids []string
				for _, d := range env.Snapshot.Devices {
					if d.VerificationStatus != domain.DeviceUnverified || d.IsTrusted {
						continue
					}
					if d.LastUsedAt != nil && !d.LastUsedAt.Before(since) {
						ids = append(ids, d.ID)
					}
				}
				return Finding{
					Affected:   len(ids),
					Population: len(env.Snapshot.Devices),
					Message:    fmt.Sprintf("Found %d unverified devices in devices.verification_status used in the last %s", len(ids), env.Config.DeviceLookback),
					RecordIDs:  ids,
				}
			},
		},
		{
			Name:     CheckDailyLimitAuth,
			Category: domain.CategoryCompliance,
			Subject:  "daily_summaries.strong_auth_transactions",
			Policy:   domain.PolicyStrict,
			Run: func(_ context.Context, env *Env) Finding {
				type dayTotals struct {
					amount decimal.Decimal
					strong int
				}
				days := make(map[customerDay]*dayTotals)
				for _, tx := range env.Snapshot.Transactions {
					owner := env.Owner(tx.FromAccountID)
					if owner == "" {
						continue
					}
					k := customerDay{customerID: owner, day: env.Day(tx.CreatedAt)}
					t := days[k]
					if t == nil {
						t = &dayTotals{}
						days[k] = t
					}
					t.amount = t.amount.Add(tx.AmountValue())
					if tx.AuthMethod.IsStrong() {
						t.strong++
					}
				}

				var ids []string
				for k, t := range days {
					if t.amount.GreaterThan(env.Config.DailyStrongAuthVolume) && t.strong == 0 {
						ids = append(ids, k.customerID+"/"+k.day)
					}
				}
				sort.Strings(ids)
				return Finding{
					Affected:   len(ids),
					Population: len(days),
					Message: fmt.Sprintf("Found %d customer-days above %s without any strong-auth transaction",
						len(ids), env.Config.DailyStrongAuthVolume),
					RecordIDs: ids,
				}
			},
		},
	}
}
