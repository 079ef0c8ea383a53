package rules

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Record is one row exposed to CEL as `record`.
// Missing optional columns are absent from Values so has() can test them.
type Record struct {
	ID     string
	Values map[string]any
}

// Records exposes a snapshot collection as CEL records.
func Records(env *Env, collection string) []Record {
	s := env.Snapshot
	switch collection {
	case domain.CollectionCustomers:
		out := make([]Record, 0, len(s.Customers))
		for _, c := range s.Customers {
			v := map[string]any{
				"customer_id":  c.ID,
				"cccd_number":  c.CCCDNumber,
				"full_name":    c.FullName,
				"phone_number": c.PhoneNumber,
				"email":        c.Email,
				"kyc_status":   string(c.KYCStatus),
				"risk_level":   string(c.RiskLevel),
				"is_active":    c.IsActive,
				"created_at":   c.CreatedAt,
			}
			putTime(v, "date_of_birth", c.DateOfBirth)
			putString(v, "passport_number", c.PassportNumber)
			putString(v, "address", c.Address)
			if c.DateOfBirth != nil {
				v["age"] = int64(c.AgeAt(env.Now))
			}
			out = append(out, Record{ID: c.ID, Values: v})
		}
		return out

	case domain.CollectionAccounts:
		out := make([]Record, 0, len(s.Accounts))
		for _, a := range s.Accounts {
			v := map[string]any{
				"account_id":     a.ID,
				"customer_id":    a.CustomerID,
				"account_number": a.AccountNumber,
				"account_type":   string(a.AccountType),
				"balance":        a.Balance.InexactFloat64(),
				"currency":       a.Currency,
				"status":         string(a.Status),
				"created_at":     a.CreatedAt,
			}
			putDecimal(v, "daily_limit", a.DailyLimit)
			putDecimal(v, "monthly_limit", a.MonthlyLimit)
			putTime(v, "opened_at", a.OpenedAt)
			out = append(out, Record{ID: a.ID, Values: v})
		}
		return out

	case domain.CollectionDevices:
		out := make([]Record, 0, len(s.Devices))
		for _, d := range s.Devices {
			v := map[string]any{
				"device_id":           d.ID,
				"customer_id":         d.CustomerID,
				"device_fingerprint":  d.Fingerprint,
				"device_type":         string(d.DeviceType),
				"is_trusted":          d.IsTrusted,
				"verification_status": string(d.VerificationStatus),
				"created_at":          d.CreatedAt,
			}
			putTime(v, "last_used_at", d.LastUsedAt)
			out = append(out, Record{ID: d.ID, Values: v})
		}
		return out

	case domain.CollectionAuthEvents:
		out := make([]Record, 0, len(s.AuthEvents))
		for _, e := range s.AuthEvents {
			v := map[string]any{
				"auth_id":         e.ID,
				"customer_id":     e.CustomerID,
				"auth_method":     string(e.Method),
				"auth_status":     string(e.Status),
				"risk_score":      int64(e.RiskScore),
				"failed_attempts": int64(e.FailedAttempts),
				"created_at":      e.CreatedAt,
			}
			putString(v, "device_id", e.DeviceID)
			out = append(out, Record{ID: e.ID, Values: v})
		}
		return out

	case domain.CollectionTransactions:
		out := make([]Record, 0, len(s.Transactions))
		for _, tx := range s.Transactions {
			v := map[string]any{
				"transaction_id":       tx.ID,
				"from_account_id":      tx.FromAccountID,
				"transaction_type":     string(tx.Type),
				"currency":             tx.Currency,
				"status":               string(tx.Status),
				"channel":              string(tx.Channel),
				"auth_method":          string(tx.AuthMethod),
				"risk_score":           int64(tx.RiskScore),
				"is_high_risk":         tx.IsHighRisk,
				"requires_strong_auth": tx.RequiresStrongAuth,
				"created_at":           tx.CreatedAt,
				"to_account_id":        "",
			}
			putString(v, "to_account_id", tx.ToAccountID)
			putDecimal(v, "amount", tx.Amount)
			putString(v, "reference_number", tx.ReferenceNumber)
			putString(v, "device_id", tx.DeviceID)
			putTime(v, "completed_at", tx.CompletedAt)
			out = append(out, Record{ID: tx.ID, Values: v})
		}
		return out
	}
	return nil
}

func putString(v map[string]any, key string, s *string) {
	if s != nil {
		v[key] = *s
	}
}

func putDecimal(v map[string]any, key string, d *decimal.Decimal) {
	if d != nil {
		v[key] = d.InexactFloat64()
	}
}

func putTime(v map[string]any, key string, t *time.Time) {
	if t != nil {
		v[key] = *t
	}
}
