package rules

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

// cleanSnapshot returns a record set every built-in check passes.
func cleanSnapshot() *domain.Snapshot {
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	recent := testNow.Add(-2 * time.Hour)

	return &domain.Snapshot{
		Customers: []*domain.Customer{
			{
				ID: "cust-1", CCCDNumber: "001090000001", FullName: "Nguyen Van An",
				DateOfBirth: timePtr(dob), PhoneNumber: "0912345678", Email: "an@example.vn",
				KYCStatus: domain.KYCVerified, RiskLevel: domain.RiskLow, IsActive: true,
				CreatedAt: testNow.AddDate(-1, 0, 0),
			},
			{
				ID: "cust-2", CCCDNumber: "001090000002", FullName: "Tran Thi Binh",
				DateOfBirth: timePtr(dob.AddDate(5, 0, 0)), PhoneNumber: "0987654321", Email: "binh@example.vn",
				KYCStatus: domain.KYCVerified, RiskLevel: domain.RiskLow, IsActive: true,
				CreatedAt: testNow.AddDate(-1, 0, 0),
			},
		},
		Accounts: []*domain.Account{
			{
				ID: "acc-1", CustomerID: "cust-1", AccountNumber: "1000000001",
				AccountType: domain.AccountChecking, Balance: decimal.NewFromInt(50_000_000),
				Currency: "VND", Status: domain.AccountActive,
				DailyLimit: decPtr(100_000_000), MonthlyLimit: decPtr(1_000_000_000),
				CreatedAt: testNow.AddDate(-1, 0, 0),
			},
			{
				ID: "acc-2", CustomerID: "cust-2", AccountNumber: "1000000002",
				AccountType: domain.AccountSavings, Balance: decimal.NewFromInt(20_000_000),
				Currency: "VND", Status: domain.AccountActive,
				CreatedAt: testNow.AddDate(-1, 0, 0),
			},
		},
		Devices: []*domain.Device{
			{
				ID: "dev-1", CustomerID: "cust-1", Fingerprint: "fp-1", DeviceType: domain.DeviceMobile,
				IsTrusted: true, VerificationStatus: domain.DeviceVerified,
				LastUsedAt: timePtr(recent), CreatedAt: testNow.AddDate(0, -6, 0),
			},
			{
				ID: "dev-2", CustomerID: "cust-2", Fingerprint: "fp-2", DeviceType: domain.DeviceWeb,
				IsTrusted: true, VerificationStatus: domain.DeviceVerified,
				LastUsedAt: timePtr(recent), CreatedAt: testNow.AddDate(0, -6, 0),
			},
		},
		AuthEvents: []*domain.AuthEvent{
			{
				ID: "auth-1", CustomerID: "cust-1", DeviceID: strPtr("dev-1"),
				Method: domain.AuthBiometric, Status: domain.AuthSuccess, RiskScore: 5,
				CreatedAt: recent,
			},
		},
		Transactions: []*domain.Transaction{
			{
				ID: "tx-1", FromAccountID: "acc-1", ToAccountID: strPtr("acc-2"),
				Type: domain.TxTransfer, Amount: decPtr(2_500_000), Currency: "VND",
				ReferenceNumber: strPtr("REF0001"), Status: domain.TxCompleted,
				Channel: domain.ChannelMobile, DeviceID: strPtr("dev-1"), AuthMethod: domain.AuthPassword,
				CreatedAt: recent, CompletedAt: timePtr(recent.Add(time.Second)),
			},
			{
				ID: "tx-2", FromAccountID: "acc-2", Type: domain.TxWithdrawal,
				Amount: decPtr(12_000_000), Currency: "VND", ReferenceNumber: strPtr("REF0002"),
				Status: domain.TxCompleted, Channel: domain.ChannelATM, AuthMethod: domain.AuthOTPSMS,
				RequiresStrongAuth: true, CreatedAt: recent, CompletedAt: timePtr(recent.Add(time.Minute)),
			},
		},
	}
}

func testQualityConfig() domain.QualityConfig {
	return domain.DefaultConfig().Quality
}

func resultByName(results []domain.CheckResult, name string) (domain.CheckResult, bool) {
	for _, r := range results {
		if r.CheckName == name {
			return r, true
		}
	}
	return domain.CheckResult{}, false
}
