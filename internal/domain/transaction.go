package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies money movement.
type TransactionType string

const (
	TxTransfer   TransactionType = "TRANSFER"
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxPayment    TransactionType = "PAYMENT"
	TxRefund     TransactionType = "REFUND"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
	TxCancelled TransactionStatus = "CANCELLED"
)

// Channel is where a transaction was initiated.
type Channel string

const (
	ChannelATM    Channel = "ATM"
	ChannelOnline Channel = "ONLINE"
	ChannelMobile Channel = "MOBILE"
	ChannelBranch Channel = "BRANCH"
	ChannelCard   Channel = "CARD"
)

// Transaction is a money movement from an account.
// Amount is nil when the source row carried no amount.
type Transaction struct {
	ID                 string            `json:"transactionId" db:"transaction_id" validate:"required"`
	FromAccountID      string            `json:"fromAccountId" db:"from_account_id" validate:"required"`
	ToAccountID        *string           `json:"toAccountId,omitempty" db:"to_account_id"`
	Type               TransactionType   `json:"transactionType" db:"transaction_type" validate:"required,oneof=TRANSFER DEPOSIT WITHDRAWAL PAYMENT REFUND"`
	Amount             *decimal.Decimal  `json:"amount" db:"amount" validate:"required"`
	Currency           string            `json:"currency" db:"currency"`
	ReferenceNumber    *string           `json:"referenceNumber,omitempty" db:"reference_number" validate:"required"`
	Description        *string           `json:"description,omitempty" db:"description"`
	Status             TransactionStatus `json:"status" db:"status" validate:"omitempty,oneof=PENDING COMPLETED FAILED CANCELLED"`
	Channel            Channel           `json:"channel" db:"channel" validate:"omitempty,oneof=ATM ONLINE MOBILE BRANCH CARD"`
	DeviceID           *string           `json:"deviceId,omitempty" db:"device_id"`
	AuthMethod         AuthMethod        `json:"authMethod" db:"auth_method" validate:"omitempty,oneof=PASSWORD OTP_SMS OTP_EMAIL BIOMETRIC PIN"`
	RiskScore          int               `json:"riskScore" db:"risk_score" validate:"min=0,max=100"`
	IsHighRisk         bool              `json:"isHighRisk" db:"is_high_risk"`
	RequiresStrongAuth bool              `json:"requiresStrongAuth" db:"requires_strong_auth"`
	CreatedAt          time.Time         `json:"createdAt" db:"created_at"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
}

// AmountValue returns the amount, or zero when it is missing.
func (t *Transaction) AmountValue() decimal.Decimal {
	if t.Amount == nil {
		return decimal.Zero
	}
	return *t.Amount
}

// IsHighValue reports whether the amount strictly exceeds threshold.
func (t *Transaction) IsHighValue(threshold decimal.Decimal) bool {
	return t.Amount != nil && t.Amount.GreaterThan(threshold)
}

// Day returns the calendar day of the transaction in loc as YYYY-MM-DD.
func (t *Transaction) Day(loc *time.Location) string {
	return DayOf(t.CreatedAt, loc)
}

// DayOf formats the calendar day of ts in loc.
func DayOf(ts time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return ts.In(loc).Format(DateLayout)
}

// DateLayout is the storage format of summary dates.
const DateLayout = "2006-01-02"
