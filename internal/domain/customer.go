package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// KYCStatus is the know-your-customer state of a customer.
type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCVerified KYCStatus = "VERIFIED"
	KYCRejected KYCStatus = "REJECTED"
)

// RiskLevel classifies customers and transactions.
// Customers only ever carry LOW, MEDIUM or HIGH; CRITICAL is reserved for assessments.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Customer is a retail banking customer.
type Customer struct {
	ID             string     `json:"customerId" db:"customer_id" validate:"required"`
	CCCDNumber     string     `json:"cccdNumber" db:"cccd_number" validate:"required"`
	PassportNumber *string    `json:"passportNumber,omitempty" db:"passport_number"`
	FullName       string     `json:"fullName" db:"full_name" validate:"required"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty" db:"date_of_birth" validate:"required"`
	PhoneNumber    string     `json:"phoneNumber" db:"phone_number" validate:"required"`
	Email          string     `json:"email" db:"email" validate:"required"`
	Address        *string    `json:"address,omitempty" db:"address"`
	KYCStatus      KYCStatus  `json:"kycStatus" db:"kyc_status" validate:"required,oneof=PENDING VERIFIED REJECTED"`
	RiskLevel      RiskLevel  `json:"riskLevel" db:"risk_level" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	IsActive       bool       `json:"isActive" db:"is_active"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// AgeAt returns the customer's age in whole years at t, or -1 when the birth date is unknown.
func (c *Customer) AgeAt(t time.Time) int {
	if c.DateOfBirth == nil {
		return -1
	}
	dob := c.DateOfBirth.UTC()
	t = t.UTC()
	age := t.Year() - dob.Year()
	if t.Month() < dob.Month() || (t.Month() == dob.Month() && t.Day() < dob.Day()) {
		age--
	}
	return age
}

// AccountType is the product type of a bank account.
type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
	AccountCredit   AccountType = "CREDIT"
)

// AccountStatus is the lifecycle state of a bank account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
)

// CanTransition reports whether an account may move from s to next.
// ACTIVE and SUSPENDED toggle, anything may close, CLOSED is terminal.
func (s AccountStatus) CanTransition(next AccountStatus) bool {
	switch {
	case s == AccountClosed:
		return false
	case next == AccountClosed:
		return true
	case s == AccountActive && next == AccountSuspended:
		return true
	case s == AccountSuspended && next == AccountActive:
		return true
	}
	return false
}

// Account is a bank account owned by a customer.
type Account struct {
	ID            string           `json:"accountId" db:"account_id" validate:"required"`
	CustomerID    string           `json:"customerId" db:"customer_id" validate:"required"`
	AccountNumber string           `json:"accountNumber" db:"account_number" validate:"required"`
	AccountType   AccountType      `json:"accountType" db:"account_type" validate:"required,oneof=CHECKING SAVINGS CREDIT"`
	Balance       decimal.Decimal  `json:"balance" db:"balance"`
	Currency      string           `json:"currency" db:"currency"`
	Status        AccountStatus    `json:"status" db:"status" validate:"omitempty,oneof=ACTIVE SUSPENDED CLOSED"`
	DailyLimit    *decimal.Decimal `json:"dailyLimit,omitempty" db:"daily_limit"`
	MonthlyLimit  *decimal.Decimal `json:"monthlyLimit,omitempty" db:"monthly_limit"`
	OpenedAt      *time.Time       `json:"openedAt,omitempty" db:"opened_at"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
}

// DeviceType is the kind of channel hardware a device represents.
type DeviceType string

const (
	DeviceMobile DeviceType = "MOBILE"
	DeviceWeb    DeviceType = "WEB"
	DeviceATM    DeviceType = "ATM"
)

// DeviceStatus is the verification state of a device.
type DeviceStatus string

const (
	DeviceVerified   DeviceStatus = "VERIFIED"
	DeviceUnverified DeviceStatus = "UNVERIFIED"
	DeviceSuspicious DeviceStatus = "SUSPICIOUS"
)

// Device is a customer device seen by the bank.
type Device struct {
	ID                 string       `json:"deviceId" db:"device_id" validate:"required"`
	CustomerID         string       `json:"customerId" db:"customer_id" validate:"required"`
	Fingerprint        string       `json:"deviceFingerprint" db:"device_fingerprint" validate:"required"`
	DeviceType         DeviceType   `json:"deviceType" db:"device_type" validate:"omitempty,oneof=MOBILE WEB ATM"`
	IsTrusted          bool         `json:"isTrusted" db:"is_trusted"`
	VerificationStatus DeviceStatus `json:"verificationStatus" db:"verification_status" validate:"required,oneof=VERIFIED UNVERIFIED SUSPICIOUS"`
	LastUsedAt         *time.Time   `json:"lastUsedAt,omitempty" db:"last_used_at"`
	CreatedAt          time.Time    `json:"createdAt" db:"created_at"`
}

// AuthMethod is the factor used to authenticate.
type AuthMethod string

const (
	AuthPassword  AuthMethod = "PASSWORD"
	AuthOTPSMS    AuthMethod = "OTP_SMS"
	AuthOTPEmail  AuthMethod = "OTP_EMAIL"
	AuthBiometric AuthMethod = "BIOMETRIC"
	AuthPIN       AuthMethod = "PIN"
)

// IsStrong reports whether m satisfies strong-authentication requirements.
func (m AuthMethod) IsStrong() bool {
	switch m {
	case AuthBiometric, AuthOTPSMS, AuthOTPEmail:
		return true
	}
	return false
}

// AuthStatus is the outcome of an authentication attempt.
type AuthStatus string

const (
	AuthSuccess AuthStatus = "SUCCESS"
	AuthFailed  AuthStatus = "FAILED"
	AuthExpired AuthStatus = "EXPIRED"
)

// AuthEvent is one authentication attempt.
type AuthEvent struct {
	ID             string     `json:"authId" db:"auth_id" validate:"required"`
	CustomerID     string     `json:"customerId" db:"customer_id" validate:"required"`
	DeviceID       *string    `json:"deviceId,omitempty" db:"device_id"`
	Method         AuthMethod `json:"authMethod" db:"auth_method" validate:"required,oneof=PASSWORD OTP_SMS OTP_EMAIL BIOMETRIC PIN"`
	Status         AuthStatus `json:"authStatus" db:"auth_status" validate:"required,oneof=SUCCESS FAILED EXPIRED"`
	RiskScore      int        `json:"riskScore" db:"risk_score" validate:"min=0,max=100"`
	FailedAttempts int        `json:"failedAttempts" db:"failed_attempts" validate:"min=0"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}
