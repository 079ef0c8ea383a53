package domain

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Severity ranks fraud alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; unknown values rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Max returns the more severe of s and o.
func (s Severity) Max(o Severity) Severity {
	if o.Rank() > s.Rank() {
		return o
	}
	return s
}

// AlertStatus is the review state of an alert.
type AlertStatus string

const (
	AlertOpen          AlertStatus = "OPEN"
	AlertInvestigating AlertStatus = "INVESTIGATING"
	AlertResolved      AlertStatus = "RESOLVED"
	AlertFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// IsActive reports whether the alert still awaits a reviewer.
func (s AlertStatus) IsActive() bool {
	return s == AlertOpen || s == AlertInvestigating
}

// CanTransition reports whether a reviewer may move an alert from s to next.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	switch s {
	case AlertOpen:
		return next == AlertInvestigating || next == AlertResolved || next == AlertFalsePositive
	case AlertInvestigating:
		return next == AlertResolved || next == AlertFalsePositive
	}
	return false
}

// AlertType names what triggered an alert.
type AlertType string

const (
	AlertHighRiskTransaction AlertType = "HIGH_RISK_TRANSACTION"
	AlertRegulatory          AlertType = "REGULATORY_VIOLATION"
	AlertDeviceRisk          AlertType = "DEVICE_RISK"
	AlertDeviceLimit         AlertType = "DEVICE_LIMIT_EXCEEDED"
	AlertAuthFailure         AlertType = "AUTH_FAILURE"
	AlertSuspiciousPattern   AlertType = "SUSPICIOUS_PATTERN"
	AlertLimitWarning        AlertType = "LIMIT_WARNING"
)

// FraudAlert is a signal for human review.
// Subject identifies what the alert is about and, with AlertType, forms the de-duplication key.
type FraudAlert struct {
	ID            string      `json:"alertId"`
	TransactionID *string     `json:"transactionId,omitempty"`
	CustomerID    string      `json:"customerId"`
	Subject       string      `json:"subject"`
	AlertType     AlertType   `json:"alertType"`
	Severity      Severity    `json:"severity"`
	Description   string      `json:"description"`
	Status        AlertStatus `json:"status"`
	ReviewNote    string      `json:"reviewNote,omitempty"`
	RunID         string      `json:"runId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	ResolvedAt    *time.Time  `json:"resolvedAt,omitempty"`
}

// AlertKey is the de-duplication key of an alert.
type AlertKey struct {
	Subject   string
	AlertType AlertType
}

// Key returns the de-duplication key of a.
func (a *FraudAlert) Key() AlertKey {
	return AlertKey{Subject: a.Subject, AlertType: a.AlertType}
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Severity   Severity
	Status     AlertStatus
	CustomerID string
	Since      time.Time
	Limit      int
}

// AlertStatusUpdate is a reviewer's change to an alert.
type AlertStatusUpdate struct {
	Status AlertStatus `json:"status" validate:"required,oneof=INVESTIGATING RESOLVED FALSE_POSITIVE"`
	Note   string      `json:"note,omitempty" validate:"max=500"`
}
