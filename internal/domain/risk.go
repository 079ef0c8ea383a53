package domain

import "time"

// Risk flags attached to assessments.
const (
	FlagHighValue         = "HIGH_VALUE"
	FlagWeakAuth          = "WEAK_AUTH"
	FlagUnverifiedDevice  = "UNVERIFIED_DEVICE"
	FlagSuspiciousDevice  = "SUSPICIOUS_DEVICE"
	FlagNewDevice         = "NEW_DEVICE"
	FlagVelocityBreach    = "VELOCITY_BREACH"
	FlagHighRiskCustomer  = "HIGH_RISK_CUSTOMER"
	FlagUnusualChannel    = "UNUSUAL_CHANNEL"
	FlagAuthFailures      = "AUTH_FAILURES"
	FlagContextIncomplete = "CONTEXT_INCOMPLETE"
)

// Decision is the recommended action for a scored transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionReject  Decision = "REJECT"
)

// RiskFactor is one contribution to a risk score.
type RiskFactor struct {
	Flag   string `json:"flag"`
	Weight int    `json:"weight"`
	Reason string `json:"reason"`
}

// RiskAssessment is the scorer's verdict for one transaction.
type RiskAssessment struct {
	TransactionID      string       `json:"transactionId"`
	AccountID          string       `json:"accountId"`
	CustomerID         string       `json:"customerId,omitempty"`
	Score              int          `json:"score"`
	Level              RiskLevel    `json:"level"`
	Decision           Decision     `json:"decision"`
	Flags              []string     `json:"flags"`
	Factors            []RiskFactor `json:"factors"`
	IsHighRisk         bool         `json:"isHighRisk"`
	RequiresStrongAuth bool         `json:"requiresStrongAuth"`
	AssessedAt         time.Time    `json:"assessedAt"`
}

// HasFlag reports whether the assessment carries flag.
func (a *RiskAssessment) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
