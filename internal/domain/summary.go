package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary rolls one customer's activity up for one calendar day.
type DailySummary struct {
	CustomerID             string          `json:"customerId"`
	SummaryDate            string          `json:"summaryDate"`
	TotalTransactions      int             `json:"totalTransactions"`
	TotalAmount            decimal.Decimal `json:"totalAmount"`
	HighValueTransactions  int             `json:"highValueTransactions"`
	StrongAuthTransactions int             `json:"strongAuthTransactions"`
	FailedTransactions     int             `json:"failedTransactions"`
	HighRiskTransactions   int             `json:"highRiskTransactions"`
	RiskScoreAvg           float64         `json:"riskScoreAvg"`
}

// CustomerRiskProfile is the per-customer risk view.
type CustomerRiskProfile struct {
	CustomerID           string          `json:"customerId"`
	FullName             string          `json:"fullName"`
	RiskLevel            RiskLevel       `json:"riskLevel"`
	TotalTransactions    int             `json:"totalTransactions"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	UnverifiedDevices    int             `json:"unverifiedDevices"`
	SuspiciousDevices    int             `json:"suspiciousDevices"`
	HighRiskTransactions int             `json:"highRiskTransactions"`
	RecentAlerts         int             `json:"recentAlerts"`
	OpenAlerts           int             `json:"openAlerts"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// DashboardOverview is the headline view served to the dashboard.
type DashboardOverview struct {
	TotalCustomers       int             `json:"totalCustomers"`
	TodayTransactions    int             `json:"todayTransactions"`
	TodayVolume          decimal.Decimal `json:"todayVolume"`
	ActiveAlerts         int             `json:"activeAlerts"`
	DataQualityScore     float64         `json:"dataQualityScore"`
	ComplianceRate       float64         `json:"complianceRate"`
	HighRiskTransactions int             `json:"highRiskTransactions"`
	LastUpdated          time.Time       `json:"lastUpdated"`
}

// MetricStatus grades a compliance metric.
type MetricStatus string

const (
	MetricGood     MetricStatus = "GOOD"
	MetricWarning  MetricStatus = "WARNING"
	MetricCritical MetricStatus = "CRITICAL"
)

// ComplianceMetric is one regulatory indicator.
type ComplianceMetric struct {
	MetricName string       `json:"metricName"`
	Value      int          `json:"value"`
	Total      int          `json:"total"`
	Percentage float64      `json:"percentage"`
	Status     MetricStatus `json:"status"`
}

// TransactionDaySummary is one row of the transaction trend.
type TransactionDaySummary struct {
	Date                  string          `json:"date"`
	TransactionCount      int             `json:"transactionCount"`
	TotalVolume           decimal.Decimal `json:"totalVolume"`
	HighValueTransactions int             `json:"highValueTransactions"`
	HighRiskTransactions  int             `json:"highRiskTransactions"`
	AvgRiskScore          float64         `json:"avgRiskScore"`
}

// UnverifiedDevice is a device awaiting verification together with its owner.
type UnverifiedDevice struct {
	DeviceID           string       `json:"deviceId"`
	CustomerID         string       `json:"customerId"`
	FullName           string       `json:"fullName"`
	DeviceType         DeviceType   `json:"deviceType"`
	VerificationStatus DeviceStatus `json:"verificationStatus"`
	LastUsedAt         *time.Time   `json:"lastUsedAt,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}
