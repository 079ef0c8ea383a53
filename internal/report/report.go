// Package report renders the data-quality and monitoring report of a run
// as JSON or as an XLSX workbook.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Document is the full report of one run.
type Document struct {
	GeneratedAt    time.Time                     `json:"generatedAt"`
	RunID          string                        `json:"runId"`
	Quality        domain.QualitySummary         `json:"quality"`
	Monitoring     Monitoring                    `json:"monitoring"`
	Overview       domain.DashboardOverview      `json:"overview"`
	Compliance     []domain.ComplianceMetric     `json:"compliance"`
	Alerts         []*domain.FraudAlert          `json:"alerts"`
	Profiles       []*domain.CustomerRiskProfile `json:"profiles"`
	DailySummaries []*domain.DailySummary        `json:"dailySummaries"`
}

// Monitoring counts the alerts listed in the report.
type Monitoring struct {
	TotalAlerts    int                     `json:"totalAlerts"`
	ActiveAlerts   int                     `json:"activeAlerts"`
	AlertBreakdown map[domain.Severity]int `json:"alertBreakdown"`
}

// Source is the subset of the repository a report reads.
type Source interface {
	LatestRun(ctx context.Context) (*domain.RunReport, error)
	ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.FraudAlert, error)
	ListCustomerProfiles(ctx context.Context, limit int) ([]*domain.CustomerRiskProfile, error)
	ListDailySummaries(ctx context.Context, from, to string) ([]*domain.DailySummary, error)
}

// Options bounds what Load reads.
type Options struct {
	// AlertLimit caps the alerts listed; zero uses the store default.
	AlertLimit int
	// ProfileLimit caps the profiles listed; zero uses the store default.
	ProfileLimit int
	// Days is how many summary days, ending on the run day, are listed.
	Days     int
	Location *time.Location
}

// Load assembles the report of the latest committed run.
func Load(ctx context.Context, src Source, opts Options, now time.Time) (*Document, error) {
	run, err := src.LatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest run: %w", err)
	}

	alerts, err := src.ListAlerts(ctx, domain.AlertFilter{Limit: opts.AlertLimit})
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	profiles, err := src.ListCustomerProfiles(ctx, opts.ProfileLimit)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	days := opts.Days
	if days <= 0 {
		days = 1
	}
	to := domain.DayOf(run.StartedAt, opts.Location)
	from := domain.DayOf(run.StartedAt.AddDate(0, 0, -(days-1)), opts.Location)
	summaries, err := src.ListDailySummaries(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load daily summaries: %w", err)
	}

	return New(run, alerts, profiles, summaries, now), nil
}

// New builds a report document from already loaded parts.
func New(run *domain.RunReport, alerts []*domain.FraudAlert, profiles []*domain.CustomerRiskProfile, summaries []*domain.DailySummary, now time.Time) *Document {
	doc := &Document{
		GeneratedAt:    now.UTC(),
		RunID:          run.RunID,
		Quality:        run.Quality,
		Overview:       run.Overview,
		Compliance:     run.Compliance,
		Alerts:         alerts,
		Profiles:       profiles,
		DailySummaries: summaries,
		Monitoring: Monitoring{
			TotalAlerts:    len(alerts),
			AlertBreakdown: make(map[domain.Severity]int),
		},
	}
	for _, a := range alerts {
		doc.Monitoring.AlertBreakdown[a.Severity]++
		if a.Status.IsActive() {
			doc.Monitoring.ActiveAlerts++
		}
	}
	return doc
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
