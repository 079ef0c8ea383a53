package report

import (
	"fmt"
	"io"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook.
const (
	SheetSummary   = "Summary"
	SheetChecks    = "Checks"
	SheetAlerts    = "Alerts"
	SheetProfiles  = "Profiles"
	SheetSummaries = "Daily Summaries"
)

// ContentTypeXLSX is the MIME type of the workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes doc as a workbook with one sheet per section.
func WriteXLSX(w io.Writer, doc *Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	sheets := []struct {
		name    string
		headers []any
		rows    [][]any
	}{
		{SheetSummary, []any{"Metric", "Value"}, summaryRows(doc)},
		{SheetChecks, []any{"Check", "Category", "Subject", "Status", "Affected Records", "Message", "Checked At"}, checkRows(doc)},
		{SheetAlerts, []any{"Alert ID", "Type", "Severity", "Status", "Customer", "Subject", "Description", "Created At"}, alertRows(doc)},
		{SheetProfiles, []any{"Customer", "Name", "Risk Level", "Transactions", "Total Amount", "High Risk", "Unverified Devices", "Suspicious Devices", "Open Alerts", "Recent Alerts"}, profileRows(doc)},
		{SheetSummaries, []any{"Date", "Customer", "Transactions", "Total Amount", "High Value", "Strong Auth", "Failed", "High Risk", "Avg Risk Score"}, dailyRows(doc)},
	}

	for _, s := range sheets {
		if s.name != SheetSummary {
			if _, err := f.NewSheet(s.name); err != nil {
				return err
			}
		}
		if err := writeSheet(f, s.name, header, s.headers, s.rows); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}

	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, style int, headers []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 20)
}

func summaryRows(doc *Document) [][]any {
	q := doc.Quality
	rows := [][]any{
		{"Run ID", doc.RunID},
		{"Generated At", stamp(doc.GeneratedAt)},
		{"Total Checks", q.TotalChecks},
		{"Passed", q.Passed},
		{"Warnings", q.Warnings},
		{"Failed", q.Failed},
		{"Success Rate (%)", q.SuccessRate},
		{"Total Alerts", doc.Monitoring.TotalAlerts},
		{"Active Alerts", doc.Monitoring.ActiveAlerts},
		{"Total Customers", doc.Overview.TotalCustomers},
		{"Today Transactions", doc.Overview.TodayTransactions},
		{"Today Volume", doc.Overview.TodayVolume.InexactFloat64()},
		{"Compliance Rate (%)", doc.Overview.ComplianceRate},
	}
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		rows = append(rows, []any{"Alerts " + string(sev), doc.Monitoring.AlertBreakdown[sev]})
	}
	for _, m := range doc.Compliance {
		rows = append(rows, []any{m.MetricName + " (%)", m.Percentage})
	}
	return rows
}

func checkRows(doc *Document) [][]any {
	rows := make([][]any, 0, len(doc.Quality.Checks))
	for _, c := range doc.Quality.Checks {
		rows = append(rows, []any{
			c.CheckName, string(c.Category), c.Subject, string(c.Status),
			c.AffectedRecords, c.Message, stamp(c.Timestamp),
		})
	}
	return rows
}

func alertRows(doc *Document) [][]any {
	rows := make([][]any, 0, len(doc.Alerts))
	for _, a := range doc.Alerts {
		rows = append(rows, []any{
			a.ID, string(a.AlertType), string(a.Severity), string(a.Status),
			a.CustomerID, a.Subject, a.Description, stamp(a.CreatedAt),
		})
	}
	return rows
}

func profileRows(doc *Document) [][]any {
	rows := make([][]any, 0, len(doc.Profiles))
	for _, p := range doc.Profiles {
		rows = append(rows, []any{
			p.CustomerID, p.FullName, string(p.RiskLevel), p.TotalTransactions,
			p.TotalAmount.InexactFloat64(), p.HighRiskTransactions, p.UnverifiedDevices,
			p.SuspiciousDevices, p.OpenAlerts, p.RecentAlerts,
		})
	}
	return rows
}

func dailyRows(doc *Document) [][]any {
	rows := make([][]any, 0, len(doc.DailySummaries))
	for _, s := range doc.DailySummaries {
		rows = append(rows, []any{
			s.SummaryDate, s.CustomerID, s.TotalTransactions, s.TotalAmount.InexactFloat64(),
			s.HighValueTransactions, s.StrongAuthTransactions, s.FailedTransactions,
			s.HighRiskTransactions, s.RiskScoreAvg,
		})
	}
	return rows
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
