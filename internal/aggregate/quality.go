// Package aggregate rolls engine results up into summaries, customer
// profiles and dashboard views. Every function is pure: the same inputs
// always produce the same outputs.
package aggregate

import (
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Quality summarises check results.
// passed + warnings + failed always equals the number of results.
func Quality(results []domain.CheckResult, at time.Time) domain.QualitySummary {
	s := domain.QualitySummary{
		TotalChecks: len(results),
		Checks:      results,
		LastUpdated: at,
	}

	byCategory := make(map[domain.CheckCategory]*domain.CategorySummary)
	var order []domain.CheckCategory

	for _, r := range results {
		cs := byCategory[r.Category]
		if cs == nil {
			cs = &domain.CategorySummary{Category: r.Category}
			byCategory[r.Category] = cs
			order = append(order, r.Category)
		}
		cs.Total++

		switch r.Status {
		case domain.CheckPass:
			s.Passed++
			cs.Passed++
		case domain.CheckWarning:
			s.Warnings++
			cs.Warnings++
		default:
			s.Failed++
			cs.Failed++
		}
	}

	s.SuccessRate = Percent(s.Passed, s.TotalChecks, 0)
	for _, c := range order {
		s.Categories = append(s.Categories, *byCategory[c])
	}
	return s
}

// Percent returns part/total as a percentage rounded to 2 decimals,
// or empty when total is zero.
func Percent(part, total int, empty float64) float64 {
	if total <= 0 {
		return empty
	}
	return Round2(float64(part) / float64(total) * 100)
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
