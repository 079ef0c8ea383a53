package scoring

import "github.com/opensource-finance/kestrel/internal/domain"

// decide maps a score to level, decision and the high-risk flag.
func (s *Scorer) decide(score int) (domain.RiskLevel, domain.Decision, bool) {
	level := s.cfg.Bands.Level(score)

	decision := domain.DecisionApprove
	switch level {
	case domain.RiskCritical:
		decision = domain.DecisionReject
	case domain.RiskHigh, domain.RiskMedium:
		decision = domain.DecisionReview
	}

	// The threshold itself counts as high risk: 70 is the first HIGH score.
	return level, decision, score >= s.cfg.HighRiskThreshold
}
