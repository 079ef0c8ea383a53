// Package scoring implements the transaction risk scorer.
// A score is the capped sum of configured factor weights; the score then
// maps to a risk level, a decision and the high-risk flag.
package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// MaxScore caps every risk score.
const MaxScore = 100

// Scorer computes risk assessments.
type Scorer struct {
	cfg        domain.ScoringConfig
	maxWorkers int
}

// NewScorer creates a scorer with the given weights and thresholds.
func NewScorer(cfg domain.ScoringConfig) *Scorer {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 8
	}
	return &Scorer{cfg: cfg, maxWorkers: workers}
}

// Input is one transaction together with the context it was resolved against.
// Nil Account, Customer or Device means the reference could not be resolved.
// HighRiskCustomer is derived from transaction history, never from the
// customer's stored risk level.
type Input struct {
	Tx               *domain.Transaction
	Account          *domain.Account
	Customer         *domain.Customer
	Device           *domain.Device
	History          *velocity.Service
	HighRiskCustomer bool
	At               time.Time
}

// Score assesses a single transaction. It never fails: missing context adds
// nothing to the score and sets CONTEXT_INCOMPLETE.
func (s *Scorer) Score(in *Input) domain.RiskAssessment {
	tx := in.Tx
	w := s.cfg.Weights

	a := domain.RiskAssessment{
		TransactionID: tx.ID,
		AccountID:     tx.FromAccountID,
		Flags:         []string{},
		Factors:       []domain.RiskFactor{},
		AssessedAt:    in.At,
	}
	if in.Customer != nil {
		a.CustomerID = in.Customer.ID
	} else if in.Account != nil {
		a.CustomerID = in.Account.CustomerID
	}

	total := 0
	add := func(flag string, weight int, reason string) {
		a.Flags = append(a.Flags, flag)
		if weight != 0 {
			a.Factors = append(a.Factors, domain.RiskFactor{Flag: flag, Weight: weight, Reason: reason})
		}
		total += weight
	}

	incomplete := in.Account == nil || in.Customer == nil ||
		(tx.DeviceID != nil && *tx.DeviceID != "" && in.Device == nil)

	highValue := tx.IsHighValue(s.cfg.StrongAuthThreshold)
	a.RequiresStrongAuth = highValue
	if highValue {
		add(domain.FlagHighValue, w.HighValue, fmt.Sprintf("amount above %s", s.cfg.StrongAuthThreshold))
		if !tx.AuthMethod.IsStrong() {
			add(domain.FlagWeakAuth, w.WeakAuth, fmt.Sprintf("high-value transaction authenticated with %s", authLabel(tx.AuthMethod)))
		}
	}

	if d := in.Device; d != nil {
		switch d.VerificationStatus {
		case domain.DeviceSuspicious:
			add(domain.FlagSuspiciousDevice, w.SuspiciousDevice, "device marked suspicious")
		case domain.DeviceUnverified:
			add(domain.FlagUnverifiedDevice, w.UnverifiedDevice, "device not verified")
		}
		if in.History != nil && s.cfg.NewDeviceWindow > 0 {
			if seen, ok := in.History.DeviceFirstSeen(d.ID); ok && tx.CreatedAt.Sub(seen) < s.cfg.NewDeviceWindow {
				add(domain.FlagNewDevice, w.NewDevice, fmt.Sprintf("device first seen within %s", s.cfg.NewDeviceWindow))
			}
		}
	}

	if in.History != nil {
		if n := in.History.TransactionCount(tx.FromAccountID, tx.CreatedAt, s.cfg.VelocityWindow); n > s.cfg.VelocityThreshold {
			add(domain.FlagVelocityBreach, w.Velocity, fmt.Sprintf("%d transactions from account in %s", n, s.cfg.VelocityWindow))
		}
		if a.CustomerID != "" {
			if s.cfg.AuthFailureThreshold > 0 {
				if n := in.History.FailedAuthCount(a.CustomerID, tx.CreatedAt, s.cfg.AuthFailureWindow); n >= s.cfg.AuthFailureThreshold {
					add(domain.FlagAuthFailures, w.AuthFailures, fmt.Sprintf("%d failed authentications in %s", n, s.cfg.AuthFailureWindow))
				}
			}
			if tx.Channel != "" && s.cfg.ChannelMinHistory > 0 {
				uses, prior := in.History.ChannelHistory(a.CustomerID, tx.Channel, tx.CreatedAt, s.cfg.ChannelWindow)
				if prior >= s.cfg.ChannelMinHistory && uses == 0 {
					add(domain.FlagUnusualChannel, w.UnusualChannel, fmt.Sprintf("first %s transaction after %d prior in %s", tx.Channel, prior, s.cfg.ChannelWindow))
				}
			}
		}
	}

	if in.HighRiskCustomer {
		add(domain.FlagHighRiskCustomer, w.HighRiskCustomer, fmt.Sprintf("more than %d high-risk transactions in %s", s.cfg.CustomerHighRiskLimit, s.cfg.CustomerWindow))
	}

	if incomplete {
		add(domain.FlagContextIncomplete, 0, "account, customer or device could not be resolved")
	}

	a.Score = clamp(total)
	a.Level, a.Decision, a.IsHighRisk = s.decide(a.Score)
	return a
}

// ScoreSnapshot scores every transaction due for scoring in snap, in
// snapshot order, on a bounded worker pool.
//
// Scoring takes two passes. The first scores every transaction in the
// snapshot without the customer factor; those baseline results decide which
// customers count as high risk at the time of each transaction. The second
// pass scores the due transactions with that verdict. Nothing the engine
// wrote in earlier runs is consulted, so unchanged records score the same
// on every run.
func (s *Scorer) ScoreSnapshot(ctx context.Context, snap *domain.Snapshot, at time.Time) ([]domain.RiskAssessment, error) {
	txs := snap.ScoredTransactions()
	if len(txs) == 0 {
		return nil, nil
	}

	customers := make(map[string]*domain.Customer, len(snap.Customers))
	for _, c := range snap.Customers {
		customers[c.ID] = c
	}
	accounts := make(map[string]*domain.Account, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		accounts[acc.ID] = acc
	}
	devices := make(map[string]*domain.Device, len(snap.Devices))
	for _, d := range snap.Devices {
		devices[d.ID] = d
	}
	history := velocity.FromSnapshot(snap)

	resolve := func(tx *domain.Transaction) *Input {
		in := &Input{Tx: tx, History: history, At: at}
		if acc, ok := accounts[tx.FromAccountID]; ok {
			in.Account = acc
			in.Customer = customers[acc.CustomerID]
		}
		if tx.DeviceID != nil {
			in.Device = devices[*tx.DeviceID]
		}
		return in
	}

	var flagged *velocity.Index
	if s.cfg.Weights.HighRiskCustomer != 0 && s.cfg.CustomerWindow > 0 {
		baseline := make([]*Input, len(snap.Transactions))
		for i, tx := range snap.Transactions {
			baseline[i] = resolve(tx)
		}
		base, err := s.scoreAll(ctx, baseline)
		if err != nil {
			return nil, err
		}
		flagged = velocity.NewIndex()
		for i := range base {
			if base[i].IsHighRisk && base[i].CustomerID != "" {
				flagged.Add(base[i].CustomerID, snap.Transactions[i].CreatedAt)
			}
		}
		flagged.Seal()
	}

	inputs := make([]*Input, len(txs))
	for i, tx := range txs {
		in := resolve(tx)
		if flagged != nil && in.Account != nil {
			prior := flagged.CountBefore(in.Account.CustomerID, tx.CreatedAt.Add(-s.cfg.CustomerWindow), tx.CreatedAt)
			in.HighRiskCustomer = prior > s.cfg.CustomerHighRiskLimit
		}
		inputs[i] = in
	}
	return s.scoreAll(ctx, inputs)
}

// scoreAll scores inputs in order on the worker pool.
func (s *Scorer) scoreAll(ctx context.Context, inputs []*Input) ([]domain.RiskAssessment, error) {
	results := make([]domain.RiskAssessment, len(inputs))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, s.maxWorkers)

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int, in *Input) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = s.Score(in)
		}(i, in)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func clamp(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	}
	return score
}

func authLabel(m domain.AuthMethod) string {
	if m == "" {
		return "no recorded method"
	}
	return string(m)
}
