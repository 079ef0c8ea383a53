package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "positive-balance",
		Name:       "Positive balance",
		Collection: domain.CollectionAccounts,
		Expression: "record.balance >= 0.0",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Collection: domain.CollectionAccounts,
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestNonBooleanRuleRejected(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "numeric",
		Name:       "Numeric",
		Collection: domain.CollectionTransactions,
		Expression: "1 + 2",
		Enabled:    true,
	}

	if err := engine.ValidateRule(rule); err == nil {
		t.Error("expected error for non-boolean expression")
	}
}

func TestValidateRuleChecksCollection(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "bad-collection",
		Name:       "Bad collection",
		Collection: "ledgers",
		Expression: "true",
	}

	if err := engine.ValidateRule(rule); err == nil {
		t.Error("expected error for unknown collection")
	}
	if engine.RulesCount() != 0 {
		t.Error("ValidateRule must not load the rule")
	}
}

func TestDefaultRulesCompile(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	for _, rule := range domain.DefaultRuleConfigs() {
		if err := engine.ValidateRule(rule); err != nil {
			t.Errorf("default rule %s: %v", rule.ID, err)
		}
	}
	if err := engine.LoadRules(domain.DefaultRuleConfigs()); err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	if engine.RulesCount() != len(domain.DefaultRuleConfigs()) {
		t.Errorf("expected %d rules, got %d", len(domain.DefaultRuleConfigs()), engine.RulesCount())
	}
}

func TestCustomCheckEvaluation(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	if err := engine.LoadRules(domain.DefaultRuleConfigs()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	snap := cleanSnapshot()
	// A transfer without a destination violates the soft rule.
	snap.Transactions[0].ToAccountID = nil

	rs := NewRuleSet(testQualityConfig(), engine, nil)
	results := rs.Run(context.Background(), snap, testNow)

	r, ok := resultByName(results, "business_rule_transfer_destination")
	if !ok {
		t.Fatal("custom check missing from results")
	}
	if r.Category != domain.CategoryCustom {
		t.Errorf("expected CUSTOM category, got %s", r.Category)
	}
	// 1 of 2 transactions is far above the soft ratio.
	if r.Status != domain.CheckFail {
		t.Errorf("expected FAIL, got %s (%s)", r.Status, r.Message)
	}
	if r.AffectedRecords != 1 || r.RecordIDs[0] != "tx-1" {
		t.Errorf("expected tx-1 affected, got %v", r.RecordIDs)
	}

	r, _ = resultByName(results, "business_rule_completed_timestamp")
	if r.Status != domain.CheckPass {
		t.Errorf("expected PASS, got %s (%s)", r.Status, r.Message)
	}
}

func TestCustomCheckEvaluationErrorsCountAsViolations(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "missing-key",
		Name:       "References a missing column",
		Collection: domain.CollectionCustomers,
		Expression: "record.no_such_column == 1",
		Policy:     domain.PolicyStrict,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	rs := NewRuleSet(testQualityConfig(), engine, nil)
	r, _ := resultByName(rs.Run(context.Background(), cleanSnapshot(), testNow), "missing-key")
	if r.Status != domain.CheckFail {
		t.Errorf("expected FAIL, got %s", r.Status)
	}
	if r.AffectedRecords != 2 {
		t.Errorf("expected 2 affected, got %d", r.AffectedRecords)
	}
	if !strings.Contains(r.Message, "could not be evaluated") {
		t.Errorf("expected evaluation error in message, got %q", r.Message)
	}
}

func TestCustomCheckUsesNow(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "not-in-future",
		Name:       "Not in the future",
		Collection: domain.CollectionTransactions,
		Expression: "record.created_at <= now",
		Policy:     domain.PolicyStrict,
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	snap := cleanSnapshot()
	snap.Transactions[1].CreatedAt = testNow.Add(48 * time.Hour)

	rs := NewRuleSet(testQualityConfig(), engine, nil)
	r, _ := resultByName(rs.Run(context.Background(), snap, testNow), "not-in-future")
	if r.AffectedRecords != 1 {
		t.Errorf("expected 1 affected, got %d (%s)", r.AffectedRecords, r.Message)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRules(domain.DefaultRuleConfigs())

	replacement := []*domain.RuleConfig{
		{ID: "only", Name: "Only", Collection: domain.CollectionDevices, Expression: "record.device_fingerprint != \"\"", Enabled: true},
		{ID: "disabled", Name: "Disabled", Collection: domain.CollectionDevices, Expression: "true", Enabled: false},
	}
	if err := engine.ReloadRules(replacement); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}

	// A broken set leaves the previous one loaded.
	broken := []*domain.RuleConfig{{ID: "broken", Collection: domain.CollectionDevices, Expression: "(((", Enabled: true}}
	if err := engine.ReloadRules(broken); err == nil {
		t.Error("expected reload error")
	}
	if loaded := engine.GetLoadedRules(); len(loaded) != 1 || loaded[0].ID != "only" {
		t.Errorf("expected previous rules to stay loaded, got %v", loaded)
	}
}

func TestCustomCheckBuiltinFunctions(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rules := []*domain.RuleConfig{
		{ID: "phone-fn", Name: "Phone via function", Collection: domain.CollectionCustomers,
			Expression: "valid_phone(record.phone_number) && valid_cccd(record.cccd_number)", Policy: domain.PolicyStrict, Enabled: true},
		{ID: "auth-fn", Name: "Strong auth above 10M", Collection: domain.CollectionTransactions,
			Expression: "!has(record.amount) || record.amount <= 10000000.0 || strong_auth(record.auth_method)", Policy: domain.PolicyStrict, Enabled: true},
	}
	if err := engine.ReloadRules(rules); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	snap := cleanSnapshot()
	snap.Customers[0].PhoneNumber = "12345"

	rs := NewRuleSet(testQualityConfig(), engine, nil)
	results := rs.Run(context.Background(), snap, testNow)

	r, _ := resultByName(results, "phone-fn")
	if r.AffectedRecords != 1 || r.RecordIDs[0] != snap.Customers[0].ID {
		t.Errorf("expected %s affected, got %v (%s)", snap.Customers[0].ID, r.RecordIDs, r.Message)
	}
	r, _ = resultByName(results, "auth-fn")
	if r.Status != domain.CheckPass {
		t.Errorf("expected PASS on clean transactions, got %s (%s)", r.Status, r.Message)
	}

	t.Run("WrongArgumentType", func(t *testing.T) {
		err := engine.ValidateRule(&domain.RuleConfig{
			ID: "bad-arg", Name: "Bad", Collection: domain.CollectionCustomers,
			Expression: "valid_phone(42)", Enabled: true,
		})
		if err == nil {
			t.Error("expected compile error for int argument")
		}
	})
}
