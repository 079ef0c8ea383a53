package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ListRules returns the stored custom checks and how many are loaded.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	loaded := 0
	if h.engine != nil && h.engine.Rules() != nil {
		loaded = h.engine.Rules().RulesCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  configs,
		"count":  len(configs),
		"loaded": loaded,
	})
}

// GetRule returns a stored custom check by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.repo.GetRuleConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule stores a custom check. The expression is compiled before
// saving; call POST /api/rules/reload to apply it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}
	if rule.Policy == "" {
		rule.Policy = domain.PolicySoft
	}

	if err := domain.Validator().Struct(rule); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}
	if h.engine != nil && h.engine.Rules() != nil {
		if err := h.engine.Rules().ValidateRule(&rule); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
			return
		}
	}

	now := h.now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := h.repo.SaveRuleConfig(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /api/rules/reload to apply changes.",
	})
}

// ReloadRules recompiles the enabled custom checks from the store.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.engine.Rules() == nil {
		writeMessage(w, http.StatusServiceUnavailable, "custom checks are disabled")
		return
	}

	count, err := h.engine.ReloadRules(r.Context())
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}
