package handler

import (
	"encoding/json"
	"net/http"

	"etl-pipeline-manager/internal/model"
)

const rulesPrefix = "/api/v1/rules/"

// CreateRule registers a new transformation rule
// @Summary Create transformation rule
// @Tags rules
// @Accept json
// @Produce json
// @Param rule body model.TransformationRule true "Rule definition"
// @Success 201 {object} model.TransformationRule "Rule created"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Router /rules [post]
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule model.TransformationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	created, err := h.m.CreateRule(&rule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRules retrieves all transformation rules
// @Summary List transformation rules
// @Tags rules
// @Produce json
// @Success 200 {array} model.TransformationRule "List of rules"
// @Router /rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.m.Rules()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GetRule retrieves one transformation rule
// @Summary Get transformation rule
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} model.TransformationRule "Rule details"
// @Failure 404 {object} map[string]interface{} "Rule not found"
// @Router /rules/{id} [get]
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, rulesPrefix, "")
	if !ok {
		return
	}
	rule, err := h.m.Rule(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule replaces a transformation rule definition
// @Summary Update transformation rule
// @Tags rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param rule body model.TransformationRule true "Rule definition"
// @Success 200 {object} model.TransformationRule "Updated rule"
// @Router /rules/{id} [put]
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, rulesPrefix, "")
	if !ok {
		return
	}
	var rule model.TransformationRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	rule.ID = id

	updated, err := h.m.UpdateRule(&rule)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// EnableRule enables a transformation rule
// @Summary Enable transformation rule
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} model.TransformationRule "Updated rule"
// @Failure 404 {object} map[string]interface{} "Rule not found"
// @Router /rules/{id}/enable [post]
func (h *Handler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, "/enable", true)
}

// DisableRule disables a transformation rule
// @Summary Disable transformation rule
// @Description Disable a rule. Jobs skip it and report the step as skipped.
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} model.TransformationRule "Updated rule"
// @Failure 404 {object} map[string]interface{} "Rule not found"
// @Router /rules/{id}/disable [post]
func (h *Handler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleEnabled(w, r, "/disable", false)
}

func (h *Handler) setRuleEnabled(w http.ResponseWriter, r *http.Request, suffix string, enabled bool) {
	id, ok := pathID(w, r, rulesPrefix, suffix)
	if !ok {
		return
	}
	rule, err := h.m.SetRuleEnabled(id, enabled)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a transformation rule
// @Summary Delete transformation rule
// @Description Delete a rule. Rejected while a job references it.
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} map[string]interface{} "Rule deleted"
// @Failure 409 {object} map[string]interface{} "Referenced by a job"
// @Router /rules/{id} [delete]
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, rulesPrefix, "")
	if !ok {
		return
	}
	if err := h.m.DeleteRule(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Rule deleted", "id": id})
}
