package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

const alertsPrefix = "/api/v1/alerts/"

// ListAlerts retrieves alerts
// @Summary List alerts
// @Description Alerts newest first, filterable by state, category, severity, and job.
// @Tags alerts
// @Produce json
// @Param state query string false "Alert state"
// @Param category query string false "Alert category"
// @Param severity query string false "Alert severity"
// @Param jobId query string false "Job ID"
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{} "Alerts"
// @Router /alerts [get]
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f := store.AlertFilter{
		State:    model.AlertState(r.URL.Query().Get("state")),
		Category: model.AlertCategory(r.URL.Query().Get("category")),
		Severity: model.Severity(r.URL.Query().Get("severity")),
		JobID:    r.URL.Query().Get("jobId"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = uint64(limit)
	}

	alerts, err := h.m.Alerts().Alerts(f)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts, "count": len(alerts)})
}

// AcknowledgeAlert marks an alert acknowledged
// @Summary Acknowledge alert
// @Tags alerts
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} map[string]interface{} "Alert acknowledged"
// @Failure 404 {object} map[string]interface{} "Alert not found"
// @Router /alerts/{id}/acknowledge [post]
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, alertsPrefix, "/acknowledge")
	if !ok {
		return
	}
	if err := h.m.Alerts().Acknowledge(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Alert acknowledged", "id": id})
}

// ResolveAlert marks an alert resolved
// @Summary Resolve alert
// @Tags alerts
// @Produce json
// @Param id path string true "Alert ID"
// @Success 200 {object} map[string]interface{} "Alert resolved"
// @Failure 404 {object} map[string]interface{} "Alert not found"
// @Router /alerts/{id}/resolve [post]
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, alertsPrefix, "/resolve")
	if !ok {
		return
	}
	if err := h.m.Alerts().Resolve(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Alert resolved", "id": id})
}

// SilenceAlert silences an alert for a number of minutes
// @Summary Silence alert
// @Tags alerts
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param body body map[string]int true "Silence duration, e.g. {\"minutes\": 60}"
// @Success 200 {object} map[string]interface{} "Alert silenced"
// @Failure 400 {object} map[string]interface{} "Invalid duration"
// @Router /alerts/{id}/silence [post]
func (h *Handler) SilenceAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, alertsPrefix, "/silence")
	if !ok {
		return
	}
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if body.Minutes <= 0 {
		http.Error(w, "minutes must be positive", http.StatusBadRequest)
		return
	}
	if err := h.m.Alerts().Silence(id, body.Minutes); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Alert silenced", "id": id, "minutes": body.Minutes})
}

// Health reports service liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service healthy"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
