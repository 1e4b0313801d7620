package handler

import (
	"net/http"
	"strconv"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

const runsPrefix = "/api/v1/runs/"

// ListRuns retrieves run history across jobs
// @Summary List runs
// @Description Run history, newest first. Filterable by job, status, and limit.
// @Tags runs
// @Produce json
// @Param jobId query string false "Job ID"
// @Param status query string false "Run status"
// @Param limit query int false "Maximum results"
// @Success 200 {object} map[string]interface{} "Runs"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	f := store.RunFilter{
		JobID:  r.URL.Query().Get("jobId"),
		Status: model.RunStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = uint64(limit)
	}

	runs, err := h.m.RunHistory(f)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// GetRun retrieves one run
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, runsPrefix, "")
	if !ok {
		return
	}
	run, err := h.m.Run(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
