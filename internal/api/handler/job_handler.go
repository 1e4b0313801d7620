package handler

import (
	"encoding/json"
	"net/http"

	"etl-pipeline-manager/internal/model"
)

const jobsPrefix = "/api/v1/jobs/"

// CreateJob creates a new ETL job
// @Summary Create a new job
// @Description Create an ETL job from ordered sources, rules, and destinations
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body model.Job true "Job definition"
// @Success 201 {object} model.Job "Job created"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var job model.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	created, err := h.m.CreateJob(&job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListJobs retrieves all jobs
// @Summary List all jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} model.Job "List of jobs"
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.m.Jobs()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob retrieves one job
// @Summary Get job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.Job "Job details"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "")
	if !ok {
		return
	}
	job, err := h.m.Job(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// UpdateJob replaces a job definition
// @Summary Update job
// @Description Replace a job definition. Rejected while a run is in flight.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param job body model.Job true "Job definition"
// @Success 200 {object} model.Job "Updated job"
// @Failure 409 {object} map[string]interface{} "Run in flight"
// @Router /jobs/{id} [put]
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "")
	if !ok {
		return
	}
	var job model.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	job.ID = id

	updated, err := h.m.UpdateJob(&job)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteJob removes a job
// @Summary Delete job
// @Description Delete a job. Rejected while a run is in flight; run history is kept.
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job deleted"
// @Failure 409 {object} map[string]interface{} "Run in flight"
// @Router /jobs/{id} [delete]
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "")
	if !ok {
		return
	}
	if err := h.m.DeleteJob(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Job deleted", "id": id})
}

// ExecuteJob triggers a run and waits for it to finish
// @Summary Execute job
// @Description Run a job now. Returns the finalized run record.
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.Run "Finalized run"
// @Failure 409 {object} map[string]interface{} "Run already in flight"
// @Router /jobs/{id}/execute [post]
func (h *Handler) ExecuteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "/execute")
	if !ok {
		return
	}
	run, err := h.m.ExecuteJob(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelJob requests cancellation of the in-flight run
// @Summary Cancel job run
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Cancellation requested"
// @Failure 404 {object} map[string]interface{} "No run in flight"
// @Router /jobs/{id}/cancel [post]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "/cancel")
	if !ok {
		return
	}
	if !h.m.CancelJob(id) {
		http.Error(w, "No run in flight", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Cancellation requested", "id": id})
}

// EnableJob enables a job
// @Summary Enable job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.Job "Updated job"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id}/enable [post]
func (h *Handler) EnableJob(w http.ResponseWriter, r *http.Request) {
	h.setJobEnabled(w, r, "/enable", true)
}

// DisableJob disables a job, cancelling any armed schedule
// @Summary Disable job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.Job "Updated job"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id}/disable [post]
func (h *Handler) DisableJob(w http.ResponseWriter, r *http.Request) {
	h.setJobEnabled(w, r, "/disable", false)
}

func (h *Handler) setJobEnabled(w http.ResponseWriter, r *http.Request, suffix string, enabled bool) {
	id, ok := pathID(w, r, jobsPrefix, suffix)
	if !ok {
		return
	}
	job, err := h.m.SetJobEnabled(id, enabled)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ScheduleJob arms the job's recurrence
// @Summary Schedule job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Next fire time"
// @Failure 422 {object} map[string]interface{} "Job disabled or schedule exhausted"
// @Router /jobs/{id}/schedule [post]
func (h *Handler) ScheduleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "/schedule")
	if !ok {
		return
	}
	next, err := h.m.ScheduleJob(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "nextRunAt": next})
}

// UnscheduleJob cancels the job's armed recurrence
// @Summary Unschedule job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job unscheduled"
// @Router /jobs/{id}/unschedule [post]
func (h *Handler) UnscheduleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "/unschedule")
	if !ok {
		return
	}
	if err := h.m.UnscheduleJob(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Job unscheduled", "id": id})
}

// GetJobRuns retrieves a job's run history
// @Summary Get job runs
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Run history, newest first"
// @Router /jobs/{id}/runs [get]
func (h *Handler) GetJobRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, jobsPrefix, "/runs")
	if !ok {
		return
	}
	runs, err := h.m.Runs(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobId": id, "runs": runs, "count": len(runs)})
}
