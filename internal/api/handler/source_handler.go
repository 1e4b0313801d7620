package handler

import (
	"encoding/json"
	"net/http"

	"etl-pipeline-manager/internal/model"
)

const sourcesPrefix = "/api/v1/sources/"

// CreateDataSource registers a new data source
// @Summary Create data source
// @Tags sources
// @Accept json
// @Produce json
// @Param source body model.DataSource true "Data source definition"
// @Success 201 {object} model.DataSource "Data source created"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Router /sources [post]
func (h *Handler) CreateDataSource(w http.ResponseWriter, r *http.Request) {
	var ds model.DataSource
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	created, err := h.m.CreateDataSource(&ds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListDataSources retrieves all data sources
// @Summary List data sources
// @Tags sources
// @Produce json
// @Success 200 {array} model.DataSource "List of data sources"
// @Router /sources [get]
func (h *Handler) ListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.m.DataSources()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

// GetDataSource retrieves one data source
// @Summary Get data source
// @Tags sources
// @Produce json
// @Param id path string true "Data source ID"
// @Success 200 {object} model.DataSource "Data source details"
// @Failure 404 {object} map[string]interface{} "Data source not found"
// @Router /sources/{id} [get]
func (h *Handler) GetDataSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, sourcesPrefix, "")
	if !ok {
		return
	}
	ds, err := h.m.DataSource(id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// UpdateDataSource replaces a data source definition
// @Summary Update data source
// @Tags sources
// @Accept json
// @Produce json
// @Param id path string true "Data source ID"
// @Param source body model.DataSource true "Data source definition"
// @Success 200 {object} model.DataSource "Updated data source"
// @Router /sources/{id} [put]
func (h *Handler) UpdateDataSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, sourcesPrefix, "")
	if !ok {
		return
	}
	var ds model.DataSource
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	ds.ID = id

	updated, err := h.m.UpdateDataSource(&ds)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteDataSource removes a data source
// @Summary Delete data source
// @Description Delete a data source. Rejected while a job references it.
// @Tags sources
// @Produce json
// @Param id path string true "Data source ID"
// @Success 200 {object} map[string]interface{} "Data source deleted"
// @Failure 409 {object} map[string]interface{} "Referenced by a job"
// @Router /sources/{id} [delete]
func (h *Handler) DeleteDataSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, sourcesPrefix, "")
	if !ok {
		return
	}
	if err := h.m.DeleteDataSource(id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Data source deleted", "id": id})
}

// EnableDataSource enables a data source
// @Summary Enable data source
// @Tags sources
// @Produce json
// @Param id path string true "Data source ID"
// @Success 200 {object} model.DataSource "Updated data source"
// @Failure 404 {object} map[string]interface{} "Data source not found"
// @Router /sources/{id}/enable [post]
func (h *Handler) EnableDataSource(w http.ResponseWriter, r *http.Request) {
	h.setSourceEnabled(w, r, "/enable", true)
}

// DisableDataSource disables a data source
// @Summary Disable data source
// @Description Disable a data source. Extraction and loading fail until re-enabled.
// @Tags sources
// @Produce json
// @Param id path string true "Data source ID"
// @Success 200 {object} model.DataSource "Updated data source"
// @Failure 404 {object} map[string]interface{} "Data source not found"
// @Router /sources/{id}/disable [post]
func (h *Handler) DisableDataSource(w http.ResponseWriter, r *http.Request) {
	h.setSourceEnabled(w, r, "/disable", false)
}

func (h *Handler) setSourceEnabled(w http.ResponseWriter, r *http.Request, suffix string, enabled bool) {
	id, ok := pathID(w, r, sourcesPrefix, suffix)
	if !ok {
		return
	}
	ds, err := h.m.SetDataSourceEnabled(id, enabled)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// TestDataSource probes a data source's connectivity
// @Summary Test data source connection
// @Description Probe the data source. Results are cached briefly.
// @Tags sources
// @Produce json
// @Param id path string true "Data source ID"
// @Success 200 {object} model.ConnectionStatus "Connection status"
// @Router /sources/{id}/test [post]
func (h *Handler) TestDataSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, sourcesPrefix, "/test")
	if !ok {
		return
	}
	status, err := h.m.TestDataSource(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
