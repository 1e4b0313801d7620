// Package handler implements the HTTP admin API over the pipeline manager.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/executor"
	"etl-pipeline-manager/internal/manager"
	"etl-pipeline-manager/internal/store"
)

// Handler carries the manager facade into the route functions
type Handler struct {
	m *manager.Manager
}

// New returns the API handler set
func New(m *manager.Manager) *Handler {
	return &Handler{m: m}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fail maps sentinel errors onto HTTP status codes
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, manager.ErrReferenced),
		errors.Is(err, manager.ErrJobRunning),
		errors.Is(err, executor.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, executor.ErrJobDisabled):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// pathID extracts the id between prefix and suffix of the request path
func pathID(w http.ResponseWriter, r *http.Request, prefix, suffix string) (string, bool) {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}
	id := path[len(prefix) : len(path)-len(suffix)]
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "ID is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}
