package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-pipeline-manager/internal/gateway"
	"etl-pipeline-manager/internal/manager"
	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

type env struct {
	server *httptest.Server
	memory *gateway.MemoryConnector
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := manager.New(s, nil, time.Minute)
	t.Cleanup(m.Close)

	mem := gateway.NewMemoryConnector()
	m.Gateway().Register(model.SourceTypeMemory, mem)

	server := httptest.NewServer(NewRouter(m).Handler())
	t.Cleanup(server.Close)
	return &env{server: server, memory: mem}
}

func (e *env) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *env) createSource(t *testing.T, name string) string {
	t.Helper()
	var ds model.DataSource
	code := e.do(t, http.MethodPost, "/api/v1/sources",
		model.DataSource{Name: name, Type: model.SourceTypeMemory, Enabled: true}, &ds)
	require.Equal(t, http.StatusCreated, code)
	return ds.ID
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	srcID := e.createSource(t, "src")
	dstID := e.createSource(t, "dst")
	e.memory.Seed(srcID, []model.Record{{"id": 1}, {"id": 2}, {"id": 3}})

	var job model.Job
	code := e.do(t, http.MethodPost, "/api/v1/jobs", model.Job{
		Name: "sync", Enabled: true,
		SourceIDs: []string{srcID}, DestinationIDs: []string{dstID},
	}, &job)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, job.ID)

	var run model.Run
	code = e.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/execute", nil, &run)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Equal(t, 3, run.Counts.Loaded)

	var history struct {
		Runs  []model.Run `json:"runs"`
		Count int         `json:"count"`
	}
	code = e.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID+"/runs", nil, &history)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, history.Count)

	var got model.Job
	code = e.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)

	code = e.do(t, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil, nil)
	assert.Equal(t, http.StatusOK, code)

	code = e.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRunListLimit(t *testing.T) {
	e := newEnv(t)
	srcID := e.createSource(t, "src")
	dstID := e.createSource(t, "dst")
	e.memory.Seed(srcID, []model.Record{{"id": 1}})

	var job model.Job
	code := e.do(t, http.MethodPost, "/api/v1/jobs", model.Job{
		Name: "sync", Enabled: true,
		SourceIDs: []string{srcID}, DestinationIDs: []string{dstID},
	}, &job)
	require.Equal(t, http.StatusCreated, code)

	for i := 0; i < 3; i++ {
		code = e.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/execute", nil, nil)
		require.Equal(t, http.StatusOK, code)
	}

	var history struct {
		Runs  []model.Run `json:"runs"`
		Count int         `json:"count"`
	}
	code = e.do(t, http.MethodGet, "/api/v1/runs?limit=2", nil, &history)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, history.Count)

	code = e.do(t, http.MethodGet, "/api/v1/runs?limit=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var alerts struct {
		Count int `json:"count"`
	}
	code = e.do(t, http.MethodGet, "/api/v1/alerts?limit=1", nil, &alerts)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, alerts.Count)
}

func TestReferencedSourceConflict(t *testing.T) {
	e := newEnv(t)
	srcID := e.createSource(t, "src")
	dstID := e.createSource(t, "dst")

	var job model.Job
	code := e.do(t, http.MethodPost, "/api/v1/jobs", model.Job{
		Name: "sync", Enabled: true,
		SourceIDs: []string{srcID}, DestinationIDs: []string{dstID},
	}, &job)
	require.Equal(t, http.StatusCreated, code)

	code = e.do(t, http.MethodDelete, "/api/v1/sources/"+srcID, nil, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAlertEndpoints(t *testing.T) {
	e := newEnv(t)
	// creating a source emits an audit alert
	e.createSource(t, "src")

	var listed struct {
		Alerts []model.Alert `json:"alerts"`
		Count  int           `json:"count"`
	}
	code := e.do(t, http.MethodGet, "/api/v1/alerts?category=system", nil, &listed)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, listed.Count)

	id := listed.Alerts[0].ID
	code = e.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	code = e.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/silence", map[string]int{"minutes": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = e.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	code = e.do(t, http.MethodPost, "/api/v1/alerts/missing/resolve", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestInvalidPayloads(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/jobs", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	code := e.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}
