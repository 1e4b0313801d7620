package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/pkg/utils"
)

const defaultAPITimeout = 30 * time.Second

// APIConnector extracts from and loads into JSON HTTP endpoints.
// Config keys: "url" (required), "timeout" (duration string), "headers"
// (map of header name to value).
type APIConnector struct {
	client *http.Client
}

// NewAPIConnector returns an API connector with its own HTTP client
func NewAPIConnector() *APIConnector {
	return &APIConnector{client: &http.Client{}}
}

func apiURL(ds model.DataSource) (string, error) {
	u, _ := ds.Config["url"].(string)
	if u == "" {
		return "", errors.Errorf("data source %s has no url configured", ds.Name)
	}
	return u, nil
}

func apiTimeout(ds model.DataSource) time.Duration {
	t, _ := ds.Config["timeout"].(string)
	return utils.ParseDuration(t, defaultAPITimeout)
}

func applyHeaders(req *http.Request, ds model.DataSource) {
	headers, _ := ds.Config["headers"].(map[string]interface{})
	for k, v := range headers {
		req.Header.Set(k, utils.Stringify(v))
	}
}

func (a *APIConnector) Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error) {
	url, err := apiURL(ds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout(ds))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	applyHeaders(req, ds)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch records")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("fetch records: %s returned %s", url, resp.Status)
	}
	return readJSON(resp.Body)
}

func (a *APIConnector) Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error) {
	url, err := apiURL(ds)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(recs)
	if err != nil {
		return 0, errors.Wrap(err, "encode records")
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout(ds))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	applyHeaders(req, ds)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "post records")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return 0, errors.Errorf("post records: %s returned %s", url, resp.Status)
	}
	return len(recs), nil
}

func (a *APIConnector) TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error) {
	url, err := apiURL(ds)
	if err != nil {
		return model.ConnectionStatus{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout(ds))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return model.ConnectionStatus{}, errors.Wrap(err, "build request")
	}
	applyHeaders(req, ds)

	resp, err := a.client.Do(req)
	if err != nil {
		return model.ConnectionStatus{Success: false, Message: err.Error()}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return model.ConnectionStatus{Success: false, Message: resp.Status}, nil
	}
	return model.ConnectionStatus{Success: true, Message: resp.Status}, nil
}
