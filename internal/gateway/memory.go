package gateway

import (
	"context"
	"sync"

	"etl-pipeline-manager/internal/model"
)

// MemoryConnector serves records from and collects records into in-process
// buffers keyed by data source id. Used for the memory source type and as the
// connector in tests.
type MemoryConnector struct {
	mu    sync.RWMutex
	seeds map[string][]model.Record
	sinks map[string][]model.Record
}

// NewMemoryConnector returns an empty in-memory connector
func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{
		seeds: make(map[string][]model.Record),
		sinks: make(map[string][]model.Record),
	}
}

// Seed sets the records a source will serve on extract
func (m *MemoryConnector) Seed(sourceID string, recs []model.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeds[sourceID] = recs
}

// Sink returns the records loaded into a destination so far
func (m *MemoryConnector) Sink(destinationID string) []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Record(nil), m.sinks[destinationID]...)
}

func (m *MemoryConnector) Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.CloneRecords(m.seeds[ds.ID]), nil
}

func (m *MemoryConnector) Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[ds.ID] = append(m.sinks[ds.ID], model.CloneRecords(recs)...)
	return len(recs), nil
}

func (m *MemoryConnector) TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error) {
	return model.ConnectionStatus{Success: true, Message: "in-memory source"}, nil
}
