package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etl-pipeline-manager/internal/model"
)

func memorySource(id string) model.DataSource {
	return model.DataSource{ID: id, Name: id, Type: model.SourceTypeMemory, Enabled: true}
}

func TestExtractAndLoadRoundTrip(t *testing.T) {
	g := New(time.Minute)
	defer g.Close()
	mem := NewMemoryConnector()
	g.Register(model.SourceTypeMemory, mem)

	src := memorySource("src-1")
	dst := memorySource("dst-1")
	mem.Seed(src.ID, []model.Record{{"a": 1}, {"a": 2}})

	recs, err := g.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	n, err := g.Load(context.Background(), dst, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, mem.Sink(dst.ID), 2)
}

func TestExtractUnknownType(t *testing.T) {
	g := New(time.Minute)
	defer g.Close()

	_, err := g.Extract(context.Background(), model.DataSource{ID: "x", Name: "x", Type: model.SourceTypeAPI, Enabled: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoConnector))
}

func TestExtractDisabledSource(t *testing.T) {
	g := New(time.Minute)
	defer g.Close()
	g.Register(model.SourceTypeMemory, NewMemoryConnector())

	ds := memorySource("src-1")
	ds.Enabled = false
	_, err := g.Extract(context.Background(), ds)
	assert.True(t, errors.Is(err, ErrSourceDisabled))
}

func TestTestConnectionCaches(t *testing.T) {
	g := New(time.Minute)
	defer g.Close()
	g.Register(model.SourceTypeMemory, NewMemoryConnector())

	ds := memorySource("src-1")
	first, err := g.TestConnection(context.Background(), ds)
	require.NoError(t, err)
	assert.True(t, first.Success)

	// second probe inside the TTL serves the cached result
	second, err := g.TestConnection(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, first.CheckedAt, second.CheckedAt)

	// disconnect evicts the cached health
	g.Disconnect(ds.ID)
	third, err := g.TestConnection(context.Background(), ds)
	require.NoError(t, err)
	assert.NotEqual(t, first.CheckedAt, third.CheckedAt)
}

func TestMemoryConnectorIsolatesSeeds(t *testing.T) {
	mem := NewMemoryConnector()
	mem.Seed("s", []model.Record{{"a": 1}})

	recs, err := mem.Extract(context.Background(), memorySource("s"))
	require.NoError(t, err)
	recs[0]["a"] = 99

	again, err := mem.Extract(context.Background(), memorySource("s"))
	require.NoError(t, err)
	assert.Equal(t, 1, again[0]["a"], "extract hands out copies")
}
