// Package gateway abstracts extract and load operations against named, typed
// data sources. Connectors are registered per source type; the gateway owns
// connection lifecycle and a TTL cache of connection-health results.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"etl-pipeline-manager/internal/model"
)

// ErrNoConnector is returned when no connector is registered for a source type
var ErrNoConnector = errors.New("no connector registered for source type")

// ErrSourceDisabled is returned when operating on a disabled data source
var ErrSourceDisabled = errors.New("data source is disabled")

// Connector implements extract/load/test against one source type.
// Implementations must tolerate concurrent calls.
type Connector interface {
	Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error)
	Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error)
	TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error)
}

// connection is the transient per-source state the gateway tracks
type connection struct {
	sourceID    string
	connectedAt time.Time
	lastUsedAt  time.Time
}

// Gateway routes extract/load calls to the connector matching the source type
type Gateway struct {
	mu         sync.RWMutex
	connectors map[model.SourceType]Connector
	conns      map[string]*connection
	health     *ttlcache.Cache[string, model.ConnectionStatus]
}

// New returns a gateway whose health checks are cached for healthTTL
func New(healthTTL time.Duration) *Gateway {
	g := &Gateway{
		connectors: make(map[model.SourceType]Connector),
		conns:      make(map[string]*connection),
		health: ttlcache.New[string, model.ConnectionStatus](
			ttlcache.WithTTL[string, model.ConnectionStatus](healthTTL),
			ttlcache.WithDisableTouchOnHit[string, model.ConnectionStatus](),
		),
	}
	go g.health.Start()
	return g
}

// Register installs the connector for a source type, replacing any prior one
func (g *Gateway) Register(t model.SourceType, c Connector) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectors[t] = c
}

// Extract reads all records from the data source
func (g *Gateway) Extract(ctx context.Context, ds model.DataSource) ([]model.Record, error) {
	c, err := g.connector(ds)
	if err != nil {
		return nil, err
	}
	g.touch(ds.ID)

	recs, err := c.Extract(ctx, ds)
	if err != nil {
		return nil, errors.Wrapf(err, "extract from %s", ds.Name)
	}
	log.WithFields(log.Fields{"source": ds.Name, "records": len(recs)}).Debug("extracted records")
	return recs, nil
}

// Load writes records to the data source, returning how many were written
func (g *Gateway) Load(ctx context.Context, ds model.DataSource, recs []model.Record) (int, error) {
	c, err := g.connector(ds)
	if err != nil {
		return 0, err
	}
	g.touch(ds.ID)

	n, err := c.Load(ctx, ds, recs)
	if err != nil {
		return n, errors.Wrapf(err, "load into %s", ds.Name)
	}
	log.WithFields(log.Fields{"destination": ds.Name, "records": n}).Debug("loaded records")
	return n, nil
}

// TestConnection probes the data source, serving cached results while fresh
func (g *Gateway) TestConnection(ctx context.Context, ds model.DataSource) (model.ConnectionStatus, error) {
	if item := g.health.Get(ds.ID); item != nil {
		return item.Value(), nil
	}

	c, err := g.connector(ds)
	if err != nil {
		return model.ConnectionStatus{}, err
	}

	started := time.Now()
	status, err := c.TestConnection(ctx, ds)
	if err != nil {
		status = model.ConnectionStatus{Success: false, Message: err.Error()}
	}
	status.Latency = time.Since(started)
	status.CheckedAt = time.Now()

	g.health.Set(ds.ID, status, ttlcache.DefaultTTL)
	return status, nil
}

// Disconnect drops the transient connection state and cached health for a source
func (g *Gateway) Disconnect(sourceID string) {
	g.mu.Lock()
	delete(g.conns, sourceID)
	g.mu.Unlock()
	g.health.Delete(sourceID)
}

// Close stops the health cache janitor
func (g *Gateway) Close() {
	g.health.Stop()
}

func (g *Gateway) connector(ds model.DataSource) (Connector, error) {
	if !ds.Enabled {
		return nil, errors.Wrap(ErrSourceDisabled, ds.Name)
	}
	g.mu.RLock()
	c, ok := g.connectors[ds.Type]
	g.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNoConnector, "type %s", ds.Type)
	}
	return c, nil
}

// touch lazily records a connection for the source and bumps last use
func (g *Gateway) touch(sourceID string) {
	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if conn, ok := g.conns[sourceID]; ok {
		conn.lastUsedAt = now
		return
	}
	g.conns[sourceID] = &connection{sourceID: sourceID, connectedAt: now, lastUsedAt: now}
}
