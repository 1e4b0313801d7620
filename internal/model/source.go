package model

import "time"

// SourceType identifies the connector implementation a data source uses
type SourceType string

const (
	SourceTypeDatabase SourceType = "database"
	SourceTypeAPI      SourceType = "api"
	SourceTypeFile     SourceType = "file"
	SourceTypeMemory   SourceType = "memory"
)

// DataSource is a named, typed connection descriptor. It holds no live
// connection state; the gateway owns transient connections keyed by ID.
type DataSource struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Type      SourceType             `json:"type"`
	Enabled   bool                   `json:"enabled"`
	Config    map[string]interface{} `json:"config,omitempty"` // type-specific settings
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// ConnectionStatus is the outcome of a connection test against a data source
type ConnectionStatus struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latencyMs"`
	CheckedAt time.Time     `json:"checkedAt"`
}
