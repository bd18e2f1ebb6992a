// Package flowstore persists flows.
//
// A Store saves and loads promptgraph.FlowRecord values. The graph (nodes
// and edges) is stored as the canvas JSON document; name, provider and
// timestamps are stored alongside it so List never decodes a graph.
//
// AutoSaver connects a Store to an orchestrator: it saves a flow a short
// while after its last change.
package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/config"
)

// Store persists flows. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces a flow.
	Save(ctx context.Context, rec promptgraph.FlowRecord) error

	// Load returns a flow. Returns ErrNotFound if it does not exist.
	Load(ctx context.Context, id string) (promptgraph.FlowRecord, error)

	// List returns every flow, most recently updated first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a flow. Returns nil if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info describes a stored flow without its graph.
type Info struct {
	ID         string
	Name       string
	ProviderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Size is the length of the stored graph document in bytes.
	Size int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a flow that is not stored.
	ErrNotFound = errors.New("flow not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("flow store closed")

	// ErrInvalidRecord indicates a record without an ID.
	ErrInvalidRecord = errors.New("invalid flow record")

	// ErrUnknownDriver indicates an unsupported store driver.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		path := cfg.DSN
		if path == "" {
			path = "promptgraph.db"
		}
		return NewSQLiteStore(path)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// graphDoc is the stored form of a flow's graph.
type graphDoc struct {
	Nodes []promptgraph.Node `json:"nodes"`
	Edges []promptgraph.Edge `json:"edges"`
}

func encodeGraph(rec promptgraph.FlowRecord) ([]byte, error) {
	nodes, edges := rec.Nodes, rec.Edges
	if nodes == nil {
		nodes = []promptgraph.Node{}
	}
	if edges == nil {
		edges = []promptgraph.Edge{}
	}
	data, err := json.Marshal(graphDoc{Nodes: nodes, Edges: edges})
	if err != nil {
		return nil, fmt.Errorf("encode flow %s: %w", rec.ID, err)
	}
	return data, nil
}

func decodeGraph(id string, data []byte, rec *promptgraph.FlowRecord) error {
	var doc graphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode flow %s: %w", id, err)
	}
	rec.Nodes = doc.Nodes
	rec.Edges = doc.Edges
	return nil
}

func validate(rec promptgraph.FlowRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("save: %w: empty id", ErrInvalidRecord)
	}
	return nil
}

// timestamps fills zero timestamps with now.
func timestamps(rec promptgraph.FlowRecord, now time.Time) promptgraph.FlowRecord {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	return rec
}
