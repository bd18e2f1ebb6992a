package flowstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

// MemoryStore is an in-memory flow store for tests and scratch sessions.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	flows  map[string]storedFlow
	closed bool
}

// storedFlow keeps the encoded graph so loads never alias saved records.
type storedFlow struct {
	info  Info
	graph []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]storedFlow)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec promptgraph.FlowRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	rec = timestamps(rec, time.Now().UTC())
	graph, err := encodeGraph(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	// The first save fixes the creation time, as in the SQL stores.
	if prev, ok := m.flows[rec.ID]; ok {
		rec.CreatedAt = prev.info.CreatedAt
	}
	m.flows[rec.ID] = storedFlow{
		info: Info{
			ID:         rec.ID,
			Name:       rec.Name,
			ProviderID: rec.ProviderID,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
			Size:       int64(len(graph)),
		},
		graph: graph,
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (promptgraph.FlowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return promptgraph.FlowRecord{}, ErrStoreClosed
	}

	stored, ok := m.flows[id]
	if !ok {
		return promptgraph.FlowRecord{}, ErrNotFound
	}
	rec := promptgraph.FlowRecord{
		ID:         stored.info.ID,
		Name:       stored.info.Name,
		ProviderID: stored.info.ProviderID,
		CreatedAt:  stored.info.CreatedAt,
		UpdatedAt:  stored.info.UpdatedAt,
	}
	if err := decodeGraph(id, stored.graph, &rec); err != nil {
		return promptgraph.FlowRecord{}, err
	}
	return rec, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.flows))
	for _, f := range m.flows {
		infos = append(infos, f.info)
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.flows, id)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.flows = nil
	return nil
}

// sortInfos orders by UpdatedAt descending, then ID.
func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
