package flowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

// SQLiteStore persists flows to SQLite.
// It is suitable for single-process use such as a desktop session.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a SQLite flow store.
// The path should be a file path (e.g., "./flows.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			graph BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_flows_updated_at
		ON flows(updated_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec promptgraph.FlowRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	rec = timestamps(rec, time.Now().UTC())
	graph, err := encodeGraph(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flows (id, name, provider_id, created_at, updated_at, graph)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider_id = excluded.provider_id,
			updated_at = excluded.updated_at,
			graph = excluded.graph
	`, rec.ID, rec.Name, rec.ProviderID, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), graph)
	if err != nil {
		return fmt.Errorf("save flow: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (promptgraph.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return promptgraph.FlowRecord{}, ErrStoreClosed
	}

	var (
		rec              promptgraph.FlowRecord
		created, updated string
		graph            []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider_id, created_at, updated_at, graph
		FROM flows
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Name, &rec.ProviderID, &created, &updated, &graph)
	if errors.Is(err, sql.ErrNoRows) {
		return promptgraph.FlowRecord{}, ErrNotFound
	}
	if err != nil {
		return promptgraph.FlowRecord{}, fmt.Errorf("load flow: %w", err)
	}

	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	if err := decodeGraph(id, graph, &rec); err != nil {
		return promptgraph.FlowRecord{}, err
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider_id, created_at, updated_at, LENGTH(graph)
		FROM flows
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var created, updated string
		if err := rows.Scan(&info.ID, &info.Name, &info.ProviderID, &created, &updated, &info.Size); err != nil {
			return nil, fmt.Errorf("scan flow info: %w", err)
		}
		info.CreatedAt = parseTime(created)
		info.UpdatedAt = parseTime(updated)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
