package flowstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/config"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
)

var base = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleRecord(id string, updated time.Time) promptgraph.FlowRecord {
	return promptgraph.FlowRecord{
		ID:         id,
		Name:       "Flow " + id,
		ProviderID: "mistral",
		CreatedAt:  base,
		UpdatedAt:  updated,
		Nodes: []promptgraph.Node{
			{
				ID:       "p",
				Type:     promptgraph.TypeInitialPrompt,
				Data:     promptgraph.InitialPromptData{Text: "a lighthouse at dusk", MaxTokens: 200},
				Position: promptgraph.Position{X: 10, Y: 20},
			},
			{
				ID:       "g",
				Type:     promptgraph.TypeGroup,
				Data:     promptgraph.GroupData{},
				Position: promptgraph.Position{X: 300, Y: 0},
			},
			{
				ID:       "e",
				Type:     promptgraph.TypePromptEnhancer,
				Data:     promptgraph.PromptEnhancerData{Base: promptgraph.Base{Label: "Enhance", Model: "small"}, Notes: "moody"},
				ParentID: "g",
				Position: promptgraph.Position{X: 5, Y: 5},
			},
		},
		Edges: []promptgraph.Edge{
			{ID: "e1", Source: "p", Target: "e"},
		},
	}
}

var recordOpts = cmp.Options{cmpopts.EquateEmpty()}

// stores returns a fresh instance of every store that can run here.
func stores(t *testing.T) map[string]func(t *testing.T) flowstore.Store {
	t.Helper()
	out := map[string]func(t *testing.T) flowstore.Store{
		"memory": func(t *testing.T) flowstore.Store {
			return flowstore.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) flowstore.Store {
			s, err := flowstore.NewSQLiteStore(filepath.Join(t.TempDir(), "flows.db"))
			require.NoError(t, err)
			return s
		},
		"sqlite-memory": func(t *testing.T) flowstore.Store {
			s, err := flowstore.NewSQLiteStore(":memory:")
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("PROMPTGRAPH_PG_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) flowstore.Store {
			s, err := flowstore.NewPostgresStore(context.Background(), dsn)
			require.NoError(t, err)
			return s
		}
	}
	return out
}

// id returns a flow ID unique to this run so a shared database is safe.
func id(name string) string {
	return name + "-" + uuid.NewString()
}

func TestStore_SaveLoad(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec := sampleRecord(id("a"), base.Add(time.Minute))
			require.NoError(t, s.Save(ctx, rec))
			defer s.Delete(ctx, rec.ID)

			got, err := s.Load(ctx, rec.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(rec, got, recordOpts); diff != "" {
				t.Errorf("loaded record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_SaveReplacesButKeepsCreatedAt(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec := sampleRecord(id("a"), base.Add(time.Minute))
			require.NoError(t, s.Save(ctx, rec))
			defer s.Delete(ctx, rec.ID)

			rec.Name = "Renamed"
			rec.Nodes = rec.Nodes[:1]
			rec.Edges = nil
			rec.CreatedAt = base.Add(time.Hour)
			rec.UpdatedAt = base.Add(2 * time.Hour)
			require.NoError(t, s.Save(ctx, rec))

			got, err := s.Load(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, "Renamed", got.Name)
			assert.Len(t, got.Nodes, 1)
			assert.Empty(t, got.Edges)
			assert.True(t, got.CreatedAt.Equal(base), "created_at changed to %v", got.CreatedAt)
			assert.True(t, got.UpdatedAt.Equal(base.Add(2*time.Hour)))
		})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, err := s.Load(context.Background(), id("missing"))
			assert.ErrorIs(t, err, flowstore.ErrNotFound)
		})
	}
}

func TestStore_SaveRejectsEmptyID(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			err := s.Save(context.Background(), promptgraph.FlowRecord{Name: "x"})
			assert.ErrorIs(t, err, flowstore.ErrInvalidRecord)
		})
	}
}

func TestStore_FillsZeroTimestamps(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec := promptgraph.FlowRecord{ID: id("bare"), Name: "Bare"}
			require.NoError(t, s.Save(ctx, rec))
			defer s.Delete(ctx, rec.ID)

			got, err := s.Load(ctx, rec.ID)
			require.NoError(t, err)
			assert.False(t, got.UpdatedAt.IsZero())
			assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
			assert.Empty(t, got.Nodes)
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			// Far-future times keep these ahead of anything else in a
			// shared database.
			future := base.AddDate(50, 0, 0)
			older := sampleRecord("a-"+uuid.NewString(), future)
			newer := sampleRecord("b-"+uuid.NewString(), future.Add(time.Second))
			newest := sampleRecord("c-"+uuid.NewString(), future.Add(2*time.Second))
			for _, rec := range []promptgraph.FlowRecord{newer, older, newest} {
				require.NoError(t, s.Save(ctx, rec))
				defer s.Delete(ctx, rec.ID)
			}

			infos, err := s.List(ctx)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(infos), 3)

			got := []string{infos[0].ID, infos[1].ID, infos[2].ID}
			assert.Equal(t, []string{newest.ID, newer.ID, older.ID}, got)
			assert.Equal(t, newest.Name, infos[0].Name)
			assert.Equal(t, "mistral", infos[0].ProviderID)
			assert.True(t, infos[0].CreatedAt.Equal(base))
			assert.Positive(t, infos[0].Size)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec := sampleRecord(id("a"), base)
			require.NoError(t, s.Save(ctx, rec))
			require.NoError(t, s.Delete(ctx, rec.ID))

			_, err := s.Load(ctx, rec.ID)
			assert.ErrorIs(t, err, flowstore.ErrNotFound)
			assert.NoError(t, s.Delete(ctx, rec.ID), "deleting a missing flow")
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close(), "second close")

			assert.ErrorIs(t, s.Save(ctx, sampleRecord("a", base)), flowstore.ErrStoreClosed)
			_, err := s.Load(ctx, "a")
			assert.ErrorIs(t, err, flowstore.ErrStoreClosed)
			_, err = s.List(ctx)
			assert.ErrorIs(t, err, flowstore.ErrStoreClosed)
			assert.ErrorIs(t, s.Delete(ctx, "a"), flowstore.ErrStoreClosed)
		})
	}
}

func TestStore_LoadDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	s := flowstore.NewMemoryStore()
	defer s.Close()

	rec := sampleRecord("a", base)
	require.NoError(t, s.Save(ctx, rec))
	rec.Nodes[0].ID = "mutated"

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p", got.Nodes[0].ID)

	got.Nodes[0].ID = "mutated again"
	again, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "p", again.Nodes[0].ID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flows.db")

	s, err := flowstore.NewSQLiteStore(path)
	require.NoError(t, err)
	rec := sampleRecord("a", base.Add(time.Minute))
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Close())

	s, err = flowstore.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got, recordOpts); diff != "" {
		t.Errorf("record after reopen (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_KeepsUnknownNodeData(t *testing.T) {
	ctx := context.Background()
	s, err := flowstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	rec := promptgraph.FlowRecord{
		ID: "a",
		Nodes: []promptgraph.Node{{
			ID:   "x",
			Type: "futureNode",
			Data: promptgraph.RawData{Type: "futureNode", Fields: map[string]any{"knob": "on"}},
		}},
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.Nodes, 1)
	raw, ok := got.Nodes[0].Data.(promptgraph.RawData)
	require.True(t, ok, "data type %T", got.Nodes[0].Data)
	assert.Equal(t, "on", raw.Fields["knob"])
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr error
	}{
		{name: "default is memory", cfg: config.StoreConfig{}, want: &flowstore.MemoryStore{}},
		{name: "memory", cfg: config.StoreConfig{Driver: config.DriverMemory}, want: &flowstore.MemoryStore{}},
		{name: "sqlite", cfg: config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "x.db")}, want: &flowstore.SQLiteStore{}},
		{name: "unknown", cfg: config.StoreConfig{Driver: "mongo"}, wantErr: flowstore.ErrUnknownDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := flowstore.Open(ctx, tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestOpen_PostgresBadDSN(t *testing.T) {
	_, err := flowstore.Open(context.Background(), config.StoreConfig{
		Driver: config.DriverPostgres,
		DSN:    "not a dsn ::",
	})
	assert.Error(t, err)
}
