package benchmarks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
)

func benchRecord(n int) promptgraph.FlowRecord {
	nodes, edges := buildLinear(n)
	return promptgraph.FlowRecord{ID: "bench-flow", Name: "bench", Nodes: nodes, Edges: edges}
}

func benchmarkSave(b *testing.B, store flowstore.Store, rec promptgraph.FlowRecord) {
	b.Helper()
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		if err := store.Save(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkLoad(b *testing.B, store flowstore.Store, rec promptgraph.FlowRecord) {
	b.Helper()
	ctx := context.Background()
	if err := store.Save(ctx, rec); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := store.Load(ctx, rec.ID); err != nil {
			b.Fatal(err)
		}
	}
}

func sqliteStore(b *testing.B) *flowstore.SQLiteStore {
	b.Helper()
	store, err := flowstore.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })
	return store
}

// BenchmarkMemoryStore_Save measures an in-memory save of a 50-node flow.
func BenchmarkMemoryStore_Save(b *testing.B) {
	benchmarkSave(b, flowstore.NewMemoryStore(), benchRecord(50))
}

// BenchmarkMemoryStore_Load measures an in-memory load of a 50-node flow.
func BenchmarkMemoryStore_Load(b *testing.B) {
	benchmarkLoad(b, flowstore.NewMemoryStore(), benchRecord(50))
}

// BenchmarkSQLiteStore_Save measures a SQLite upsert of a 50-node flow.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	benchmarkSave(b, sqliteStore(b), benchRecord(50))
}

// BenchmarkSQLiteStore_Load measures a SQLite load of a 50-node flow.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	benchmarkLoad(b, sqliteStore(b), benchRecord(50))
}
