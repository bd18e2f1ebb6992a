package config

import (
	"os"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/undo"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultAutoSaveDelay is the quiet period before a dirty flow is saved.
const DefaultAutoSaveDelay = 2 * time.Second

// EngineConfig is the typed engine configuration.
type EngineConfig struct {
	// DefaultProvider is the global provider for new flows.
	DefaultProvider string

	// Models are the per-node-type provider/model defaults.
	Models promptgraph.ModelTable

	Undo          UndoConfig
	AutoSave      AutoSaveConfig
	Store         StoreConfig
	LLM           LLMConfig
	Observability ObservabilityConfig
}

// UndoConfig holds undo history timings.
type UndoConfig struct {
	MaxDepth    int
	Debounce    time.Duration
	BatchWindow time.Duration
}

// Options converts the settings to undo.History options.
func (u UndoConfig) Options() []undo.Option {
	return []undo.Option{
		undo.WithMaxDepth(u.MaxDepth),
		undo.WithDebounce(u.Debounce),
		undo.WithBatchWindow(u.BatchWindow),
	}
}

// AutoSaveConfig controls debounced persistence of dirty flows.
type AutoSaveConfig struct {
	Enabled bool
	Delay   time.Duration
}

// StoreConfig selects the flow store.
type StoreConfig struct {
	// Driver is one of DriverMemory, DriverSQLite, DriverPostgres.
	Driver string
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string
}

// LLMConfig configures the Claude CLI client.
type LLMConfig struct {
	ClaudePath string
	Model      string
	Timeout    time.Duration
	// MaxAttempts bounds retries of rate limits and overloads.
	MaxAttempts int
}

// ObservabilityConfig toggles OpenTelemetry instrumentation.
type ObservabilityConfig struct {
	Metrics bool
	Tracing bool
}

// DefaultEngine returns the built-in configuration.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		DefaultProvider: "claude",
		Models:          promptgraph.DefaultModels(),
		Undo: UndoConfig{
			MaxDepth:    undo.DefaultMaxDepth,
			Debounce:    undo.DefaultDebounce,
			BatchWindow: undo.DefaultBatchWindow,
		},
		AutoSave: AutoSaveConfig{Enabled: true, Delay: DefaultAutoSaveDelay},
		Store:    StoreConfig{Driver: DriverMemory},
		LLM:      LLMConfig{ClaudePath: "claude", Timeout: 5 * time.Minute, MaxAttempts: 3},
	}
}

// Engine builds an EngineConfig from c on top of the defaults.
//
// Recognised layout:
//
//	default_provider: claude
//	models:
//	  storyTeller: {provider: mistral, model: labs-mistral-small-creative}
//	undo: {max_depth: 50, debounce: 500ms, batch_window: 50ms}
//	autosave: {enabled: true, delay: 2s}
//	store: {driver: sqlite, dsn: flows.db}
//	llm: {claude_path: claude, model: "", timeout: 5m, max_attempts: 3}
//	observability: {metrics: false, tracing: false}
func Engine(c Config) EngineConfig {
	e := DefaultEngine()

	e.DefaultProvider = c.String("default_provider", e.DefaultProvider)

	models := c.Sub("models")
	for _, key := range models.Keys() {
		m := models.Sub(key)
		t := promptgraph.NodeType(key)
		cur := e.Models[t]
		e.Models[t] = promptgraph.ModelAssignment{
			ProviderID: m.String("provider", cur.ProviderID),
			Model:      m.String("model", cur.Model),
			Rationale:  m.String("rationale", cur.Rationale),
		}
	}

	u := c.Sub("undo")
	e.Undo.MaxDepth = u.Int("max_depth", e.Undo.MaxDepth)
	e.Undo.Debounce = u.Duration("debounce", e.Undo.Debounce)
	e.Undo.BatchWindow = u.Duration("batch_window", e.Undo.BatchWindow)

	a := c.Sub("autosave")
	e.AutoSave.Enabled = a.Bool("enabled", e.AutoSave.Enabled)
	e.AutoSave.Delay = a.Duration("delay", e.AutoSave.Delay)

	s := c.Sub("store")
	e.Store.Driver = s.String("driver", e.Store.Driver)
	e.Store.DSN = s.String("dsn", e.Store.DSN)

	l := c.Sub("llm")
	e.LLM.ClaudePath = l.String("claude_path", e.LLM.ClaudePath)
	e.LLM.Model = l.String("model", e.LLM.Model)
	e.LLM.Timeout = l.Duration("timeout", e.LLM.Timeout)
	e.LLM.MaxAttempts = l.Int("max_attempts", e.LLM.MaxAttempts)

	o := c.Sub("observability")
	e.Observability.Metrics = o.Bool("metrics", e.Observability.Metrics)
	e.Observability.Tracing = o.Bool("tracing", e.Observability.Tracing)

	return e
}

// LoadEngine reads path and applies environment overrides. An empty
// path yields the defaults plus environment.
func LoadEngine(path string) (EngineConfig, error) {
	c := New(nil)
	if path != "" {
		var err error
		c, err = FromFile(path)
		if err != nil {
			return EngineConfig{}, err
		}
	}
	e := Engine(c)
	e.ApplyEnv(os.LookupEnv)
	return e, nil
}

// ApplyEnv overrides store settings from PROMPTGRAPH_STORE_DRIVER and
// PROMPTGRAPH_STORE_DSN, and the Claude binary from PROMPTGRAPH_CLAUDE_PATH.
func (e *EngineConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PROMPTGRAPH_STORE_DRIVER"); ok && v != "" {
		e.Store.Driver = v
	}
	if v, ok := lookup("PROMPTGRAPH_STORE_DSN"); ok && v != "" {
		e.Store.DSN = v
	}
	if v, ok := lookup("PROMPTGRAPH_CLAUDE_PATH"); ok && v != "" {
		e.LLM.ClaudePath = v
	}
}
