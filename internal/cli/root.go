package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/config"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/executors"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/llm"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/observability"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/orchestrator"
)

// env carries the global flags and the objects built from them.
type env struct {
	configPath   string
	jsonOutput   bool
	storeDriver  string
	storeDSN     string
	mockResponse string

	logger *slog.Logger
}

// NewRootCmd builds the promptgraph command tree. logger may be nil.
func NewRootCmd(version string, logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	e := &env{logger: logger}

	rootCmd := &cobra.Command{
		Use:           "promptgraph",
		Short:         "Plan and execute prompt flows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&e.configPath, "config", os.Getenv("PROMPTGRAPH_CONFIG"), "Engine config file (YAML or JSON)")
	flags.BoolVar(&e.jsonOutput, "json", false, "Output in JSON format")
	flags.StringVar(&e.storeDriver, "store-driver", "", "Flow store driver: memory, sqlite, postgres")
	flags.StringVar(&e.storeDSN, "store-dsn", "", "Flow store path or connection string")
	flags.StringVar(&e.mockResponse, "mock-response", "", "Answer every LLM call with this text instead of calling a provider")

	rootCmd.AddCommand(
		newPlanCmd(e),
		newSelectCmd(e),
		newRunCmd(e),
		newScheduleCmd(e),
		newFlowCmd(e),
	)
	return rootCmd
}

func (e *env) output(cmd *cobra.Command) *Output {
	return NewOutput(e.jsonOutput, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// config loads the engine config and applies store flags over it.
func (e *env) config() (config.EngineConfig, error) {
	cfg, err := config.LoadEngine(e.configPath)
	if err != nil {
		return config.EngineConfig{}, fmt.Errorf("load config: %w", err)
	}
	if e.storeDriver != "" {
		cfg.Store.Driver = e.storeDriver
	}
	if e.storeDSN != "" {
		cfg.Store.DSN = e.storeDSN
	}
	return cfg, nil
}

func (e *env) openStore(ctx context.Context, cfg config.EngineConfig) (flowstore.Store, error) {
	store, err := flowstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// providers builds the LLM clients. Every provider ID resolves to the
// Claude CLI unless a mock response is set.
func (e *env) providers(cfg config.EngineConfig) *llm.Providers {
	if e.mockResponse != "" {
		return llm.NewProviders().WithFallback(llm.NewMockClient(e.mockResponse))
	}
	retry := llm.DefaultRetry
	retry.MaxAttempts = cfg.LLM.MaxAttempts
	claude := llm.WithRetry(llm.NewClaudeCLI(
		llm.WithClaudePath(cfg.LLM.ClaudePath),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout),
	), retry)
	return llm.NewProviders().Register("claude", claude).WithFallback(claude)
}

func (e *env) metrics(cfg config.EngineConfig) observability.MetricsRecorder {
	if cfg.Observability.Metrics {
		return observability.NewMetricsRecorder()
	}
	return observability.NoopMetrics{}
}

// orchestrator wires the built-in executors into a runner.
func (e *env) orchestrator(cfg config.EngineConfig) *orchestrator.Orchestrator {
	set := executors.New(e.providers(cfg), executors.WithLogger(e.logger))
	runner := promptgraph.NewRunner(
		promptgraph.WithRegistry(set.Register(promptgraph.NewRegistry())),
		promptgraph.WithResolver(cfg.Models),
		promptgraph.WithLogger(e.logger),
		promptgraph.WithMetrics(cfg.Observability.Metrics),
		promptgraph.WithTracing(cfg.Observability.Tracing),
	)
	return orchestrator.New(
		orchestrator.WithRunner(runner),
		orchestrator.WithUndoOptions(cfg.Undo.Options()...),
		orchestrator.WithLogger(e.logger),
		orchestrator.WithDefaultProvider(cfg.DefaultProvider),
	)
}

// loadRecord reads ref as a flow JSON file, or as a flow ID in the store
// when no such file exists.
func (e *env) loadRecord(ctx context.Context, cfg config.EngineConfig, ref string) (promptgraph.FlowRecord, error) {
	data, err := os.ReadFile(ref)
	if err == nil {
		return decodeRecord(ref, data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return promptgraph.FlowRecord{}, fmt.Errorf("read %s: %w", ref, err)
	}

	store, err := e.openStore(ctx, cfg)
	if err != nil {
		return promptgraph.FlowRecord{}, err
	}
	defer store.Close()

	rec, err := store.Load(ctx, ref)
	if err != nil {
		return promptgraph.FlowRecord{}, fmt.Errorf("load flow %s: %w", ref, err)
	}
	return rec, nil
}

func decodeRecord(path string, data []byte) (promptgraph.FlowRecord, error) {
	var rec promptgraph.FlowRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return promptgraph.FlowRecord{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}
