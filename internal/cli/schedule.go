package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph/config"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/orchestrator"
)

// cronParser accepts standard five-field expressions and descriptors
// such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr reports whether expr is a valid schedule.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// scheduleMetrics are exported on /metrics while a schedule runs.
type scheduleMetrics struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

func newScheduleMetrics(reg prometheus.Registerer) *scheduleMetrics {
	m := &scheduleMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgraph_scheduled_runs_total",
			Help: "Scheduled flow runs by result (ok, failed, error).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptgraph_scheduled_run_duration_seconds",
			Help:    "Wall time of scheduled flow runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptgraph_scheduled_run_last_success_timestamp_seconds",
			Help: "Unix time of the last run without failed nodes.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// scheduler runs one flow reference repeatedly. The flow is reloaded for
// every run so edits saved between runs are picked up.
type scheduler struct {
	env     *env
	cfg     config.EngineConfig
	ref     string
	from    string
	orch    *orchestrator.Orchestrator
	out     *Output
	metrics *scheduleMetrics
}

// runOnce loads and runs the flow, recording the result.
func (s *scheduler) runOnce(ctx context.Context) error {
	start := time.Now()
	rec, err := s.env.loadRecord(ctx, s.cfg, s.ref)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		return err
	}

	_, err = s.env.runFlow(ctx, s.orch, rec, s.from, s.out)
	s.metrics.duration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		s.metrics.runs.WithLabelValues("ok").Inc()
		s.metrics.lastSuccess.SetToCurrentTime()
	case errors.Is(err, ErrNodesFailed):
		s.metrics.runs.WithLabelValues("failed").Inc()
	default:
		s.metrics.runs.WithLabelValues("error").Inc()
	}
	return err
}

// cronLogger adapts slog to cron.Logger. Cron's info messages are noisy
// and go to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}

func newScheduleCmd(e *env) *cobra.Command {
	var expr, from, metricsAddr string
	var save bool

	cmd := &cobra.Command{
		Use:   "schedule FLOW",
		Short: "Execute a flow on a cron schedule",
		Long: `Execute a flow every time the cron expression fires, until interrupted.

A run still in progress when the next one is due is not overlapped; the
due run is skipped. With --metrics-addr, /metrics (Prometheus) and
/healthz are served on that address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateCronExpr(expr); err != nil {
				return err
			}
			cfg, err := e.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("save") {
				save = cfg.AutoSave.Enabled
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			s := &scheduler{
				env:     e,
				cfg:     cfg,
				ref:     args[0],
				from:    from,
				orch:    e.orchestrator(cfg),
				out:     e.output(cmd),
				metrics: newScheduleMetrics(reg),
			}

			if save {
				store, err := e.openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				saver := flowstore.NewAutoSaver(store, s.orch,
					flowstore.WithDelay(cfg.AutoSave.Delay),
					flowstore.WithLogger(e.logger),
					flowstore.WithMetrics(e.metrics(cfg)),
				)
				saver.Start()
				defer saver.Stop()
			}

			if metricsAddr != "" {
				srv := metricsServer(metricsAddr, reg)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.logger.Error("metrics server failed", slog.String("error", err.Error()))
						cancel()
					}
				}()
				defer func() {
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			logger := cronLogger{logger: e.logger}
			c := cron.New(
				cron.WithParser(cronParser),
				cron.WithLogger(logger),
				cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
			)
			if _, err := c.AddFunc(expr, func() {
				if err := s.runOnce(ctx); err != nil {
					e.logger.Error("scheduled run failed", slog.String("flow", s.ref), slog.String("error", err.Error()))
				}
			}); err != nil {
				return fmt.Errorf("schedule %s: %w", s.ref, err)
			}

			c.Start()
			if entries := c.Entries(); len(entries) > 0 {
				s.out.Info(fmt.Sprintf("Scheduled %s (%s); next run %s", s.ref, expr, entries[0].Next.Format(time.RFC3339)))
			}

			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression, e.g. \"*/15 * * * *\" or @hourly (required)")
	cmd.Flags().StringVar(&from, "from", "", "Run from this node only")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().BoolVar(&save, "save", false, "Persist text output write-back (default: autosave.enabled from config)")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
