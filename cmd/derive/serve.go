package main

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
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vango-dev/derive/internal/config"
	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/inspect"
	"github.com/vango-dev/derive/pkg/instrument"
	"github.com/vango-dev/derive/pkg/query"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo graph behind the inspector",
		Long: `Run a small derived-state graph driven by a ticking base store and
serve the inspector for it.

Endpoints:
  /graph         dependency graph as JSON
  /stores/{id}   one store
  /events        WebSocket event feed
  /metrics       Prometheus metrics (metrics.enabled)
  /healthz       liveness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Inspector.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, interval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to derive.yaml")
	cmd.Flags().StringVar(&addr, "addr", "", "Inspector listen address (overrides config)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Tick interval of the demo base store")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadFromWorkingDir()
}

func runServe(ctx context.Context, cfg *config.Config, interval time.Duration) error {
	logger := cfg.Logger(os.Stderr)
	loop := tick.NewLoop(tick.WithLogger(logger))

	reg := derive.NewRegistry()
	hub := inspect.NewHub(
		inspect.WithAllowOrigins(cfg.Inspector.AllowOrigins...),
		inspect.WithHubLogger(logger),
	)
	observers := []derive.Observer{hub}
	handlerOpts := []inspect.Option{
		inspect.WithSnapshotter(loop.Call),
		inspect.WithLogger(logger),
	}

	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observers = append(observers, instrument.Prometheus(
			instrument.WithRegistry(promReg),
			instrument.WithNamespace(cfg.Metrics.Namespace),
		))
		handlerOpts = append(handlerOpts, inspect.WithGatherer(promReg))
	}

	if cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanLogger{logger: logger}))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		observers = append(observers, instrument.OpenTelemetry(
			instrument.WithTracerProvider(tp),
			instrument.WithTracerName(cfg.Tracing.TracerName),
		))
	}

	sched := derive.NewScheduler(loop,
		derive.WithLogger(logger),
		derive.WithRegistry(reg),
		derive.WithObserver(derive.Observers(observers...)),
	)

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	var teardown func()
	if err := loop.Call(ctx, func() {
		teardown = buildDemo(loop, sched, cfg, interval, logger)
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Inspector.Addr,
		Handler:           inspect.Handler(reg, hub, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	success("Inspector listening on http://%s", cfg.Inspector.Addr)
	info("Graph:   http://%s/graph", cfg.Inspector.Addr)
	info("Events:  ws://%s/events", cfg.Inspector.Addr)
	if cfg.Metrics.Enabled {
		info("Metrics: http://%s/metrics", cfg.Inspector.Addr)
	}

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("inspector shutdown", "error", err)
	}
	<-loopDone
	loop.Drain()
	teardown()
	return nil
}

// buildDemo wires the demo graph. It runs on the loop.
func buildDemo(loop *tick.Loop, sched *derive.Scheduler, cfg *config.Config, interval time.Duration, logger *slog.Logger) func() {
	ticks := store.New(0).Named("ticks")

	roster := query.New(loop, func(ctx context.Context) ([]string, error) {
		names := []string{"ada", "grace", "barbara", "edsger", "margaret"}
		n := 1 + int(time.Now().Unix()%int64(len(names)))
		return names[:n], nil
	}, query.WithName("roster"), query.WithStaleTime(5*interval))

	doubled := derive.New(func(a *derive.Accessor) int {
		return derive.Get(a, ticks) * 2
	}, derive.WithScheduler(sched), derive.WithName("doubled"))

	even := derive.New(func(a *derive.Accessor) bool {
		return derive.Select(a, ticks, func(v int) bool { return v%2 == 0 })
	}, derive.WithScheduler(sched), derive.WithName("even"))

	online := derive.New(func(a *derive.Accessor) int {
		return len(derive.Select(a, roster, func(s query.State[[]string]) []string {
			return s.Data
		}, store.ShallowEqual[[]string]))
	}, derive.WithScheduler(sched), derive.WithName("online"))

	summary := derive.New(func(a *derive.Accessor) string {
		return fmt.Sprintf("doubled=%d even=%t online=%d",
			derive.Get(a, doubled), derive.Get(a, even), derive.Get(a, online))
	}, derive.WithScheduler(sched), derive.WithName("summary"), derive.WithDebounce(cfg.Scheduler.Debounce))

	unsub := summary.Subscribe(func(next, prev string) {
		logger.Info("summary changed", "from", prev, "to", next)
	})

	var timer tick.Timer
	var step func()
	step = func() {
		ticks.Update(func(v int) int { return v + 1 })
		roster.Fetch(context.Background())
		timer = loop.AfterFunc(interval, step)
	}
	timer = loop.AfterFunc(interval, step)

	return func() {
		timer.Stop()
		roster.Cancel()
		unsub()
		for _, d := range []interface{ Destroy() }{summary, online, even, doubled} {
			d.Destroy()
		}
	}
}

// spanLogger is a span processor that logs finished spans at debug level.
type spanLogger struct {
	logger *slog.Logger
}

func (s spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (s spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	s.logger.Debug("span",
		"name", span.Name(),
		"duration", span.EndTime().Sub(span.StartTime()),
		"status", span.Status().Code.String(),
	)
}

func (s spanLogger) Shutdown(context.Context) error   { return nil }
func (s spanLogger) ForceFlush(context.Context) error { return nil }
