package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/satellite-agent/internal/agent"
	"github.com/signalsfoundry/satellite-agent/internal/clock"
	"github.com/signalsfoundry/satellite-agent/internal/config"
	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/ndk"
	"github.com/signalsfoundry/satellite-agent/internal/observability"
	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	ndkAddr := flag.String("ndk-addr", "", "SDK manager gRPC address (overrides config)")
	adminAddr := flag.String("admin-addr", "", "HTTP address for /metrics, /healthz and /satellite (overrides config)")
	flag.Parse()

	ctx := context.Background()
	bootLog := logging.NewFromEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error(ctx, "failed to load configuration", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *ndkAddr != "" {
		cfg.NDK.Address = *ndkAddr
	}
	if *adminAddr != "" {
		cfg.Admin.Address = *adminAddr
	}

	log := logging.New(cfg.Logging()).With(logging.String("agent", cfg.Agent.Name))

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "agent exited with error", logging.Err(err))
		os.Exit(1)
	}
}

// run wires the agent together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, reg prometheus.Registerer) error {
	tracing, err := observability.StartTracing(ctx, cfg.Tracing(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracing.Shutdown(context.WithoutCancel(ctx))

	collector, err := observability.NewAgentCollector(reg)
	if err != nil {
		return fmt.Errorf("init agent metrics: %w", err)
	}
	sourceCollector, err := observability.NewSourceCollector(reg)
	if err != nil {
		return fmt.Errorf("init source metrics: %w", err)
	}

	conn, err := ndk.Dial(cfg.NDK.Address,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(collector.UnaryClientInterceptor()),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	a := agent.New(
		agent.FromNDK(ndk.NewClient(conn, cfg.Agent.Name, log)),
		source,
		agent.WithLogger(log),
		agent.WithTracer(observability.Tracer()),
		agent.WithMetricsRecorder(collector),
		agent.WithSourceMetricsRecorder(sourceCollector),
		agent.WithInterval(cfg.Agent.Interval),
		agent.WithJsPath(cfg.Agent.JsPath),
		agent.WithCallTimeout(cfg.Agent.CallTimeout),
		agent.WithUnregisterTimeout(cfg.Agent.UnregisterTimeout),
	)

	var adminSrv *http.Server
	if !cfg.Admin.Disabled {
		adminSrv = serveAdmin(cfg.Admin.Address, newAdminMux(collector, a), log)
	}

	log.Info(ctx, "starting satellite agent",
		logging.String("ndk_addr", cfg.NDK.Address),
		logging.String("source", source.Name()),
	)
	runErr := a.Run(ctx)

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func newSource(cfg *config.Config) (satellite.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceAPI:
		return satellite.NewAPISource(cfg.Source.URL, cfg.Source.Timeout), nil
	case config.SourceTLE:
		return satellite.NewTLESource(cfg.Source.TLEURL, cfg.Source.Timeout, cfg.Source.TLERefresh, clock.Real()), nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalid, cfg.Source.Kind)
	}
}

func newAdminMux(collector *observability.AgentCollector, a *agent.Agent) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/satellite", a.Mirror())
	mux.Handle("/debug/agent", a.DebugHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := a.State()
		if state == agent.StateTerminated {
			http.Error(w, state.String(), http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprintln(w, state.String())
	})
	return mux
}

func serveAdmin(addr string, handler http.Handler, log logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "admin server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving admin endpoints", logging.String("addr", addr))
	return srv
}
