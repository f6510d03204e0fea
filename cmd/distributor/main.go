// Command distributor runs the weighted log-ingest distributor: it
// accepts batched log packets over HTTP, routes each to one of several
// analyzer processes via weighted random selection, and backs off
// per-analyzer failures with a circuit breaker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arclight-systems/logdist/breaker"
	"github.com/arclight-systems/logdist/configstore"
	"github.com/arclight-systems/logdist/core"
	"github.com/arclight-systems/logdist/dispatcher"
	"github.com/arclight-systems/logdist/distributorcfg"
	"github.com/arclight-systems/logdist/metrics"
	"github.com/arclight-systems/logdist/pkg/telemetry"
	"github.com/arclight-systems/logdist/rpc"
	"github.com/arclight-systems/logdist/selector"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	bootLogger := core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json"}, core.DevelopmentConfig{}, "distributor")

	cfg, err := distributorcfg.Load(bootLogger)
	if err != nil {
		bootLogger.Error("startup configuration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, "distributor")

	if err := run(cfg, logger); err != nil {
		logger.Error("distributor exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *distributorcfg.Config, logger core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	compLogger, _ := logger.(core.ComponentAwareLogger)
	withComponent := func(component string) core.Logger {
		if compLogger == nil {
			return logger
		}
		return compLogger.WithComponent(component)
	}

	store, err := configstore.New(configstore.Options{
		RedisURL:  cfg.RedisURL,
		Namespace: cfg.ConfigStoreNS,
		Logger:    withComponent("configstore"),
	})
	if err != nil {
		return fmt.Errorf("connect config store: %w", err)
	}
	defer store.Close()

	analyzerNames := make([]string, 0, len(cfg.Analyzers))
	breakers := make(map[string]*breaker.Breaker, len(cfg.Analyzers))
	breakerLogger := withComponent("breaker")
	for name := range cfg.Analyzers {
		analyzerNames = append(analyzerNames, name)
		b, err := breaker.New(name, breaker.Config{
			FailureThreshold:         cfg.CBFailureThreshold,
			RecoveryTimeout:          cfg.CBRecoveryTimeout,
			HalfOpenSuccessThreshold: cfg.CBHalfOpenSuccessThreshold,
			Logger:                   breakerLogger,
		})
		if err != nil {
			return fmt.Errorf("construct breaker for %s: %w", name, err)
		}
		breakers[name] = b
	}

	pool := rpc.NewPool(cfg.Analyzers, withComponent("rpc"))

	weights := dispatcher.NewWeightStore(cfg.DefaultWeights)
	store.WatchWeights(ctx, cfg.WeightPollInterval, weights.Replace)

	registry := prometheus.NewRegistry()
	distMetrics, err := metrics.NewDistributorMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	d := dispatcher.New(dispatcher.Config{
		Analyzers:       analyzerNames,
		Breakers:        breakers,
		Pool:            dispatcher.RPCPoolAdapter{Pool: pool},
		Selector:        selector.New(time.Now().UnixNano(), withComponent("selector")),
		Weights:         weights,
		Metrics:         distMetrics,
		Logger:          withComponent("dispatcher"),
		AnalyzerTimeout: cfg.AnalyzerTimeout,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", d.ServeIngest)
	mux.HandleFunc("/health", d.ServeHealth)
	mux.Handle("/metrics", metrics.Handler(registry))

	var handler http.Handler = mux
	handler = core.CORSMiddleware(&cfg.CORS)(handler)
	handler = core.LoggingMiddleware(logger, cfg.Development.Enabled)(handler)
	handler = telemetry.CorrelationMiddleware(handler)
	handler = core.RecoveryMiddleware(logger)(handler)

	var tp *telemetry.TracerProvider
	if telemetry.Enabled() {
		tp, err = telemetry.NewTracerProvider(ctx, "distributor")
		if err != nil {
			return fmt.Errorf("init tracer provider: %w", err)
		}
		handler = telemetry.Middleware("distributor", handler)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("distributor listening", map[string]interface{}{
			"port":      cfg.Port,
			"analyzers": analyzerNames,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if tp != nil {
		_ = tp.Shutdown(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}
