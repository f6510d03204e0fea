// Command analyzer runs one admission-gated analyzer process: it accepts
// routed log packets over HTTP, refusing them whenever its active flag
// (polled from the config store) is false, and otherwise logs every
// message through its configured sink.
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

	"github.com/arclight-systems/logdist/analyzer"
	"github.com/arclight-systems/logdist/analyzercfg"
	"github.com/arclight-systems/logdist/configstore"
	"github.com/arclight-systems/logdist/core"
	"github.com/arclight-systems/logdist/logsink"
	"github.com/arclight-systems/logdist/pkg/telemetry"
)

func main() {
	bootLogger := core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json"}, core.DevelopmentConfig{}, "analyzer")

	cfg, err := analyzercfg.Load(bootLogger)
	if err != nil {
		bootLogger.Error("startup configuration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, "analyzer")

	if err := run(cfg, logger); err != nil {
		logger.Error("analyzer exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *analyzercfg.Config, logger core.Logger) error {
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

	sink := logsink.NewLoggerSink(withComponent("logsink"))
	gate := analyzer.New(cfg.Name, sink, withComponent("gate"))

	initialActive, err := store.IsActive(ctx, cfg.Name)
	if err != nil {
		logger.Warn("initial active flag read failed, defaulting to active", map[string]interface{}{"error": err.Error()})
	} else {
		gate.SetActive(initialActive)
	}
	store.WatchActive(ctx, cfg.Name, cfg.PollInterval, gate.SetActive)

	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", gate.ServeAnalyze)
	mux.HandleFunc("/health", gate.ServeHealth)

	var handler http.Handler = mux
	handler = core.LoggingMiddleware(logger, cfg.Development.Enabled)(handler)
	handler = telemetry.CorrelationMiddleware(handler)
	handler = core.RecoveryMiddleware(logger)(handler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("analyzer listening", map[string]interface{}{
			"port":     cfg.Port,
			"analyzer": cfg.Name,
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
	return server.Shutdown(shutdownCtx)
}
