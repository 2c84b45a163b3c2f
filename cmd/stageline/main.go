package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stagelinehq/stageline/internal/capability"
	"github.com/stagelinehq/stageline/internal/engine"
	"github.com/stagelinehq/stageline/internal/expressions"
	"github.com/stagelinehq/stageline/internal/logging"
	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/internal/scheduler"
	stageserver "github.com/stagelinehq/stageline/internal/server"
	"github.com/stagelinehq/stageline/internal/store"
	"github.com/stagelinehq/stageline/internal/streaming"
	"github.com/stagelinehq/stageline/internal/workflow"
	"github.com/stagelinehq/stageline/pkg/mcp"
)

const providerTimeout = 30 * time.Second

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("stageline exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Providers share a breaker registry so one flapping upstream never
	// trips the others.
	breakers := providers.NewBreakerRegistry(providers.DefaultBreakerConfig())
	deps := capability.BuiltinDeps{
		Search:    providers.NewSearchClient(providerConfig(cfg.Search), breakers),
		LLM:       providers.NewLLMClient(providerConfig(cfg.LLM), breakers, providers.WithModel(cfg.LLMModel)),
		Mailer:    providers.NewMailerClient(providerConfig(cfg.Mailer), breakers, cfg.MailerFrom),
		Media:     providers.NewMediaClient(providerConfig(cfg.Media), breakers),
		Analytics: providers.NewAnalyticsClient(providerConfig(cfg.Analytics), breakers),
	}

	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry, deps); err != nil {
		return err
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}
	jq := expressions.NewGoJQEngine()
	compute := expressions.NewExprEngine()

	builder, err := workflow.NewBuilder(registry, cel, jq, compute)
	if err != nil {
		return err
	}

	library := workflow.NewLibrary()
	if err := workflow.LoadBuiltins(builder, library); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	executor := engine.NewExecutor(engine.Config{
		Registry:   registry,
		Conditions: cel,
		Aggregator: engine.NewAggregator(jq, compute),
		Params:     builder.Structural(),
		Sinks:      []engine.EventSink{store.NewEventLog(st, logger), hub},
		Logger:     logger,
	})

	runs := stageserver.NewRunService(library, executor, st, logger)

	sched := scheduler.NewScheduler(st, runs, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed schedule recovery failed", "error", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.MCP {
		logger.Info("serving MCP over stdio")
		srv := mcp.NewStagelineServer(mcp.StagelineServerDeps{
			Runs:     runs,
			Library:  library,
			Registry: registry,
			Store:    st,
			Logger:   logger,
		})
		return srv.Serve(ctx)
	}

	api := stageserver.NewServer(stageserver.Deps{
		Library:   library,
		Runs:      runs,
		Registry:  registry,
		Store:     st,
		Hub:       hub,
		Scheduler: sched,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving HTTP API", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func providerConfig(pc ProviderConfig) providers.Config {
	return providers.Config{
		BaseURL: pc.BaseURL,
		APIKey:  pc.APIKey,
		Timeout: providerTimeout,
		Retry:   providers.DefaultRetryPolicy(),
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}
