// Package main implements the GEO audit API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/dashboard"
	"github.com/WessleyAI/geoaudit/engine/semantic"
	"github.com/WessleyAI/geoaudit/engine/store"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/config"
	"github.com/WessleyAI/geoaudit/pkg/llm"
	"github.com/WessleyAI/geoaudit/pkg/metrics"
	"github.com/WessleyAI/geoaudit/pkg/natsutil"
	"github.com/WessleyAI/geoaudit/pkg/resilience"
	"github.com/WessleyAI/geoaudit/pkg/wordpress"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func main() {
	cfg, err := config.Load(envOr("GEOAUDIT_CONFIG", "geoaudit.yaml"))
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// deps is everything the HTTP layer needs, plus the closers of the
// connections behind it.
type deps struct {
	svc     *dashboard.Service
	metrics *metrics.Metrics
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{metrics: metrics.New()}

	// --- Tracking: log always, NATS when configured ---
	sinks := tracking.Multi{tracking.LogSink{Logger: logger}}
	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "geoaudit-api", logger)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, func() { nc.Drain() })
		sinks = append(sinks, tracking.NewNATSSink(nc, cfg.NATS.Subject))
	}
	tracker := tracking.New(sinks, logger)

	// --- Audit pipeline ---
	client := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, llm.WithEmbedModel(cfg.LLM.EmbedModel))
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured; every audit will fall back to the mock analysis")
	}
	opts := audit.Options{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}
	if cfg.LLM.BreakerThreshold > 0 {
		opts.Breaker = resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold: cfg.LLM.BreakerThreshold,
			Timeout:       cfg.LLM.BreakerCooldown,
			HalfOpenMax:   1,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn("llm circuit breaker", "from", from.String(), "to", to.String())
			},
		})
	}
	pipeline := audit.New(client, opts, logger, d.metrics, tracker)

	// --- Records: Neo4j when configured, memory otherwise ---
	var st *store.Store
	if cfg.Neo4j.URL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
		if err != nil {
			d.close()
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		d.closers = append(d.closers, func() { driver.Close(context.Background()) })
		st = store.NewNeo4j(driver)
	} else {
		logger.Warn("NEO4J_URL not set; records are kept in memory")
		st = store.NewMemory()
	}

	svcOpts := []dashboard.Option{
		dashboard.WithTracker(tracker),
		dashboard.WithMetrics(d.metrics),
		dashboard.WithVerifyConcurrency(cfg.Verify.Concurrency),
	}

	// --- Similar-audit index ---
	if cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("qdrant connect: %w", err)
		}
		d.closers = append(d.closers, func() { vs.Close() })
		if err := vs.EnsureCollection(ctx, int(cfg.Qdrant.VectorSize)); err != nil {
			d.close()
			return nil, err
		}
		svcOpts = append(svcOpts, dashboard.WithIndex(semantic.NewAuditIndex(client, vs, logger)))
	}

	wp := wordpress.New(wordpress.Config{
		PublishRoute:  cfg.WordPress.PublishRoute,
		PublishAPIKey: cfg.WordPress.PublishAPIKey,
		APIKeyHeader:  cfg.WordPress.APIKeyHeader,
		Timeout:       cfg.WordPress.Timeout,
		RateEvery:     cfg.WordPress.RateEvery,
		Burst:         cfg.WordPress.Burst,
		Logger:        logger,
	})
	d.svc = dashboard.New(st, pipeline, wp, logger, svcOpts...)
	return d, nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	stopVerifier, err := d.svc.StartVerifier(cfg.Verify.Schedule)
	if err != nil {
		return err
	}
	defer stopVerifier()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newHandler(d.svc, d.metrics, cfg.Server, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
