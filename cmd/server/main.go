package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/feedback"
	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/orchestrator"
	"github.com/connexus-ai/ragbox-backend/internal/providers/stub"
	"github.com/connexus-ai/ragbox-backend/internal/providers/vertexai"
	"github.com/connexus-ai/ragbox-backend/internal/repository"
	"github.com/connexus-ai/ragbox-backend/internal/router"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

const Version = "0.3.0"

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

// embeddingProvider selects the EmbedderService's backing provider. The
// stub provider (deterministic, no network calls) is used in development
// so the full pipeline is exercisable without GCP credentials; every other
// environment talks to Vertex AI.
func embeddingProvider(ctx context.Context, cfg *config.Config) (service.EmbeddingProvider, error) {
	if cfg.Environment == "development" {
		slog.Info("[BOOT] using stub embedding provider", "environment", cfg.Environment)
		return stub.NewEmbeddingProvider(cfg.EmbedDim), nil
	}
	return vertexai.NewEmbeddingProvider(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel, cfg.EmbedMaxRetries)
}

func generationProvider(ctx context.Context, cfg *config.Config) (service.GenerationProvider, error) {
	if cfg.Environment == "development" {
		slog.Info("[BOOT] using stub generation provider", "environment", cfg.Environment)
		return stub.NewGenerationProvider(), nil
	}
	return vertexai.NewGenerationProvider(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel, cfg.GenMaxRetries)
}

// buildDependencies wires the full dependency graph: config -> pool ->
// repositories -> providers (optionally cache-wrapped) -> services ->
// feedback processor -> orchestrator -> router dependencies.
func buildDependencies(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*router.Dependencies, func(), error) {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("buildDependencies: %w", err)
	}
	closeFns := []func(){func() { pool.Close() }}
	cleanup := func() {
		for i := len(closeFns) - 1; i >= 0; i-- {
			closeFns[i]()
		}
	}

	chunkRepo := repository.NewChunkRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	workflowRepo := repository.NewWorkflowMemoryRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)

	embedProvider, err := embeddingProvider(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("buildDependencies: embedding provider: %w", err)
	}
	genProvider, err := generationProvider(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("buildDependencies: generation provider: %w", err)
	}

	embedderSvc := service.NewEmbedderService(embedProvider, cfg.EmbedDim)
	generatorSvc := service.NewGeneratorService(genProvider)

	var embedder orchestrator.Embedder = embedderSvc
	var candidateFetcher service.CandidateFetcher = chunkRepo

	if cfg.RedisAddr != "" {
		slog.Info("[BOOT] wiring Redis-backed caches", "addr", cfg.RedisAddr)
		redisEmb, err := cache.NewRedisEmbeddingCache(ctx, cfg.RedisAddr, cache.DefaultEmbeddingTTL())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("buildDependencies: redis embedding cache: %w", err)
		}
		closeFns = append(closeFns, func() { redisEmb.Close() })
		embedder = cache.NewCachedEmbedderRedis(embedderSvc, redisEmb)

		redisCand, err := cache.NewRedisCandidateCache(ctx, cfg.RedisAddr, cache.DefaultCandidateTTL(), chunkRepo)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("buildDependencies: redis candidate cache: %w", err)
		}
		closeFns = append(closeFns, func() { redisCand.Close() })
		candidateFetcher = redisCand
	} else {
		slog.Info("[BOOT] wiring in-process caches (no REDIS_ADDR set)")
		memEmb := cache.NewEmbeddingCache(cache.DefaultEmbeddingTTL())
		closeFns = append(closeFns, func() { memEmb.Stop() })
		embedder = cache.NewCachedEmbedder(embedderSvc, memEmb)

		memCand := cache.NewCandidateCache(candidateFetcher, cache.DefaultCandidateTTL())
		closeFns = append(closeFns, func() { memCand.Stop() })
		candidateFetcher = memCand
	}

	retrieverSvc := service.NewRetrieverService(candidateFetcher, cfg.Beta)
	chunkStoreSvc := service.NewChunkStoreService(chunkRepo)
	sessionSvc := service.NewSessionService(sessionRepo)
	statsSvc := service.NewStatsService(statsRepo)
	workflowSvc := service.NewWorkflowMemoryService(workflowRepo, cfg.WorkflowTopM, cfg.MinMemorySim)

	feedbackTxRunner := repository.NewFeedbackTxRunner(pool)
	feedbackProc := feedback.New(sessionSvc, chunkStoreSvc, feedbackTxRunner, embedderSvc, workflowSvc, cfg.Delta, cfg.WorkflowMemMaxRetries)

	orch := orchestrator.New(embedder, workflowSvc, retrieverSvc, generatorSvc, sessionSvc, cfg.QMax)

	metrics := middleware.NewMetrics(reg)

	askLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests:     60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	})
	closeFns = append(closeFns, func() { askLimiter.Stop() })

	deps := &router.Dependencies{
		DB:                 pool,
		FrontendURL:        cfg.FrontendURL,
		Version:            Version,
		Metrics:            metrics,
		MetricsReg:         reg,
		InternalAuthSecret: cfg.InternalAuthSecret,
		AdminAuthSecret:    cfg.InternalAuthSecret,

		Asker: orch,
		AskOpts: handler.AskOptions{
			K:               cfg.RetrieveK,
			WorkflowEnabled: cfg.WorkflowEnabled,
			WorkflowTopM:    cfg.WorkflowTopM,
			MinMemorySim:    cfg.MinMemorySim,
		},

		Sessions:          sessionSvc,
		SessionChunks:     chunkStoreSvc,
		FeedbackProcessor: feedbackProc,
		Chunks:            chunkStoreSvc,
		WorkflowEmbedder:  embedder,
		WorkflowMemories:  workflowSvc,
		Stats:             statsSvc,

		AdminMigrateDeps: handler.AdminMigrateDeps{
			RunSQL: func(ctx context.Context, sql string) error {
				_, err := pool.Exec(ctx, sql)
				return err
			},
			MigrationsDir: "migrations",
		},

		AskRateLimiter: askLimiter,
	}

	return deps, cleanup, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	reg := prometheus.NewRegistry()

	deps, cleanup, err := buildDependencies(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer cleanup()

	mux := router.New(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[BOOT] ragbox-backend starting", "version", Version, "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("[BOOT] received shutdown signal, shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("[BOOT] server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
