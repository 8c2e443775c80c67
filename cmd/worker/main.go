package main

import (
	"context"
	"time"

	"paperwhisper/internal/activities"
	"paperwhisper/internal/config"
	"paperwhisper/internal/embedding"
	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/storage"
	"paperwhisper/internal/vector"
	"paperwhisper/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal("dial temporal", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rec := metrics.New()
	mgr, err := providers.NewManager(cfg, providers.Options{
		Metrics: rec,
		Auditor: storage.NewLLMAuditRepo(db),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("providers", zap.Error(err))
	}
	vectors, err := vector.Open(cfg.VectorBackend, db.Pool, cfg.VectorCollection)
	if err != nil {
		logger.Fatal("vector store", zap.Error(err))
	}
	if !vector.Shared(cfg.VectorBackend) {
		logger.Warn("vector backend is process-local; api and worker will not share indexed papers",
			zap.String("vector_backend", cfg.VectorBackend))
	}

	a := activities.New(cfg, activities.Deps{
		Papers:       storage.NewPaperRepo(db),
		Documents:    storage.NewDocumentRepo(db),
		Summaries:    storage.NewSummaryRepo(db),
		Translations: storage.NewTranslationRepo(db),
		Embeddings: embedding.NewGateway(mgr.Embedder(), cfg.EmbedDim,
			embedding.WithRetryPolicy(cfg.RetryPolicy()),
			embedding.WithLogger(logger)),
		Vectors: vectors,
		Chat:    mgr.Chat(),
		Metrics: rec,
		Logger:  logger,
	})

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, a)

	logger.Info("paperwhisper worker started",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("queue", cfg.TemporalTaskQueue),
		zap.String("llm_providers", cfg.LLMProviders),
		zap.String("embed_provider", cfg.EmbedProvider))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
