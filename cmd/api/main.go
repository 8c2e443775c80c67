package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"paperwhisper/internal/api"
	"paperwhisper/internal/config"
	"paperwhisper/internal/embedding"
	"paperwhisper/internal/logging"
	"paperwhisper/internal/metrics"
	"paperwhisper/internal/providers"
	"paperwhisper/internal/rag"
	"paperwhisper/internal/retrieval"
	"paperwhisper/internal/session"
	"paperwhisper/internal/storage"
	"paperwhisper/internal/vector"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(startCtx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(startCtx); err != nil {
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
	gateway := embedding.NewGateway(mgr.Embedder(), cfg.EmbedDim,
		embedding.WithRetryPolicy(cfg.RetryPolicy()),
		embedding.WithLogger(logger))

	vectors, err := vector.Open(cfg.VectorBackend, db.Pool, cfg.VectorCollection)
	if err != nil {
		logger.Fatal("vector store", zap.Error(err))
	}
	if !vector.Shared(cfg.VectorBackend) {
		logger.Warn("vector backend is process-local; api and worker will not share indexed papers",
			zap.String("vector_backend", cfg.VectorBackend))
	}
	if err := vectors.EnsureCollection(startCtx, gateway.Dimension()); err != nil {
		logger.Fatal("vector collection", zap.Error(err))
	}

	store, err := sessionStore(startCtx, cfg)
	if err != nil {
		logger.Fatal("session store", zap.Error(err))
	}
	sessions := session.NewManager(store, cfg.MaxHistoryPairs)

	retriever := retrieval.New(gateway, vectors, cfg.RetryPolicy(), rec, cfg.VectorBackend)
	engine := rag.NewEngine(retriever, sessions, mgr.Chat(), cfg.TopK, rec, logger)

	tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal("dial temporal", zap.Error(err))
	}
	defer tc.Close()

	srv := api.NewServer(cfg, api.Deps{
		Papers:       storage.NewPaperRepo(db),
		Summaries:    storage.NewSummaryRepo(db),
		Translations: storage.NewTranslationRepo(db),
		Vectors:      vectors,
		Sessions:     sessions,
		Engine:       engine,
		Workflows:    tc,
		Metrics:      rec,
		Logger:       logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	chain := make([]string, 0, len(mgr.LLMRefs()))
	for _, ref := range mgr.LLMRefs() {
		chain = append(chain, ref.Raw)
	}
	logger.Info("paperwhisper api listening",
		zap.String("addr", cfg.APIAddr),
		zap.Strings("llm_chain", chain),
		zap.String("embed_provider", cfg.EmbedProvider),
		zap.Int("embed_dim", gateway.Dimension()),
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("session_backend", cfg.SessionBackend))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}

func sessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	switch strings.ToLower(cfg.SessionBackend) {
	case "redis":
		rc := session.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return session.NewRedisStore(rc, cfg.SessionTTL), nil
	default:
		return session.NewMemoryStore(), nil
	}
}
