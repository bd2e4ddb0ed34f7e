package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/raggate/api/handlers"
	"github.com/BaSui01/raggate/config"
	"github.com/BaSui01/raggate/internal/metrics"
	"github.com/BaSui01/raggate/internal/server"
	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/cache"
	"github.com/BaSui01/raggate/llm/factory"
	"github.com/BaSui01/raggate/llm/orchestrator"
	"github.com/BaSui01/raggate/llm/retry"
	"github.com/BaSui01/raggate/llm/tokenizer"
	"github.com/BaSui01/raggate/rag"
	"github.com/BaSui01/raggate/rag/store"
)

// Server assembles the full service: providers, orchestrators, the RAG
// pipeline and the HTTP surface.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *server.Manager
	rdb     *redis.Client

	cancelBackground context.CancelFunc
}

// NewServer wires all components from cfg. Construction makes no
// network calls; the first provider activity happens on first use.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	collector := metrics.NewCollector("raggate", prometheus.DefaultRegisterer)

	tokenizer.RegisterOpenAITokenizers()

	primary, err := factory.New(cfg.ProviderConfig(), logger)
	if err != nil {
		return nil, err
	}
	fallbacks := make([]llm.Provider, 0, len(cfg.LLM.Fallbacks))
	for _, fc := range cfg.FallbackProviderConfigs() {
		p, err := factory.New(fc, logger)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, p)
	}
	embedProvider, err := factory.New(cfg.EmbeddingProviderConfig(), logger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	policy := &retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialDelay:    cfg.Retry.InitialDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		Multiplier:      2.0,
		Jitter:          true,
		RateLimitFactor: 2.0,
	}

	completionOpts := []orchestrator.Option{
		orchestrator.WithFallbacks(fallbacks...),
		orchestrator.WithObserver(collector),
	}
	if cfg.Cache.Enabled {
		completionOpts = append(completionOpts,
			orchestrator.WithCache(cache.New(rdb, &cache.Config{TTL: cfg.Cache.TTL}, logger)))
	}
	completion := orchestrator.New(primary, orchestrator.Config{
		AttemptTimeout: cfg.LLM.Timeout,
		RetryPolicy:    policy,
	}, logger, completionOpts...)

	embedding := orchestrator.New(embedProvider, orchestrator.Config{
		AttemptTimeout: cfg.Embedding.Timeout,
		RetryPolicy:    policy,
	}, logger, orchestrator.WithObserver(collector))

	chunkStore := store.New(rdb, embedding, completion, store.Config{
		Model: cfg.LLM.Model,
	}, logger)

	chunker, err := rag.NewChunker(cfg.ChunkingConfig(),
		tokenizer.ForModelOrEstimator(cfg.Embedding.Model), logger)
	if err != nil {
		return nil, err
	}

	service := rag.NewService(chunker, embedding, chunkStore, chunkStore, rag.ServiceConfig{
		MaxConcurrentEmbeddings: cfg.Embedding.MaxConcurrent,
		EmbedBatchSize:          cfg.Embedding.BatchSize,
	}, collector, logger)

	backgroundCtx, cancel := context.WithCancel(context.Background())

	documentsHandler := handlers.NewDocumentsHandler(service, cfg.Server.MaxDocumentsPerRequest, cfg.Server.MaxDocumentBytes, logger)
	queryHandler := handlers.NewQueryHandler(service, logger)
	healthHandler := handlers.NewHealthHandler(logger,
		namedChecker{HealthChecker: completion, name: "llm"},
		namedChecker{HealthChecker: embedding, name: "embedding"},
		redisChecker{rdb: rdb},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/documents", documentsHandler.HandleInsert)
	mux.HandleFunc("/api/v1/query", queryHandler.HandleQuery)

	skipAuth := []string{"/health", "/ready", "/metrics"}
	handler := Chain(mux,
		Recovery(logger),
		RequestID(),
		RequestLogger(logger),
		MetricsMiddleware(collector),
		APIKeyAuth(cfg.Auth.APIKeys, skipAuth, logger),
		RateLimiter(backgroundCtx, cfg.Server.RateLimitPerMinute, logger),
	)

	manager := server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return &Server{
		cfg:              cfg,
		logger:           logger,
		manager:          manager,
		rdb:              rdb,
		cancelBackground: cancel,
	}, nil
}

// Start begins serving in the background.
func (s *Server) Start() error {
	return s.manager.Start()
}

// WaitForShutdown blocks until a signal or server failure, then cleans
// up.
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()
	s.cancelBackground()
	if err := s.rdb.Close(); err != nil {
		s.logger.Warn("closing redis client", zap.Error(err))
	}
}

// namedChecker gives a probe a stable name in the readiness report. The
// completion and embedding orchestrators may share a backend, so their
// provider names can collide.
type namedChecker struct {
	handlers.HealthChecker
	name string
}

func (c namedChecker) Name() string { return c.name }

// redisChecker adapts the Redis client to the health probe contract.
type redisChecker struct {
	rdb *redis.Client
}

func (c redisChecker) HealthCheck(ctx context.Context) *llm.HealthStatus {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	status := &llm.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Detail = err.Error()
	}
	return status
}

func (c redisChecker) Name() string { return "redis" }

// buildLogger constructs the process logger from the log section.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
