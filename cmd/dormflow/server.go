package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/dormflow/agent"
	"github.com/BaSui01/dormflow/api/handlers"
	"github.com/BaSui01/dormflow/config"
	"github.com/BaSui01/dormflow/dorm"
	"github.com/BaSui01/dormflow/internal/metrics"
	"github.com/BaSui01/dormflow/internal/server"
	"github.com/BaSui01/dormflow/llm"
	"github.com/BaSui01/dormflow/llm/embedding"
	"github.com/BaSui01/dormflow/llm/rerank"
	"github.com/BaSui01/dormflow/router"
	"github.com/BaSui01/dormflow/session"
	"github.com/BaSui01/dormflow/tools"
	"github.com/BaSui01/dormflow/vectorstore"
)

// Server assembles the pipeline and serves it over HTTP.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *server.Manager

	collector     *metrics.Collector
	orchestrator  *agent.Orchestrator
	healthHandler *handlers.HealthHandler
	redisClient   *redis.Client
}

// NewServer wires every component from config. Construction performs
// network work only in semantic router mode, which embeds its sample
// routes up front.
func NewServer(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	s.collector = metrics.NewCollector(prometheus.NewRegistry())

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	embedKey := cfg.Embedding.APIKey
	if embedKey == "" {
		embedKey = cfg.LLM.APIKey
	}
	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     embedKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	var reranker rerank.Provider
	if cfg.Rerank.BaseURL != "" {
		reranker = rerank.NewJinaProvider(rerank.JinaConfig{
			APIKey:  cfg.Rerank.APIKey,
			BaseURL: cfg.Rerank.BaseURL,
			Model:   cfg.Rerank.Model,
			Timeout: cfg.Rerank.Timeout,
		})
	}

	store, err := vectorstore.NewQdrant(vectorstore.Config{
		BaseURL:    cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Dimensions: cfg.Qdrant.Dimensions,
		Distance:   cfg.Qdrant.Distance,
		Timeout:    cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	dormStore := dorm.NewStore(db, logger)
	webSearch := tools.NewWebSearch(tools.WebSearchConfig{
		APIKey:     cfg.Search.SerperAPIKey,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    cfg.Search.Timeout,
		RatePerSec: cfg.Search.RatePerSec,
	}, logger)
	registry := tools.NewRegistry(dormStore, webSearch, logger)

	retriever := agent.NewRetriever(embedder, store, reranker, agent.RetrievalConfig{
		TopK:            cfg.Retrieval.TopK,
		ContextBudget:   cfg.Retrieval.ContextBudget,
		MinPassageChars: cfg.Retrieval.MinPassageChars,
	}, logger)

	intent := router.NewIntentRouter(provider, cfg.LLM.Model, logger)

	var semantic *router.SemanticRouter
	semanticRoutes := make(map[string]router.Decision)
	if cfg.Router.Mode == string(agent.RouterModeSemantic) {
		routes := make([]router.Route, 0, len(cfg.Router.Routes))
		for _, rc := range cfg.Router.Routes {
			routes = append(routes, router.Route{Name: rc.Name, Samples: rc.Samples})
			if d, parsed := router.ParseDecision(rc.Decision); parsed {
				semanticRoutes[rc.Name] = d
			}
		}
		semantic, err = router.NewSemanticRouter(context.Background(), embedder, routes, logger)
		if err != nil {
			return nil, fmt.Errorf("semantic router: %w", err)
		}
	}

	var history *session.History
	reflectTurns := 0
	if cfg.Session.Enabled {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		history = session.NewHistory(s.redisClient, session.HistoryConfig{
			MaxTurns: cfg.Session.MaxTurns,
			TTL:      cfg.Session.TTL,
		}, logger)
		reflectTurns = cfg.Session.ReflectTurns
	}

	s.orchestrator = agent.NewOrchestrator(provider, intent, semantic, retriever, registry, history, s.collector, agent.Config{
		Model:          cfg.LLM.Model,
		RouterMode:     agent.RouterMode(cfg.Router.Mode),
		SemanticRoutes: semanticRoutes,
		HistoryTurns:   reflectTurns,
	}, logger)

	s.healthHandler = handlers.NewHealthHandler(Version, logger)
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "vectorstore",
		Fn: func(ctx context.Context) error {
			_, err := store.CollectionExists(ctx)
			return err
		},
	})
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "llm",
		Fn: func(ctx context.Context) error {
			_, err := provider.HealthCheck(ctx)
			return err
		},
	})
	if s.redisClient != nil {
		s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
			CheckName: "redis",
			Fn: func(ctx context.Context) error {
				return s.redisClient.Ping(ctx).Err()
			},
		})
	}

	s.manager = server.NewManager(s.routes(), server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return s, nil
}

func (s *Server) routes() http.Handler {
	answerHandler := handlers.NewAnswerHandler(s.orchestrator, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/answer", answerHandler.HandleAnswer)

	return Chain(mux, Recovery(s.logger), RequestLogger(s.logger))
}

// Start begins serving in the background.
func (s *Server) Start() error {
	if err := s.manager.Start(); err != nil {
		return err
	}
	s.logger.Info("Server started", zap.String("addr", s.manager.Addr()))
	return nil
}

// WaitForShutdown blocks until a signal or serve error, then closes
// auxiliary clients.
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
