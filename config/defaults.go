package config

import "time"

// DefaultConfig returns the default configuration for a local
// deployment: MySQL, Redis and Qdrant on localhost, intent routing,
// retrieval tuned for a 4000-character context.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Qdrant:    DefaultQdrantConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Rerank:    DefaultRerankConfig(),
		Search:    DefaultSearchConfig(),
		Router:    DefaultRouterConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Session:   DefaultSessionConfig(),
		Log:       DefaultLogConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "mysql",
		Host:            "localhost",
		Port:            3306,
		User:            "dormflow",
		Password:        "",
		Name:            "dormitory",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "documents",
		Dimensions: 1536,
		Distance:   "Cosine",
		Timeout:    15 * time.Second,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL: "https://api.openai.com",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultRerankConfig leaves the reranker disabled; retrieval then
// keeps vector-store order.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Model:   "BAAI/bge-reranker-v2-m3",
		Timeout: 15 * time.Second,
	}
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxResults: 5,
		Timeout:    15 * time.Second,
		RatePerSec: 2,
	}
}

// DefaultRouterConfig uses the LLM intent classifier. The sample
// routes below only take effect when mode is switched to "semantic".
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Mode: "intent",
		Routes: []SemanticRouteConfig{
			{
				Name:     "dormitory",
				Decision: "database",
				Samples: []string{
					"Phòng A100 còn chỗ không?",
					"Thêm sinh viên vào phòng B201",
					"Danh sách sinh viên trong phòng",
					"Which rooms still have free slots?",
				},
			},
			{
				Name:     "knowledge",
				Decision: "rag",
				Samples: []string{
					"Nội quy ký túc xá là gì?",
					"Giờ đóng cửa ký túc xá",
					"What are the dormitory regulations?",
					"Tell me about the campus facilities",
				},
			},
		},
	}
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            5,
		ContextBudget:   4000,
		MinPassageChars: 200,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Enabled:      false,
		MaxTurns:     10,
		TTL:          24 * time.Hour,
		ReflectTurns: 5,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
