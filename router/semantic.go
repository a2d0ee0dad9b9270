package router

import (
	"context"
	"fmt"
	"math"

	"github.com/BaSui01/dormflow/llm/embedding"
	"go.uber.org/zap"
)

// Route is a named category with sample utterances. A route claims a query
// when any single sample is close enough; one strong match beats many weak
// ones, so scoring uses the max similarity, not the mean.
type Route struct {
	Name    string
	Samples []string
}

// SemanticRouter classifies queries by cosine similarity against per-route
// sample embeddings. Samples are embedded once at construction and are
// read-only afterwards, so one router is safe to share across concurrent
// queries without locking.
type SemanticRouter struct {
	embedder embedding.Provider
	routes   []Route
	// normalized sample vectors, keyed by route name
	routeVectors map[string][][]float64
	logger       *zap.Logger
}

// NewSemanticRouter eagerly embeds every route's samples. A route with no
// samples is a configuration error: its maximum similarity is undefined.
func NewSemanticRouter(ctx context.Context, embedder embedding.Provider, routes []Route, logger *zap.Logger) (*SemanticRouter, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("semantic router requires at least one route")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vectors := make(map[string][][]float64, len(routes))
	for _, route := range routes {
		if len(route.Samples) == 0 {
			return nil, fmt.Errorf("route %q has no samples", route.Name)
		}
		embedded, err := embedder.EmbedDocuments(ctx, route.Samples)
		if err != nil {
			return nil, fmt.Errorf("failed to embed samples for route %q: %w", route.Name, err)
		}
		normalized := make([][]float64, len(embedded))
		for i, v := range embedded {
			normalized[i] = normalize(v)
		}
		vectors[route.Name] = normalized
	}

	logger.Info("semantic router ready", zap.Int("routes", len(routes)))
	return &SemanticRouter{
		embedder:     embedder,
		routes:       routes,
		routeVectors: vectors,
		logger:       logger,
	}, nil
}

// Routes returns the configured routes in evaluation order.
func (r *SemanticRouter) Routes() []Route { return r.routes }

// Guide returns the best-matching route for the query together with its
// score. Each route scores as the maximum cosine similarity between the
// query and that route's samples; the globally highest route wins, ties
// going to the route evaluated first.
func (r *SemanticRouter) Guide(ctx context.Context, query string) (float64, string, error) {
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return 0, "", fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec = normalize(queryVec)

	bestScore := math.Inf(-1)
	bestRoute := ""
	for _, route := range r.routes {
		score := math.Inf(-1)
		for _, sample := range r.routeVectors[route.Name] {
			if s := dot(sample, queryVec); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			bestRoute = route.Name
		}
	}

	r.logger.Debug("semantic route",
		zap.String("route", bestRoute),
		zap.Float64("score", bestScore))
	return bestScore, bestRoute, nil
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
