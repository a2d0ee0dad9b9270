// Package rerank provides the second-pass relevance scoring interface used
// after vector retrieval. The pipeline treats reranker scores as the final
// ordering signal; vector similarity is only the first-pass filter.
package rerank

import "context"

// Document is a candidate passage to score.
type Document struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// Request asks a provider to score documents against a query.
type Request struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	Model     string     `json:"model,omitempty"`
	TopN      int        `json:"top_n,omitempty"`
}

// Result is a single scored document. Index is the position in the input
// slice, so callers can join scores back to their own records.
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Response is the provider's reply, results sorted by descending score.
type Response struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Results  []Result `json:"results"`
}

// Provider is the unified reranker adapter.
type Provider interface {
	// Rerank scores documents against the query and returns results in
	// descending score order.
	Rerank(ctx context.Context, req *Request) (*Response, error)

	// RerankSimple is a convenience method for plain string passages.
	RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]Result, error)

	// Name returns the provider name.
	Name() string
}
