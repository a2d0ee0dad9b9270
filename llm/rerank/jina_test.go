package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestReranker(t *testing.T, handler http.HandlerFunc) *JinaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewJinaProvider(JinaConfig{APIKey: "test-key", BaseURL: srv.URL})
}

func TestJinaRerank(t *testing.T) {
	var gotBody jinaRequest
	p := newTestReranker(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rerank", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{
			"model": "jina-reranker-v2-base-multilingual",
			"results": [
				{"index": 2, "relevance_score": 0.91},
				{"index": 0, "relevance_score": 0.42},
				{"index": 1, "relevance_score": 0.13}
			]
		}`))
	})

	results, err := p.RerankSimple(context.Background(), "dorm rules", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, gotBody.Documents)
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, 0.91, results[0].RelevanceScore)
}

func TestJinaRerankSortsUnorderedServerReply(t *testing.T) {
	p := newTestReranker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"model": "m",
			"results": [
				{"index": 0, "relevance_score": 0.1},
				{"index": 1, "relevance_score": 0.9},
				{"index": 2, "relevance_score": 0.5}
			]
		}`))
	})

	results, err := p.RerankSimple(context.Background(), "q", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
}

func TestJinaRerankServerError(t *testing.T) {
	p := newTestReranker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := p.RerankSimple(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

// Whatever scores the server hands back, the client must return a
// permutation of the input indices in non-increasing score order.
func TestJinaRerankOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = rapid.Float64Range(0, 1).Draw(t, fmt.Sprintf("score%d", i))
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			type wireResult struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}
			out := struct {
				Model   string       `json:"model"`
				Results []wireResult `json:"results"`
			}{Model: "m"}
			for i, s := range scores {
				out.Results = append(out.Results, wireResult{Index: i, RelevanceScore: s})
			}
			json.NewEncoder(w).Encode(out)
		}))
		defer srv.Close()

		p := NewJinaProvider(JinaConfig{BaseURL: srv.URL})
		docs := make([]string, n)
		for i := range docs {
			docs[i] = fmt.Sprintf("doc%d", i)
		}

		results, err := p.RerankSimple(context.Background(), "q", docs, n)
		if err != nil {
			t.Fatalf("rerank failed: %v", err)
		}
		if len(results) != n {
			t.Fatalf("expected %d results, got %d", n, len(results))
		}

		seen := make(map[int]bool, n)
		for i, r := range results {
			if r.Index < 0 || r.Index >= n || seen[r.Index] {
				t.Fatalf("result %d has invalid or duplicate index %d", i, r.Index)
			}
			seen[r.Index] = true
			if i > 0 && results[i-1].RelevanceScore < r.RelevanceScore {
				t.Fatalf("scores not non-increasing at %d", i)
			}
		}
	})
}
