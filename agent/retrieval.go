package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/dormflow/llm/embedding"
	"github.com/BaSui01/dormflow/llm/rerank"
	"github.com/BaSui01/dormflow/vectorstore"
)

// RetrievalConfig bounds the retrieve-rerank-assemble stage.
type RetrievalConfig struct {
	// TopK is how many passages to pull from the vector store.
	TopK int
	// ContextBudget caps the assembled context in characters.
	ContextBudget int
	// MinPassageChars is the floor below which a passage is dropped
	// instead of truncated further.
	MinPassageChars int
}

// DefaultRetrievalConfig retrieves 5 passages into a 4000-character
// context window.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{TopK: 5, ContextBudget: 4000, MinPassageChars: 200}
}

// Passage is one retrieved chunk after optional reranking. Position is
// 1-based and reflects final ordering.
type Passage struct {
	Position int
	Score    float64
	Content  string
	DocID    string
}

// Retriever embeds the query, searches the vector store, reranks when a
// reranker is configured, and assembles the passages into a bounded
// context string.
type Retriever struct {
	embedder embedding.Provider
	store    vectorstore.Store
	reranker rerank.Provider
	cfg      RetrievalConfig
	logger   *zap.Logger
}

// NewRetriever wires the retrieval stage. reranker may be nil; store
// order is then kept as-is.
func NewRetriever(embedder embedding.Provider, store vectorstore.Store, reranker rerank.Provider, cfg RetrievalConfig, logger *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 4000
	}
	if cfg.MinPassageChars <= 0 {
		cfg.MinPassageChars = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, reranker: reranker, cfg: cfg, logger: logger}
}

// Retrieve runs the full stage for one query. The query is embedded
// exactly once. An empty store yields empty passages and context, not
// an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Passage, string, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("embed query: %w", err)
	}

	points, err := r.store.Search(ctx, vec, r.cfg.TopK)
	if err != nil {
		return nil, "", fmt.Errorf("vector search: %w", err)
	}
	if len(points) == 0 {
		return nil, "", nil
	}

	passages := make([]Passage, 0, len(points))
	for _, p := range points {
		content := payloadContent(p.Payload)
		if content == "" {
			continue
		}
		docID, _ := p.Payload["doc_id"].(string)
		passages = append(passages, Passage{Score: p.Score, Content: content, DocID: docID})
	}

	if r.reranker != nil && len(passages) > 1 {
		passages, err = r.rerankPassages(ctx, query, passages)
		if err != nil {
			// Reranking is an enhancement; fall back to store order.
			r.logger.Warn("rerank failed, keeping retrieval order", zap.Error(err))
		}
	}
	for i := range passages {
		passages[i].Position = i + 1
	}

	return passages, r.assemble(passages), nil
}

func (r *Retriever) rerankPassages(ctx context.Context, query string, passages []Passage) ([]Passage, error) {
	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Content
	}
	results, err := r.reranker.RerankSimple(ctx, query, docs, len(docs))
	if err != nil {
		return passages, err
	}
	reordered := make([]Passage, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(passages) {
			continue
		}
		p := passages[res.Index]
		p.Score = res.RelevanceScore
		reordered = append(reordered, p)
	}
	if len(reordered) == 0 {
		return passages, nil
	}
	return reordered, nil
}

// assemble renders passages as numbered blocks under the character
// budget. A passage that does not fit whole is truncated rather than
// dropped, unless truncation would leave less than MinPassageChars.
func (r *Retriever) assemble(passages []Passage) string {
	var b strings.Builder
	for _, p := range passages {
		header := fmt.Sprintf("[Document %d] (Score: %.3f):\n", p.Position, p.Score)
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		remaining := r.cfg.ContextBudget - b.Len() - len(sep) - len(header)
		if remaining <= 0 {
			break
		}
		content := p.Content
		if len(content) > remaining {
			if remaining < r.cfg.MinPassageChars {
				break
			}
			// Back off to a rune boundary so a multibyte character is
			// never split mid-sequence.
			cut := remaining
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		b.WriteString(sep)
		b.WriteString(header)
		b.WriteString(content)
	}
	return b.String()
}

// payloadContent reads the text of a stored point, accepting both the
// "content" and legacy "context" payload keys.
func payloadContent(payload map[string]any) string {
	if s, ok := payload["content"].(string); ok && s != "" {
		return s
	}
	if s, ok := payload["context"].(string); ok {
		return s
	}
	return ""
}
