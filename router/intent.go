package router

import (
	"context"
	"fmt"

	"github.com/BaSui01/dormflow/llm"
	"go.uber.org/zap"
)

const intentPrompt = `Classify the following question into ONE category:
- 'database': Questions about dormitory rooms, students, bookings, or any database operations
- 'rag': Questions about general knowledge, documents, or information from knowledge base
- 'web_search': Questions requiring current information, news, or real-time data

Question: %s

Respond with ONLY one word: database, rag, or web_search`

// IntentRouter classifies questions with a single LLM call. A malformed
// reply falls open to DecisionRAG, the only path with no side effects;
// there is no retry.
type IntentRouter struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

func NewIntentRouter(provider llm.Provider, model string, logger *zap.Logger) *IntentRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentRouter{provider: provider, model: model, logger: logger}
}

// Classify returns the handling strategy for a question. The error is
// non-nil only when the LLM call itself fails; an unparseable reply is not
// an error, it is the documented default.
func (r *IntentRouter) Classify(ctx context.Context, question string) (Decision, error) {
	resp, err := r.provider.Completion(ctx, &llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(intentPrompt, question)},
		},
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		return "", fmt.Errorf("intent classification failed: %w", err)
	}

	raw := resp.FirstText()
	decision, ok := ParseDecision(raw)
	if !ok {
		r.logger.Warn("unrecognized route from model, defaulting to rag",
			zap.String("raw", raw))
		return DecisionRAG, nil
	}

	r.logger.Debug("routing decision", zap.String("route", string(decision)))
	return decision, nil
}
