package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/dormflow/internal/metrics"
	"github.com/BaSui01/dormflow/llm"
	"github.com/BaSui01/dormflow/router"
	"github.com/BaSui01/dormflow/session"
	"github.com/BaSui01/dormflow/tools"
)

// Fallback answers keep the response non-empty when a branch fails.
const (
	fallbackRAG      = "Xin lỗi, tôi không thể truy xuất thông tin từ cơ sở tri thức."
	fallbackDatabase = "Xin lỗi, có lỗi khi truy cập cơ sở dữ liệu. Vui lòng kiểm tra kết nối MySQL."
	fallbackWeb      = "Xin lỗi, không thể tìm kiếm thông tin trên web."
)

const ragPromptTemplate = `You are a helpful RAG assistant. Answer the question based on the provided context.

Context:
%s

Question: %s

Provide a clear and concise answer in Vietnamese.`

const dbSystemPrompt = `You are a dormitory management assistant. Use the available tools to:
- List available rooms
- Add students to rooms
- Get student information
- Get room information
- Remove students

Always call the appropriate tool based on the user's request. Respond in Vietnamese.`

const dbFinalPromptTemplate = `Based on the tool execution results, provide a clear answer in Vietnamese.

Tool Results:
%s

User Question: %s

Provide a natural, conversational response.`

const webSystemPrompt = `You are a web search assistant. Use the web_search tool to find current information.
After getting search results, synthesize them into a clear answer in Vietnamese.`

const webFinalPromptTemplate = `Based on the web search results, answer the question in Vietnamese.

Search Results:
%s

Question: %s

Provide a clear, informative answer.`

const reflectPromptTemplate = `Rewrite the latest user question as a standalone question, resolving any references to the earlier conversation. Keep the original language. Respond with ONLY the rewritten question.

Conversation:
%s

Latest question: %s`

// RouterMode selects how questions are classified.
type RouterMode string

const (
	// RouterModeIntent classifies with a single LLM call.
	RouterModeIntent RouterMode = "intent"
	// RouterModeSemantic classifies by embedding similarity against
	// configured sample routes.
	RouterModeSemantic RouterMode = "semantic"
)

// Config tunes the orchestrator.
type Config struct {
	Model      string
	RouterMode RouterMode
	// SemanticRoutes maps semantic route names to decisions; unmapped
	// names fall through to retrieval.
	SemanticRoutes map[string]router.Decision
	// HistoryTurns is how many prior turns feed question reflection.
	// Zero disables reflection even when history is wired.
	HistoryTurns int
}

// Orchestrator runs the full question pipeline. Exactly one branch
// executes per question, and every run yields a non-empty answer.
type Orchestrator struct {
	provider  llm.Provider
	intent    *router.IntentRouter
	semantic  *router.SemanticRouter
	retriever *Retriever
	registry  *tools.Registry
	history   *session.History
	collector *metrics.Collector
	cfg       Config
	logger    *zap.Logger
}

// NewOrchestrator wires the pipeline. semantic, history and collector
// are optional; intent routing is the default mode.
func NewOrchestrator(
	provider llm.Provider,
	intent *router.IntentRouter,
	semantic *router.SemanticRouter,
	retriever *Retriever,
	registry *tools.Registry,
	history *session.History,
	collector *metrics.Collector,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.RouterMode == "" {
		cfg.RouterMode = RouterModeIntent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		provider:  provider,
		intent:    intent,
		semantic:  semantic,
		retriever: retriever,
		registry:  registry,
		history:   history,
		collector: collector,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer runs one question through route-then-branch and returns the
// outcome. sessionID may be empty; history is then skipped.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, question string) Result {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{OK: false, Error: "Empty question"}
	}

	start := time.Now()

	// The rewritten standalone question drives routing, retrieval, and
	// the branch prompts; history keeps the question as asked.
	effective := o.reflect(ctx, sessionID, question)
	state := newState(effective)

	state.Route = o.route(ctx, effective)
	state.Phase = PhaseRouted
	state.Messages = []llm.Message{{Role: llm.RoleUser, Content: effective}}
	o.logger.Info("question routed",
		zap.String("route", string(state.Route)),
		zap.String("session_id", sessionID))

	switch state.Route {
	case router.DecisionDatabase:
		o.runDatabase(ctx, state)
		state.Phase = PhaseDBDone
	case router.DecisionWebSearch:
		o.runWebSearch(ctx, state)
		state.Phase = PhaseWebDone
	default:
		o.runRAG(ctx, state)
		state.Phase = PhaseRAGDone
	}
	state.Phase = PhaseEnd

	o.collector.ObserveQuery(string(state.Route), state.Err == "", time.Since(start))
	o.remember(ctx, sessionID, question, state)
	return state.result()
}

// route classifies the question, failing open to retrieval when the
// classifier itself is unreachable.
func (o *Orchestrator) route(ctx context.Context, question string) router.Decision {
	if o.cfg.RouterMode == RouterModeSemantic && o.semantic != nil {
		score, name, err := o.semantic.Guide(ctx, question)
		if err != nil {
			o.logger.Warn("semantic routing failed, defaulting to retrieval", zap.Error(err))
			return router.DecisionRAG
		}
		decision, okMapped := o.cfg.SemanticRoutes[name]
		if !okMapped {
			decision = router.DecisionRAG
		}
		o.logger.Debug("semantic route",
			zap.String("route", name),
			zap.Float64("score", score))
		return decision
	}

	decision, err := o.intent.Classify(ctx, question)
	if err != nil {
		o.logger.Warn("intent routing failed, defaulting to retrieval", zap.Error(err))
		return router.DecisionRAG
	}
	return decision
}

// reflect rewrites a follow-up question into a standalone one using
// recent history. Any failure, or no history, keeps the original.
func (o *Orchestrator) reflect(ctx context.Context, sessionID, question string) string {
	if o.history == nil || sessionID == "" || o.cfg.HistoryTurns <= 0 {
		return question
	}
	turns, err := o.history.Recent(ctx, sessionID, o.cfg.HistoryTurns)
	if err != nil {
		o.logger.Warn("history load failed, skipping reflection", zap.Error(err))
		return question
	}
	if len(turns) == 0 {
		return question
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.cfg.Model,
		Messages: []llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(reflectPromptTemplate, b.String(), question),
		}},
		Temperature: 0,
	})
	if err != nil {
		o.logger.Warn("reflection failed, using original question", zap.Error(err))
		return question
	}
	rewritten := strings.TrimSpace(resp.FirstText())
	if rewritten == "" {
		return question
	}
	return rewritten
}

func (o *Orchestrator) runRAG(ctx context.Context, state *State) {
	stageStart := time.Now()
	passages, contextText, err := o.retriever.Retrieve(ctx, state.Question)
	o.collector.ObserveStage("retrieve", time.Since(stageStart))
	if err != nil {
		o.fail(state, fallbackRAG, "RAG error: %v", err)
		return
	}
	state.Context = contextText
	o.logger.Debug("retrieval done",
		zap.Int("passages", len(passages)),
		zap.Int("context_chars", len(contextText)))

	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.cfg.Model,
		Messages: []llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(ragPromptTemplate, contextText, state.Question),
		}},
		Temperature: 0,
	})
	if err != nil {
		o.fail(state, fallbackRAG, "RAG error: %v", err)
		return
	}
	o.finish(state, resp.FirstText(), fallbackRAG)
}

func (o *Orchestrator) runDatabase(ctx context.Context, state *State) {
	if !o.provider.SupportsNativeFunctionCalling() {
		o.fail(state, fallbackDatabase, "Database error: provider %s does not support tool calling", o.provider.Name())
		return
	}
	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: dbSystemPrompt}}, state.Messages...)
	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Tools:       o.registry.DatabaseSchemas(),
		Temperature: 0,
	})
	if err != nil {
		o.fail(state, fallbackDatabase, "Database error: %v", err)
		return
	}

	calls := resp.FirstToolCalls()
	if len(calls) == 0 {
		o.finish(state, resp.FirstText(), fallbackDatabase)
		return
	}

	results := o.dispatchAll(ctx, calls)
	resultText, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		o.fail(state, fallbackDatabase, "Database error: %v", err)
		return
	}

	final, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.cfg.Model,
		Messages: []llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(dbFinalPromptTemplate, resultText, state.Question),
		}},
		Temperature: 0,
	})
	if err != nil {
		o.fail(state, fallbackDatabase, "Database error: %v", err)
		return
	}
	o.finish(state, final.FirstText(), fallbackDatabase)
}

func (o *Orchestrator) runWebSearch(ctx context.Context, state *State) {
	if !o.provider.SupportsNativeFunctionCalling() {
		o.fail(state, fallbackWeb, "Web search error: provider %s does not support tool calling", o.provider.Name())
		return
	}
	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: webSystemPrompt}}, state.Messages...)
	resp, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Tools: []llm.ToolSchema{{
			Name:        tools.ToolWebSearch,
			Description: "Search the web using Google Search for current information.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`),
		}},
		Temperature: 0,
	})
	if err != nil {
		o.fail(state, fallbackWeb, "Web search error: %v", err)
		return
	}

	calls := resp.FirstToolCalls()
	if len(calls) == 0 {
		o.finish(state, resp.FirstText(), fallbackWeb)
		return
	}

	var blocks []string
	for _, call := range calls {
		if call.Name != tools.ToolWebSearch {
			continue
		}
		res := o.registry.Dispatch(ctx, tools.ToolWebSearch, call.Arguments)
		if text, okStr := res["results"].(string); okStr {
			blocks = append(blocks, text)
		} else if msg, okStr := res["error"].(string); okStr {
			blocks = append(blocks, msg)
		}
	}

	final, err := o.provider.Completion(ctx, &llm.ChatRequest{
		Model: o.cfg.Model,
		Messages: []llm.Message{{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf(webFinalPromptTemplate, strings.Join(blocks, "\n\n"), state.Question),
		}},
		Temperature: 0,
	})
	if err != nil {
		o.fail(state, fallbackWeb, "Web search error: %v", err)
		return
	}
	o.finish(state, final.FirstText(), fallbackWeb)
}

// dispatchAll runs tool calls concurrently and returns results in call
// order. Dispatch never errors; failures surface as ok:false entries.
func (o *Orchestrator) dispatchAll(ctx context.Context, calls []llm.ToolCall) []tools.Result {
	results := make([]tools.Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.registry.Dispatch(gctx, call.Name, call.Arguments)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) fail(state *State, fallback, format string, args ...any) {
	state.Err = fmt.Sprintf(format, args...)
	state.Answer = fallback
	o.collector.ObserveFailure(string(state.Route))
	o.logger.Error("branch failed",
		zap.String("route", string(state.Route)),
		zap.String("error", state.Err))
}

// finish records the branch answer, substituting the branch fallback
// when the model returned nothing.
func (o *Orchestrator) finish(state *State, answer, fallback string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = fallback
	}
	state.Answer = answer
	state.Messages = append(state.Messages, llm.Message{Role: llm.RoleAssistant, Content: answer})
}

func (o *Orchestrator) remember(ctx context.Context, sessionID, question string, state *State) {
	if o.history == nil || sessionID == "" {
		return
	}
	err := o.history.Append(ctx, sessionID, session.Turn{
		Question: question,
		Answer:   state.Answer,
		Route:    string(state.Route),
	})
	if err != nil {
		o.logger.Warn("history append failed", zap.Error(err))
	}
}
