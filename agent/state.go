// Package agent orchestrates the answer pipeline: classify the
// question, run exactly one of the retrieval, database, or web-search
// branches, and return a final answer.
package agent

import (
	"github.com/BaSui01/dormflow/llm"
	"github.com/BaSui01/dormflow/router"
)

// Phase tracks pipeline progress. Transitions are linear: Start,
// Routed, exactly one branch-done phase, End.
type Phase string

const (
	PhaseStart   Phase = "START"
	PhaseRouted  Phase = "ROUTED"
	PhaseRAGDone Phase = "RAG_DONE"
	PhaseDBDone  Phase = "DB_DONE"
	PhaseWebDone Phase = "WEB_DONE"
	PhaseEnd     Phase = "END"
)

// State carries one question through the pipeline. A branch that fails
// still writes a fallback answer and records the error; Answer is never
// empty after PhaseEnd.
type State struct {
	Phase    Phase
	Question string
	Route    router.Decision
	Messages []llm.Message
	Context  string
	Answer   string
	Err      string
}

func newState(question string) *State {
	return &State{Phase: PhaseStart, Question: question}
}

// Result is the API-facing outcome of one pipeline run.
type Result struct {
	OK     bool   `json:"ok"`
	Route  string `json:"route"`
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

func (s *State) result() Result {
	return Result{
		OK:     s.Err == "",
		Route:  string(s.Route),
		Answer: s.Answer,
		Error:  s.Err,
	}
}
