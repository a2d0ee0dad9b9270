package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/dormflow/agent"
	"github.com/BaSui01/dormflow/llm"
)

// AnswerRequest is the body of POST /api/v1/answer.
type AnswerRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// AnswerHandler runs questions through the orchestrator.
type AnswerHandler struct {
	orchestrator *agent.Orchestrator
	logger       *zap.Logger
}

// NewAnswerHandler wires the endpoint.
func NewAnswerHandler(orchestrator *agent.Orchestrator, logger *zap.Logger) *AnswerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerHandler{orchestrator: orchestrator, logger: logger}
}

// HandleAnswer accepts a question and returns the pipeline result. A
// failed branch still answers with HTTP 200; the body carries ok=false
// and the error alongside the fallback answer.
func (h *AnswerHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, llm.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, llm.ErrInvalidRequest, "invalid JSON body", h.logger)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		WriteJSON(w, http.StatusBadRequest, agent.Result{OK: false, Error: "Empty question"})
		return
	}

	result := h.orchestrator.Answer(r.Context(), req.SessionID, req.Question)
	WriteJSON(w, http.StatusOK, result)
}
