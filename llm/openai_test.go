package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
}

func TestOpenAICompletion(t *testing.T) {
	var gotAuth string
	var gotBody oaRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"xin chào"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	assert.Equal(t, "xin chào", resp.FirstText())
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestOpenAICompletionToolCalls(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Tools, 1)
		assert.Equal(t, "function", body.Tools[0].Type)
		assert.Equal(t, "add_student", body.Tools[0].Function.Name)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-2",
			"model": "gpt-4o-mini",
			"choices": [{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant",
				"tool_calls":[{"id":"call_1","type":"function","function":{
					"name":"add_student",
					"arguments":"{\"mssv\":\"SV001\",\"room_id\":\"A100\"}"
				}}]
			}}]
		}`))
	})

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "add SV001 to A100"}},
		Tools: []ToolSchema{{
			Name:       "add_student",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	calls := resp.FirstToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "add_student", calls[0].Name)

	var args map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Arguments, &args))
	assert.Equal(t, "SV001", args["mssv"])
}

func TestOpenAICompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  ErrorCode
		retryable bool
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, ErrUnauthorized, false},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, ErrRateLimited, true},
		{"quota on 400", 400, `{"error":{"message":"You exceeded your current quota"}}`, ErrQuotaExceeded, false},
		{"plain bad request", 400, `{"error":{"message":"unknown field"}}`, ErrInvalidRequest, false},
		{"service unavailable", 503, `{"error":{"message":"down"}}`, ErrUpstreamError, true},
		{"model overloaded", 529, `{"error":{"message":"overloaded"}}`, ErrModelOverloaded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.Completion(context.Background(), &ChatRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
		})
	}
}

func TestOpenAIHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"structured", `{"error":{"message":"boom","type":"server_error"}}`, "boom (type: server_error)"},
		{"message only", `{"error":{"message":"boom"}}`, "boom"},
		{"plain text", "gateway exploded", "gateway exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadErrorMessage(strings.NewReader(tt.body))
			assert.Equal(t, tt.want, got)
		})
	}
}
