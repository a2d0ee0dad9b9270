package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SearchUnavailableMessage is returned verbatim when no API key is
// configured, so the summarizer can tell the user instead of erroring.
const SearchUnavailableMessage = "Web search unavailable: SERPER_API_KEY not configured"

const serperEndpoint = "https://google.serper.dev/search"

// WebSearchConfig configures the Serper-backed search client.
type WebSearchConfig struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
	// RatePerSec caps outbound queries; zero disables limiting.
	RatePerSec float64
}

// DefaultWebSearchConfig returns sensible defaults (5 results, 15s
// timeout, 2 queries per second).
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		Endpoint:   serperEndpoint,
		MaxResults: 5,
		Timeout:    15 * time.Second,
		RatePerSec: 2,
	}
}

// WebSearch queries the Serper Google Search API and renders organic
// results as a plain-text block for the summarizer.
type WebSearch struct {
	cfg     WebSearchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWebSearch builds the client. An empty API key is allowed; the
// instance then reports Available() == false.
func NewWebSearch(cfg WebSearchConfig, logger *zap.Logger) *WebSearch {
	if cfg.Endpoint == "" {
		cfg.Endpoint = serperEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &WebSearch{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Available reports whether an API key is configured.
func (w *WebSearch) Available() bool { return w.cfg.APIKey != "" }

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperResponse struct {
	Organic []serperOrganic `json:"organic"`
}

// Search runs one query and returns a numbered text rendering of the
// organic results. It blocks on the rate limiter before dialing.
func (w *WebSearch) Search(ctx context.Context, query string) (string, error) {
	if !w.Available() {
		return "", fmt.Errorf("serper: %s", SearchUnavailableMessage)
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("serper: rate wait: %w", err)
		}
	}

	body, err := json.Marshal(serperRequest{Query: query, Num: w.cfg.MaxResults})
	if err != nil {
		return "", fmt.Errorf("serper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", w.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("serper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("serper: decode response: %w", err)
	}
	if len(parsed.Organic) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range parsed.Organic {
		if i >= w.cfg.MaxResults {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.Snippet, r.Link)
	}
	w.logger.Debug("web search done",
		zap.String("query", query),
		zap.Int("results", len(parsed.Organic)))
	return strings.TrimSpace(b.String()), nil
}
