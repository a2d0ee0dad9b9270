// Package vectorstore provides the Qdrant-backed vector index used by the
// retrieval stage. It speaks Qdrant's REST API directly over net/http; the
// pipeline only depends on the small Store interface so tests can swap a
// fake in.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScoredPoint is one similarity-search hit: the raw similarity score plus
// the opaque payload stored alongside the vector.
type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Store is the vector-index surface the pipeline consumes.
type Store interface {
	EnsureCollection(ctx context.Context) error
	CollectionExists(ctx context.Context) (bool, error)
	Insert(ctx context.Context, docID string, vector []float64, payload map[string]any) error
	Search(ctx context.Context, vector []float64, topK int) ([]ScoredPoint, error)
	BatchSearch(ctx context.Context, vectors [][]float64, topK int) ([][]ScoredPoint, error)
	DeleteByDocID(ctx context.Context, docID string) error
	DeleteAll(ctx context.Context) error
}

// DimensionError reports an embedding whose length does not match the
// collection's configured dimensionality. It is a configuration error and
// is raised before any network call.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding size must be %d, got %d", e.Want, e.Got)
}

// ErrDuplicateDoc reports an insert for a logical document id that already
// has a point in the collection.
type ErrDuplicateDoc struct {
	DocID string
}

func (e *ErrDuplicateDoc) Error() string {
	return fmt.Sprintf("document with id %s already exists", e.DocID)
}

// Config configures the Qdrant client.
type Config struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Collection string        `json:"collection" yaml:"collection"`
	Dimensions int           `json:"dimensions" yaml:"dimensions"`
	Distance   string        `json:"distance,omitempty" yaml:"distance,omitempty"` // Cosine, Dot, Euclid
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Qdrant is the REST client. One instance is shared across queries; the
// underlying http.Client pools connections.
type Qdrant struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewQdrant creates a Qdrant client. Dimensions must be set; it is checked
// against every vector before it leaves the process.
func NewQdrant(cfg Config, logger *zap.Logger) (*Qdrant, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch strings.ToLower(cfg.Distance) {
	case "", "cosine":
		cfg.Distance = "Cosine"
	case "dot", "dotproduct":
		cfg.Distance = "Dot"
	case "euclid", "euclidean", "l2":
		cfg.Distance = "Euclid"
	default:
		return nil, fmt.Errorf("qdrant: unknown distance metric %q", cfg.Distance)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Qdrant{
		cfg:    Config{BaseURL: strings.TrimRight(cfg.BaseURL, "/"), APIKey: cfg.APIKey, Collection: cfg.Collection, Dimensions: cfg.Dimensions, Distance: cfg.Distance, Timeout: timeout},
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

func (q *Qdrant) validate(vector []float64) error {
	if len(vector) != q.cfg.Dimensions {
		return &DimensionError{Want: q.cfg.Dimensions, Got: len(vector)}
	}
	return nil
}

// CollectionExists reports whether the configured collection exists.
func (q *Qdrant) CollectionExists(ctx context.Context) (bool, error) {
	var out struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/exists", q.cfg.Collection), nil, &out)
	if err != nil {
		return false, err
	}
	return out.Result.Exists, nil
}

// EnsureCollection creates the collection when missing.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	exists, err := q.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.cfg.Dimensions,
			"distance": q.cfg.Distance,
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.cfg.Collection, body, nil); err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	q.logger.Info("created qdrant collection",
		zap.String("collection", q.cfg.Collection),
		zap.Int("dimensions", q.cfg.Dimensions),
		zap.String("distance", q.cfg.Distance))
	return nil
}

// Insert upserts one point for a logical document id. Inserting a doc_id
// that already has a point is rejected with ErrDuplicateDoc; callers delete
// first when they mean to replace.
func (q *Qdrant) Insert(ctx context.Context, docID string, vector []float64, payload map[string]any) error {
	if err := q.validate(vector); err != nil {
		return err
	}

	existing, err := q.findPointByDocID(ctx, docID)
	if err != nil {
		return err
	}
	if existing != "" {
		return &ErrDuplicateDoc{DocID: docID}
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["doc_id"] = docID

	body := map[string]any{
		"points": []map[string]any{{
			"id":      uuid.NewString(),
			"vector":  vector,
			"payload": payload,
		}},
	}
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.cfg.Collection), body, nil); err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Search returns the topK nearest points for the query vector, with raw
// similarity scores and payloads.
func (q *Qdrant) Search(ctx context.Context, vector []float64, topK int) ([]ScoredPoint, error) {
	if err := q.validate(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("qdrant: top_k must be positive, got %d", topK)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var out struct {
		Result []qdrantHit `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.cfg.Collection), body, &out); err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	return hitsToPoints(out.Result), nil
}

// BatchSearch runs one search per query vector in a single round trip.
func (q *Qdrant) BatchSearch(ctx context.Context, vectors [][]float64, topK int) ([][]ScoredPoint, error) {
	for _, v := range vectors {
		if err := q.validate(v); err != nil {
			return nil, err
		}
	}
	if topK <= 0 {
		return nil, fmt.Errorf("qdrant: top_k must be positive, got %d", topK)
	}

	searches := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		searches[i] = map[string]any{
			"vector":       v,
			"limit":        topK,
			"with_payload": true,
		}
	}
	var out struct {
		Result [][]qdrantHit `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search/batch", q.cfg.Collection), map[string]any{"searches": searches}, &out); err != nil {
		return nil, fmt.Errorf("qdrant: batch search: %w", err)
	}

	groups := make([][]ScoredPoint, len(out.Result))
	for i, g := range out.Result {
		groups[i] = hitsToPoints(g)
	}
	return groups, nil
}

// DeleteByDocID removes the point stored for a logical document id.
func (q *Qdrant) DeleteByDocID(ctx context.Context, docID string) error {
	pointID, err := q.findPointByDocID(ctx, docID)
	if err != nil {
		return err
	}
	if pointID == "" {
		return fmt.Errorf("document with id %s not found", docID)
	}
	body := map[string]any{"points": []string{pointID}}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.cfg.Collection), body, nil); err != nil {
		return fmt.Errorf("qdrant: delete point: %w", err)
	}
	return nil
}

// DeleteAll drops the collection and recreates it empty.
func (q *Qdrant) DeleteAll(ctx context.Context) error {
	exists, err := q.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("collection %s does not exist", q.cfg.Collection)
	}
	if err := q.do(ctx, http.MethodDelete, "/collections/"+q.cfg.Collection, nil, nil); err != nil {
		return fmt.Errorf("qdrant: delete collection: %w", err)
	}
	return q.EnsureCollection(ctx)
}

// findPointByDocID scrolls the collection filtered on the doc_id payload
// field and returns the point id of the first match, or "".
func (q *Qdrant) findPointByDocID(ctx context.Context, docID string) (string, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{{
				"key":   "doc_id",
				"match": map[string]any{"value": docID},
			}},
		},
		"limit":        1,
		"with_payload": false,
	}
	var out struct {
		Result struct {
			Points []struct {
				ID any `json:"id"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", q.cfg.Collection), body, &out); err != nil {
		return "", fmt.Errorf("qdrant: scroll: %w", err)
	}
	if len(out.Result.Points) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%v", out.Result.Points[0].ID), nil
}

type qdrantHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func hitsToPoints(hits []qdrantHit) []ScoredPoint {
	points := make([]ScoredPoint, len(hits))
	for i, h := range hits {
		payload := h.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		points[i] = ScoredPoint{
			ID:      fmt.Sprintf("%v", h.ID),
			Score:   h.Score,
			Payload: payload,
		}
	}
	return points
}

// do executes one REST call against Qdrant and decodes the response into
// out when non-nil.
func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s: status=%d body=%s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	return nil
}
