package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elevend0g/vicw/internal/model"
)

// QdrantVectorIndex implements VectorIndex (C2) over Qdrant's REST API. No repo in the retrieval
// pack imports an official Qdrant Go SDK, so this follows the teacher's
// src/memory/store/qdrant_store.go pattern of a raw net/http client against the REST surface —
// justified stdlib use, not a library gap (see DESIGN.md).
type QdrantVectorIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

var _ VectorIndex = (*QdrantVectorIndex)(nil)

// qdrantStatus tolerates both `status: "ok"` and `status: {"error": "..."}` response shapes.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	s.State = "error"
	s.Error = obj.Error
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Score   float64        `json:"score,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewQdrantVectorIndex constructs a Qdrant-backed vector index client.
func NewQdrantVectorIndex(baseURL, collection, apiKey string) *QdrantVectorIndex {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &QdrantVectorIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureCollection creates the collection for the configured embedding dimension if absent.
func (q *QdrantVectorIndex) EnsureCollection(ctx context.Context, dim int) error {
	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	var resp qdrantEnvelope[json.RawMessage]
	err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", url.PathEscape(q.collection)), req, &resp)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

func (q *QdrantVectorIndex) Upsert(ctx context.Context, p model.VectorPoint) error {
	req := map[string]any{
		"points": []map[string]any{{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]any{
				"created_at": p.CreatedAt.UTC().Format(time.RFC3339Nano),
				"token_count": p.TokenCt,
			},
		}},
	}
	var resp qdrantEnvelope[json.RawMessage]
	if err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", url.PathEscape(q.collection)), req, &resp); err != nil {
		return err
	}
	if resp.Status.Error != "" {
		return errors.New(resp.Status.Error)
	}
	return nil
}

func (q *QdrantVectorIndex) Delete(ctx context.Context, id string) error {
	req := map[string]any{"points": []string{id}}
	return q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete", url.PathEscape(q.collection)), req, nil)
}

func (q *QdrantVectorIndex) Search(ctx context.Context, query model.Embedding, topK int, minScore float64) ([]ScoredPoint, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":          query,
		"limit":           topK,
		"score_threshold": minScore,
		"with_payload":    true,
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", url.PathEscape(q.collection)), req, &resp); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(resp.Result))
	for _, p := range resp.Result {
		sp := ScoredPoint{ID: p.ID, Score: p.Score}
		if ts, ok := p.Payload["created_at"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				sp.CreatedAt = parsed
			}
		}
		if tc, ok := p.Payload["token_count"].(float64); ok {
			sp.TokenCt = int(tc)
		}
		out = append(out, sp)
	}
	return out, nil
}

func (q *QdrantVectorIndex) do(ctx context.Context, method, path string, body, out any) error {
	u := q.baseURL + path
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return fmt.Errorf("qdrant: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("qdrant: %s %s -> http %d: %s", method, u, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
