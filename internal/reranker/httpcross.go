package reranker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRerankTimeout = 10 * time.Second

// HTTPCrossEncoder calls a locally-hosted cross-encoder reranking model
// over HTTP, the same request/response shape as embedding.Ollama: POST a
// JSON body, decode a JSON response, surface non-200 status as an error.
type HTTPCrossEncoder struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewHTTPCrossEncoder returns a CrossEncoder backed by a reranking model
// served at baseURL (e.g. a local cross-encoder sidecar).
func NewHTTPCrossEncoder(model, baseURL string) *HTTPCrossEncoder {
	return &HTTPCrossEncoder{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRerankTimeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float32 `json:"scores"`
}

// Score implements CrossEncoder.
func (h *HTTPCrossEncoder) Score(query string, docs []string) ([]float32, error) {
	body, err := json.Marshal(rerankRequest{Model: h.model, Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("reranker: marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", h.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reranker: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reranker: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker: model returned %d: %s", resp.StatusCode, respBody)
	}

	var result rerankResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("reranker: unmarshal response: %w", err)
	}
	return result.Scores, nil
}
