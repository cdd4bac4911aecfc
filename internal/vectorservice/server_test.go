package vectorservice

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubEmbedder struct{ dims int }

func (s *stubEmbedder) Dims() int    { return s.dims }
func (s *stubEmbedder) Name() string { return "stub-test" }
func (s *stubEmbedder) EmbedDocument(text, context string) ([]float32, error) {
	return make([]float32, s.dims), nil
}
func (s *stubEmbedder) EmbedQuery(text string) ([]float32, error) {
	return make([]float32, s.dims), nil
}
func (s *stubEmbedder) EmbedBatch(texts, contexts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func newTestServer() *Server {
	m := NewMatrix()
	m.Add("a", []float32{1, 0})
	m.Add("b", []float32{0, 1})
	return NewServer("", m, &stubEmbedder{dims: 2})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.NVectors != 2 {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestHandleSearch(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(searchRequest{Vector: []float32{1, 0}, K: 1})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "a" {
		t.Errorf("unexpected search results: %+v", resp.Results)
	}
}

func TestHandleAddThenSearch(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(addRequest{ID: "c", Vector: []float32{0.9, 0.1}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	searchBody, _ := json.Marshal(searchRequest{Vector: []float32{1, 0}, K: 3})
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(searchBody)))
	var resp searchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results after add, got %d", len(resp.Results))
	}
}

func TestHandleEmbedQuery(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(embedRequest{Texts: []string{"hello"}, TaskType: "query"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp embedResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Vectors) != 1 || len(resp.Vectors[0]) != 2 {
		t.Errorf("unexpected embed response: %+v", resp)
	}
}

func TestHandleAddBatchReplaces(t *testing.T) {
	s := newTestServer()
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(addBatchRequest{IDs: []string{"x"}, Vectors: [][]float32{{1, 1}}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/add_batch", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if s.matrix.Len() != 1 {
		t.Fatalf("expected add_batch to replace matrix, got %d entries", s.matrix.Len())
	}
}
